// Package memdb is an in-memory implementation of storage.Storage used in tests and in dev mode.
package memdb

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"forum/pkg/models"
	"forum/pkg/storage"
)

type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	posts    map[uuid.UUID]models.Post
	comments map[uuid.UUID]models.Comment
	images   map[string][]byte
}

func New() *Store {
	db := Store{
		users:    make(map[uuid.UUID]models.User),
		posts:    make(map[uuid.UUID]models.Post),
		comments: make(map[uuid.UUID]models.Comment),
		images:   make(map[string][]byte),
	}

	return &db
}

func (db *Store) Ping(ctx context.Context) error {
	return nil
}

func (db *Store) Close(ctx context.Context) {}

func (db *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, v := range db.users {
		if strings.EqualFold(v.Email, u.Email) || strings.EqualFold(v.Username, u.Username) {
			return models.User{}, storage.ErrDuplicateUser
		}
	}

	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		u.ID = id
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	u.Comments = cloneIDs(u.Comments)

	db.users[u.ID] = u
	return copyUser(u), nil
}

func (db *Store) User(ctx context.Context, id uuid.UUID) (models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (db *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (db *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Username, username) {
			return copyUser(u), nil
		}
	}
	return models.User{}, storage.ErrUserNotFound
}

func (db *Store) Users(ctx context.Context) ([]models.User, error) {
	db.mu.Lock()
	users := make([]models.User, 0, len(db.users))
	for _, u := range db.users {
		users = append(users, copyUser(u))
	}
	db.mu.Unlock()

	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (db *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd storage.UserUpdate) (models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	for _, v := range db.users {
		if v.ID == id {
			continue
		}
		if upd.Email != nil && strings.EqualFold(v.Email, *upd.Email) {
			return models.User{}, storage.ErrDuplicateUser
		}
		if upd.Username != nil && strings.EqualFold(v.Username, *upd.Username) {
			return models.User{}, storage.ErrDuplicateUser
		}
	}

	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	u.UpdatedAt = time.Now().UTC()

	db.users[id] = u
	return copyUser(u), nil
}

func (db *Store) SetUserRole(ctx context.Context, id uuid.UUID, role models.Role) (models.User, error) {
	return db.modifyUser(id, func(u *models.User) { u.Role = role })
}

func (db *Store) SetUserAvatar(ctx context.Context, id uuid.UUID, imageID string) (models.User, error) {
	return db.modifyUser(id, func(u *models.User) { u.Avatar = imageID })
}

func (db *Store) SetRefreshToken(ctx context.Context, id uuid.UUID, tokenID string) error {
	_, err := db.modifyUser(id, func(u *models.User) { u.RefreshToken = tokenID })
	return err
}

func (db *Store) modifyUser(id uuid.UUID, fn func(u *models.User)) (models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	db.users[id] = u

	return copyUser(u), nil
}

func (db *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[id]; !ok {
		return storage.ErrUserNotFound
	}
	delete(db.users, id)
	return nil
}

func (db *Store) TopContributors(ctx context.Context, limit int) ([]storage.Contributor, error) {
	db.mu.Lock()
	postsByAuthor := make(map[uuid.UUID]int)
	for _, p := range db.posts {
		postsByAuthor[p.Author]++
	}
	res := make([]storage.Contributor, 0, len(db.users))
	for _, u := range db.users {
		res = append(res, storage.Contributor{
			User:     copyUser(u),
			Comments: len(u.Comments),
			Posts:    postsByAuthor[u.ID],
		})
	}
	db.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Comments != res[j].Comments {
			return res[i].Comments > res[j].Comments
		}
		if res[i].Posts != res[j].Posts {
			return res[i].Posts > res[j].Posts
		}
		return res[i].User.Username < res[j].User.Username
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (db *Store) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Post{}, err
		}
		p.ID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt

	p = copyPost(p)

	db.mu.Lock()
	db.posts[p.ID] = p
	db.mu.Unlock()

	return copyPost(p), nil
}

func (db *Store) Post(ctx context.Context, id uuid.UUID) (models.Post, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.posts[id]
	if !ok {
		return models.Post{}, storage.ErrPostNotFound
	}
	return copyPost(p), nil
}

func (db *Store) Posts(ctx context.Context) ([]models.Post, error) {
	db.mu.Lock()
	posts := make([]models.Post, 0, len(db.posts))
	for _, p := range db.posts {
		posts = append(posts, copyPost(p))
	}
	db.mu.Unlock()

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (db *Store) PostsByAuthor(ctx context.Context, author uuid.UUID) ([]models.Post, error) {
	posts, err := db.Posts(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]models.Post, 0)
	for _, p := range posts {
		if p.Author == author {
			res = append(res, p)
		}
	}
	return res, nil
}

func (db *Store) FilterPosts(ctx context.Context, f storage.PostFilter) (posts []models.Post, total int, err error) {
	keyword := strings.ToLower(f.Keyword)

	db.mu.Lock()
	matched := make([]models.Post, 0)
	for _, p := range db.posts {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(p.Title), keyword) &&
			!strings.Contains(strings.ToLower(p.Content), keyword) {
			continue
		}
		if f.Author != uuid.Nil && p.Author != f.Author {
			continue
		}
		if f.Topic != "" && !hasTopic(p.Topics, f.Topic) {
			continue
		}
		if len(p.Likes) < f.MinLikes {
			continue
		}
		matched = append(matched, copyPost(p))
	}
	db.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if f.Asc {
			return lessPost(matched[i], matched[j], f.SortBy)
		}
		return lessPost(matched[j], matched[i], f.SortBy)
	})

	total = len(matched)
	if f.Limit <= 0 {
		return []models.Post{}, total, nil
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * f.Limit
	if start >= total {
		return []models.Post{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

func lessPost(a, b models.Post, sortBy string) bool {
	switch sortBy {
	case storage.SortUpdatedAt:
		return a.UpdatedAt.Before(b.UpdatedAt)
	case storage.SortTitle:
		return a.Title < b.Title
	case storage.SortLikes:
		return len(a.Likes) < len(b.Likes)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func hasTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

func (db *Store) UpdatePost(ctx context.Context, id uuid.UUID, upd storage.PostUpdate) (models.Post, error) {
	return db.modifyPost(id, func(p *models.Post) {
		if upd.Title != nil {
			p.Title = *upd.Title
		}
		if upd.Content != nil {
			p.Content = *upd.Content
		}
		if upd.Topics != nil {
			p.Topics = append([]string{}, upd.Topics...)
		}
		p.UpdatedAt = time.Now().UTC()
	})
}

func (db *Store) SetReactions(ctx context.Context, id uuid.UUID, likes, dislikes []uuid.UUID) (models.Post, error) {
	return db.modifyPost(id, func(p *models.Post) {
		p.Likes = cloneIDs(likes)
		p.Dislikes = cloneIDs(dislikes)
	})
}

func (db *Store) AddPostImages(ctx context.Context, id uuid.UUID, imageIDs []string, limit int) (models.Post, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.posts[id]
	if !ok {
		return models.Post{}, storage.ErrPostNotFound
	}
	if limit > 0 && len(p.Images)+len(imageIDs) > limit {
		return models.Post{}, storage.ErrTooManyImages
	}
	p.Images = append(append([]string{}, p.Images...), imageIDs...)
	db.posts[id] = p

	return copyPost(p), nil
}

func (db *Store) ClearPostComments(ctx context.Context, postID uuid.UUID) error {
	_, err := db.modifyPost(postID, func(p *models.Post) { p.Comments = []uuid.UUID{} })
	return err
}

func (db *Store) modifyPost(id uuid.UUID, fn func(p *models.Post)) (models.Post, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.posts[id]
	if !ok {
		return models.Post{}, storage.ErrPostNotFound
	}
	fn(&p)
	db.posts[id] = p

	return copyPost(p), nil
}

func (db *Store) DeletePost(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.posts[id]; !ok {
		return storage.ErrPostNotFound
	}
	delete(db.posts, id)
	return nil
}

// CreateComment validates the post and the optional parent, stores the comment and appends its id
// to the author's and the post's comment lists.
func (db *Store) CreateComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	if c.Post == uuid.Nil {
		return models.Comment{}, storage.ErrPostIDNotProvided
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	post, ok := db.posts[c.Post]
	if !ok {
		return models.Comment{}, storage.ErrPostNotFound
	}
	author, ok := db.users[c.Author]
	if !ok {
		return models.Comment{}, storage.ErrUserNotFound
	}
	if c.IsReply() {
		parent, ok := db.comments[*c.ParentComment]
		if !ok || parent.Post != c.Post {
			return models.Comment{}, storage.ErrParentCommentNotFound
		}
	} else {
		c.ParentComment = nil
	}

	if c.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Comment{}, err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	db.comments[c.ID] = c

	author.Comments = append(cloneIDs(author.Comments), c.ID)
	db.users[author.ID] = author
	post.Comments = append(cloneIDs(post.Comments), c.ID)
	db.posts[post.ID] = post

	return c, nil
}

func (db *Store) Comment(ctx context.Context, id uuid.UUID) (models.Comment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.comments[id]
	if !ok {
		return models.Comment{}, storage.ErrCommentNotFound
	}
	return c, nil
}

func (db *Store) CommentsByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	if postID == uuid.Nil {
		return nil, storage.ErrPostIDNotProvided
	}
	return db.selectComments(func(c models.Comment) bool { return c.Post == postID }), nil
}

func (db *Store) CommentsByParent(ctx context.Context, parentID uuid.UUID) ([]models.Comment, error) {
	return db.selectComments(func(c models.Comment) bool {
		return c.IsReply() && *c.ParentComment == parentID
	}), nil
}

func (db *Store) CommentsByAuthor(ctx context.Context, author uuid.UUID) ([]models.Comment, error) {
	return db.selectComments(func(c models.Comment) bool { return c.Author == author }), nil
}

// selectComments returns matching comments ordered by creation time ascending.
func (db *Store) selectComments(match func(c models.Comment) bool) []models.Comment {
	db.mu.Lock()
	res := make([]models.Comment, 0)
	for _, c := range db.comments {
		if match(c) {
			res = append(res, c)
		}
	}
	db.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID.String() < res[j].ID.String()
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

func (db *Store) UpdateComment(ctx context.Context, id uuid.UUID, content string) (models.Comment, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.comments[id]
	if !ok {
		return models.Comment{}, storage.ErrCommentNotFound
	}
	c.Content = content
	c.UpdatedAt = time.Now().UTC()
	db.comments[id] = c

	return c, nil
}

func (db *Store) DeleteComment(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.comments[id]; !ok {
		return storage.ErrCommentNotFound
	}
	delete(db.comments, id)
	return nil
}

// UnlinkUserComment removes commentID from the user's comment list. A missing user is not an error.
func (db *Store) UnlinkUserComment(ctx context.Context, userID, commentID uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if u, ok := db.users[userID]; ok {
		u.Comments = without(u.Comments, commentID)
		db.users[userID] = u
	}
	return nil
}

// UnlinkPostComment removes commentID from the post's comment list. A missing post is not an error.
func (db *Store) UnlinkPostComment(ctx context.Context, postID, commentID uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if p, ok := db.posts[postID]; ok {
		p.Comments = without(p.Comments, commentID)
		db.posts[postID] = p
	}
	return nil
}

func (db *Store) SaveImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}

	db.mu.Lock()
	db.images[id.String()] = buf.Bytes()
	db.mu.Unlock()

	return id.String(), nil
}

func (db *Store) Image(ctx context.Context, id string) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.images[id]
	if !ok {
		return nil, storage.ErrImageNotFound
	}
	return append([]byte{}, b...), nil
}

func (db *Store) DeleteImage(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.images[id]; !ok {
		return storage.ErrImageNotFound
	}
	delete(db.images, id)
	return nil
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	res := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			res = append(res, v)
		}
	}
	return res
}

func cloneIDs(ids []uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID{}, ids...)
}

func copyUser(u models.User) models.User {
	u.Comments = cloneIDs(u.Comments)
	return u
}

func copyPost(p models.Post) models.Post {
	p.Topics = append([]string{}, p.Topics...)
	p.Images = append([]string{}, p.Images...)
	p.Likes = cloneIDs(p.Likes)
	p.Dislikes = cloneIDs(p.Dislikes)
	p.Comments = cloneIDs(p.Comments)
	return p
}
