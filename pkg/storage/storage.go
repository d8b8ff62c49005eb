// Package storage declares the persistence contract of the forum and the errors shared by its backends.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/gofrs/uuid"

	"forum/pkg/models"
)

var (
	ErrConnectDB       = fmt.Errorf("unable to establish DB connection")
	ErrDBNotResponding = fmt.Errorf("DB not responding")

	ErrUserNotFound          = fmt.Errorf("user not found")
	ErrDuplicateUser         = fmt.Errorf("user with this email or username already exists")
	ErrPostNotFound          = fmt.Errorf("post not found")
	ErrPostIDNotProvided     = fmt.Errorf("postID not provided")
	ErrCommentNotFound       = fmt.Errorf("comment not found")
	ErrParentCommentNotFound = fmt.Errorf("parent comment not found")
	ErrImageNotFound         = fmt.Errorf("image not found")
	ErrTooManyImages         = fmt.Errorf("post image limit reached")
)

// Sort fields accepted by PostFilter.SortBy.
const (
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortTitle     = "title"
	SortLikes     = "likes"
)

// PostFilter describes a paginated post search. Zero values disable the corresponding filter.
type PostFilter struct {
	Keyword  string
	Author   uuid.UUID
	Topic    string
	MinLikes int
	SortBy   string
	Asc      bool
	Page     int
	Limit    int
}

// UserUpdate carries the profile fields a user may change about themselves. Nil fields are left as is.
type UserUpdate struct {
	Username *string
	Name     *string
	Email    *string
}

// PostUpdate carries editable post fields. Nil fields are left as is.
type PostUpdate struct {
	Title   *string
	Content *string
	Topics  []string
}

// Contributor is a user ranked by activity.
type Contributor struct {
	User     models.User
	Comments int
	Posts    int
}

type Storage interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	User(ctx context.Context, id uuid.UUID) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	Users(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (models.User, error)
	SetUserRole(ctx context.Context, id uuid.UUID, role models.Role) (models.User, error)
	SetUserAvatar(ctx context.Context, id uuid.UUID, imageID string) (models.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, tokenID string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	TopContributors(ctx context.Context, limit int) ([]Contributor, error)

	CreatePost(ctx context.Context, p models.Post) (models.Post, error)
	Post(ctx context.Context, id uuid.UUID) (models.Post, error)
	Posts(ctx context.Context) ([]models.Post, error)
	PostsByAuthor(ctx context.Context, author uuid.UUID) ([]models.Post, error)
	FilterPosts(ctx context.Context, f PostFilter) (posts []models.Post, total int, err error)
	UpdatePost(ctx context.Context, id uuid.UUID, upd PostUpdate) (models.Post, error)
	SetReactions(ctx context.Context, id uuid.UUID, likes, dislikes []uuid.UUID) (models.Post, error)
	// AddPostImages appends the images unless the post would then hold more than limit of them, in
	// which case it returns ErrTooManyImages and leaves the post unchanged. A limit of 0 disables
	// the check.
	AddPostImages(ctx context.Context, id uuid.UUID, imageIDs []string, limit int) (models.Post, error)
	DeletePost(ctx context.Context, id uuid.UUID) error

	CreateComment(ctx context.Context, c models.Comment) (models.Comment, error)
	Comment(ctx context.Context, id uuid.UUID) (models.Comment, error)
	CommentsByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error)
	CommentsByParent(ctx context.Context, parentID uuid.UUID) ([]models.Comment, error)
	CommentsByAuthor(ctx context.Context, author uuid.UUID) ([]models.Comment, error)
	UpdateComment(ctx context.Context, id uuid.UUID, content string) (models.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	UnlinkUserComment(ctx context.Context, userID, commentID uuid.UUID) error
	UnlinkPostComment(ctx context.Context, postID, commentID uuid.UUID) error
	ClearPostComments(ctx context.Context, postID uuid.UUID) error

	SaveImage(ctx context.Context, filename string, r io.Reader) (string, error)
	Image(ctx context.Context, id string) ([]byte, error)
	DeleteImage(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// Pages returns the number of pages needed to hold total items with the given page size.
func Pages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
