package memdb

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"

	"forum/pkg/models"
	"forum/pkg/storage"
)

func newUser(t *testing.T, db *Store, name string) models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), models.User{
		Username: name,
		Email:    name + "@example.com",
		Password: "hash",
	})
	if err != nil {
		t.Fatalf("unexpected error while creating user: %v", err)
	}
	return u
}

func TestStore_CreateUser(t *testing.T) {
	db := New()
	ctx := context.Background()

	u := newUser(t, db, "alice")
	if u.ID == uuid.Nil {
		t.Error("want generated user ID")
	}
	if u.Role != models.RoleUser {
		t.Errorf("want role %q, got %q", models.RoleUser, u.Role)
	}

	_, err := db.CreateUser(ctx, models.User{Username: "other", Email: "ALICE@example.com"})
	if !errors.Is(err, storage.ErrDuplicateUser) {
		t.Errorf("want error %v, got %v", storage.ErrDuplicateUser, err)
	}
	_, err = db.CreateUser(ctx, models.User{Username: "Alice", Email: "new@example.com"})
	if !errors.Is(err, storage.ErrDuplicateUser) {
		t.Errorf("want error %v, got %v", storage.ErrDuplicateUser, err)
	}

	got, err := db.UserByEmail(ctx, "alice@EXAMPLE.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("want user %v, got %v", u.ID, got.ID)
	}
}

func TestStore_UpdateUser(t *testing.T) {
	db := New()
	ctx := context.Background()
	alice := newUser(t, db, "alice")
	newUser(t, db, "bob")

	name := "Alice A."
	got, err := db.UpdateUser(ctx, alice.ID, storage.UserUpdate{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != name || got.Username != "alice" {
		t.Errorf("unexpected user after update: %+v", got)
	}

	taken := "bob"
	_, err = db.UpdateUser(ctx, alice.ID, storage.UserUpdate{Username: &taken})
	if !errors.Is(err, storage.ErrDuplicateUser) {
		t.Errorf("want error %v, got %v", storage.ErrDuplicateUser, err)
	}

	_, err = db.UpdateUser(ctx, uuid.Must(uuid.NewV4()), storage.UserUpdate{Name: &name})
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("want error %v, got %v", storage.ErrUserNotFound, err)
	}
}

func TestStore_CreateComment(t *testing.T) {
	db := New()
	ctx := context.Background()

	author := newUser(t, db, "alice")
	post, err := db.CreatePost(ctx, models.Post{Title: "title", Author: author.ID})
	if err != nil {
		t.Fatalf("unexpected error while creating post: %v", err)
	}
	other, err := db.CreatePost(ctx, models.Post{Title: "other", Author: author.ID})
	if err != nil {
		t.Fatalf("unexpected error while creating post: %v", err)
	}

	root, err := db.CreateComment(ctx, models.Comment{Content: "root", Author: author.ID, Post: post.ID})
	if err != nil {
		t.Fatalf("unexpected error while creating comment: %v", err)
	}

	tests := []struct {
		name    string
		comment models.Comment
		wantErr error
	}{
		{
			name:    "no post",
			comment: models.Comment{Content: "x", Author: author.ID},
			wantErr: storage.ErrPostIDNotProvided,
		},
		{
			name:    "unknown post",
			comment: models.Comment{Content: "x", Author: author.ID, Post: uuid.Must(uuid.NewV4())},
			wantErr: storage.ErrPostNotFound,
		},
		{
			name:    "parent on other post",
			comment: models.Comment{Content: "x", Author: author.ID, Post: other.ID, ParentComment: &root.ID},
			wantErr: storage.ErrParentCommentNotFound,
		},
		{
			name:    "valid reply",
			comment: models.Comment{Content: "x", Author: author.ID, Post: post.ID, ParentComment: &root.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateComment(ctx, tt.comment)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("want error %v, got %v", tt.wantErr, err)
			}
		})
	}

	gotUser, _ := db.User(ctx, author.ID)
	if len(gotUser.Comments) != 2 {
		t.Errorf("want 2 comment refs on user, got %d", len(gotUser.Comments))
	}
	gotPost, _ := db.Post(ctx, post.ID)
	if len(gotPost.Comments) != 2 || gotPost.Comments[0] != root.ID {
		t.Errorf("unexpected comment refs on post: %v", gotPost.Comments)
	}
}

func TestStore_CommentsByPostOrder(t *testing.T) {
	db := New()
	ctx := context.Background()
	author := newUser(t, db, "alice")
	post, _ := db.CreatePost(ctx, models.Post{Title: "t", Author: author.ID})

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var want []uuid.UUID
	for _, offset := range []int{3, 1, 2} {
		c, err := db.CreateComment(ctx, models.Comment{
			Content:   "c",
			Author:    author.ID,
			Post:      post.ID,
			CreatedAt: base.Add(time.Duration(offset) * time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want = append(want, c.ID)
	}
	want = []uuid.UUID{want[1], want[2], want[0]}

	comments, err := db.CommentsByPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []uuid.UUID
	for _, c := range comments {
		got = append(got, c.ID)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want order %v, got %v", want, got)
	}
}

func TestStore_FilterPosts(t *testing.T) {
	db := New()
	ctx := context.Background()
	alice := newUser(t, db, "alice")
	bob := newUser(t, db, "bob")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		{Title: "Go generics", Content: "type params", Author: alice.ID, Topics: []string{"go"}, CreatedAt: base},
		{Title: "Rust traits", Content: "about GO too", Author: bob.ID, Topics: []string{"rust"}, CreatedAt: base.Add(time.Hour), Likes: []uuid.UUID{alice.ID}},
		{Title: "Cooking", Content: "pasta", Author: alice.ID, Topics: []string{"food"}, CreatedAt: base.Add(2 * time.Hour), Likes: []uuid.UUID{alice.ID, bob.ID}},
	}
	for _, p := range posts {
		if _, err := db.CreatePost(ctx, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	tests := []struct {
		name       string
		filter     storage.PostFilter
		wantTitles []string
		wantTotal  int
	}{
		{
			name:       "keyword in title or content",
			filter:     storage.PostFilter{Keyword: "go", Limit: 10},
			wantTitles: []string{"Rust traits", "Go generics"},
			wantTotal:  2,
		},
		{
			name:       "author ascending",
			filter:     storage.PostFilter{Author: alice.ID, Asc: true, Limit: 10},
			wantTitles: []string{"Go generics", "Cooking"},
			wantTotal:  2,
		},
		{
			name:       "min likes",
			filter:     storage.PostFilter{MinLikes: 1, SortBy: storage.SortLikes, Limit: 10},
			wantTitles: []string{"Cooking", "Rust traits"},
			wantTotal:  2,
		},
		{
			name:       "topic",
			filter:     storage.PostFilter{Topic: "GO", Limit: 10},
			wantTitles: []string{"Go generics"},
			wantTotal:  1,
		},
		{
			name:       "second page",
			filter:     storage.PostFilter{Page: 2, Limit: 2},
			wantTitles: []string{"Go generics"},
			wantTotal:  3,
		},
		{
			name:       "page out of range",
			filter:     storage.PostFilter{Page: 5, Limit: 2},
			wantTitles: []string{},
			wantTotal:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := db.FilterPosts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			titles := []string{}
			for _, p := range got {
				titles = append(titles, p.Title)
			}
			if !reflect.DeepEqual(titles, tt.wantTitles) {
				t.Errorf("want titles %v, got %v", tt.wantTitles, titles)
			}
			if total != tt.wantTotal {
				t.Errorf("want total %d, got %d", tt.wantTotal, total)
			}
		})
	}
}

func TestStore_TopContributors(t *testing.T) {
	db := New()
	ctx := context.Background()
	alice := newUser(t, db, "alice")
	bob := newUser(t, db, "bob")
	newUser(t, db, "carol")

	post, _ := db.CreatePost(ctx, models.Post{Title: "t", Author: alice.ID})
	for i := 0; i < 2; i++ {
		if _, err := db.CreateComment(ctx, models.Comment{Content: "c", Author: bob.ID, Post: post.ID}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := db.TopContributors(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 contributors, got %d", len(got))
	}
	if got[0].User.ID != bob.ID || got[0].Comments != 2 {
		t.Errorf("want bob with 2 comments first, got %+v", got[0])
	}
	if got[1].User.ID != alice.ID || got[1].Posts != 1 {
		t.Errorf("want alice with 1 post second, got %+v", got[1])
	}
}

func TestStore_Unlink(t *testing.T) {
	db := New()
	ctx := context.Background()
	alice := newUser(t, db, "alice")
	post, _ := db.CreatePost(ctx, models.Post{Title: "t", Author: alice.ID})
	c, _ := db.CreateComment(ctx, models.Comment{Content: "c", Author: alice.ID, Post: post.ID})

	if err := db.UnlinkUserComment(ctx, alice.ID, c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.UnlinkPostComment(ctx, post.ID, c.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Unknown owners are ignored.
	if err := db.UnlinkUserComment(ctx, uuid.Must(uuid.NewV4()), c.ID); err != nil {
		t.Errorf("unexpected error for missing user: %v", err)
	}

	u, _ := db.User(ctx, alice.ID)
	p, _ := db.Post(ctx, post.ID)
	if len(u.Comments) != 0 || len(p.Comments) != 0 {
		t.Errorf("want empty comment refs, got user %v post %v", u.Comments, p.Comments)
	}
}

func TestStore_Images(t *testing.T) {
	db := New()
	ctx := context.Background()

	id, err := db.SaveImage(ctx, "a.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := db.Image(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "png-bytes" {
		t.Errorf("want image data %q, got %q", "png-bytes", b)
	}

	if err := db.DeleteImage(ctx, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := db.Image(ctx, id); !errors.Is(err, storage.ErrImageNotFound) {
		t.Errorf("want error %v, got %v", storage.ErrImageNotFound, err)
	}
}

func TestStore_AddPostImagesLimit(t *testing.T) {
	db := New()
	ctx := context.Background()
	alice := newUser(t, db, "alice")
	post, err := db.CreatePost(ctx, models.Post{Title: "pictures", Author: alice.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name       string
		images     []string
		wantErr    error
		wantImages []string
	}{
		{name: "fits", images: []string{"a", "b"}, wantImages: []string{"a", "b"}},
		{name: "overshoots", images: []string{"c", "d"}, wantErr: storage.ErrTooManyImages, wantImages: []string{"a", "b"}},
		{name: "fills up", images: []string{"c"}, wantImages: []string{"a", "b", "c"}},
		{name: "full", images: []string{"d"}, wantErr: storage.ErrTooManyImages, wantImages: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.AddPostImages(ctx, post.ID, tt.images, 3)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("want error %v, got %v", tt.wantErr, err)
			}
			got, err := db.Post(ctx, post.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got.Images, tt.wantImages) {
				t.Errorf("want images %v, got %v", tt.wantImages, got.Images)
			}
		})
	}

	if _, err := db.AddPostImages(ctx, uuid.Must(uuid.NewV4()), []string{"x"}, 3); !errors.Is(err, storage.ErrPostNotFound) {
		t.Errorf("want error %v, got %v", storage.ErrPostNotFound, err)
	}
}
