package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"

	"forum/pkg/models"
	"forum/pkg/storage"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestAPI_createPost(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, aliceToken := e.newUser(t, "alice", models.RoleUser)

	body := map[string]any{
		"title":   "Hello",
		"content": "**bold** and <script>alert(1)</script>",
		"topics":  []string{"Go", " go ", "news"},
	}
	rr := e.do(t, http.MethodPost, "/post", body, aliceToken)
	if rr.Code != http.StatusCreated {
		t.Fatalf("want status code %v, got status code %v: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	var got postResponse
	decodeBody(t, rr, &got)
	if got.Author != alice.ID {
		t.Errorf("want author %v, got %v", alice.ID, got.Author)
	}
	if !reflect.DeepEqual(got.Topics, []string{"go", "news"}) {
		t.Errorf("want topics [go news], got %v", got.Topics)
	}
	if !strings.Contains(got.ContentHTML, "<strong>bold</strong>") {
		t.Errorf("want rendered markdown, got %q", got.ContentHTML)
	}
	if strings.Contains(got.ContentHTML, "<script>") {
		t.Errorf("want sanitized html, got %q", got.ContentHTML)
	}

	rr = e.do(t, http.MethodPost, "/post", map[string]string{"content": "no title"}, aliceToken)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing title: want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/post", map[string]string{"title": "   ", "content": "blank title"}, aliceToken)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank title: want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/post", body, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: want status code %v, got %v", http.StatusUnauthorized, rr.Code)
	}
}

func TestAPI_updatePost(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, aliceToken := e.newUser(t, "alice", models.RoleUser)
	_, bobToken := e.newUser(t, "bob", models.RoleUser)
	_, modToken := e.newUser(t, "mod", models.RoleModerator)
	post := e.newPost(t, alice, "original")
	path := "/post/" + post.ID.String()

	tests := []struct {
		name      string
		token     string
		body      any
		wantCode  int
		wantTitle string
	}{
		{name: "other user", token: bobToken, body: map[string]string{"title": "hijacked"}, wantCode: http.StatusForbidden, wantTitle: "original"},
		{name: "empty title", token: aliceToken, body: map[string]string{"title": ""}, wantCode: http.StatusBadRequest, wantTitle: "original"},
		{name: "blank title", token: aliceToken, body: map[string]string{"title": "  \t "}, wantCode: http.StatusBadRequest, wantTitle: "original"},
		{name: "author", token: aliceToken, body: map[string]string{"title": "edited"}, wantCode: http.StatusOK, wantTitle: "edited"},
		{name: "moderator", token: modToken, body: map[string]string{"title": "moderated"}, wantCode: http.StatusOK, wantTitle: "moderated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPut, path, tt.body, tt.token)
			if rr.Code != tt.wantCode {
				t.Errorf("want status code %v, got status code %v: %s", tt.wantCode, rr.Code, rr.Body.String())
			}

			got, err := e.db.Post(context.Background(), post.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("want title %q, got %q", tt.wantTitle, got.Title)
			}
			if got.Author != alice.ID {
				t.Errorf("want author %v unchanged, got %v", alice.ID, got.Author)
			}
		})
	}

	rr := e.do(t, http.MethodPut, "/post/"+uuid.Must(uuid.NewV4()).String(), map[string]string{"title": "x"}, aliceToken)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown post: want status code %v, got %v", http.StatusNotFound, rr.Code)
	}
}

func TestAPI_reactions(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, _ := e.newUser(t, "alice", models.RoleUser)
	_, bobToken := e.newUser(t, "bob", models.RoleUser)
	post := e.newPost(t, alice, "vote on me")
	path := "/post/" + post.ID.String()

	steps := []struct {
		action string
		want   reactionResponse
	}{
		{action: "/like", want: reactionResponse{Likes: 1, Liked: true}},
		{action: "/dislike", want: reactionResponse{Dislikes: 1, Disliked: true}},
		{action: "/dislike", want: reactionResponse{}},
		{action: "/like", want: reactionResponse{Likes: 1, Liked: true}},
		{action: "/like", want: reactionResponse{}},
	}

	for i, s := range steps {
		rr := e.do(t, http.MethodPut, path+s.action, nil, bobToken)
		if rr.Code != http.StatusOK {
			t.Fatalf("step %d: want status code %v, got %v", i, http.StatusOK, rr.Code)
		}
		var got reactionResponse
		decodeBody(t, rr, &got)
		if got != s.want {
			t.Errorf("step %d %s: want %+v, got %+v", i, s.action, s.want, got)
		}
	}
}

func TestAPI_filterPosts(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, _ := e.newUser(t, "alice", models.RoleUser)
	bob, _ := e.newUser(t, "bob", models.RoleUser)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []models.Post{
		{Title: "Learning Golang", Content: "channels", Author: alice.ID, Topics: []string{"go"}, CreatedAt: base},
		{Title: "Gardening", Content: "tomatoes and golang gophers", Author: bob.ID, Topics: []string{"life"}, CreatedAt: base.Add(time.Hour), Likes: []uuid.UUID{alice.ID, bob.ID}},
		{Title: "Cooking", Content: "pasta", Author: alice.ID, Topics: []string{"life"}, CreatedAt: base.Add(2 * time.Hour), Likes: []uuid.UUID{bob.ID}},
	}
	for _, p := range seed {
		if _, err := e.db.CreatePost(ctx, p); err != nil {
			t.Fatalf("failed to create post: %v", err)
		}
	}

	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantTitles []string
		wantTotal  int
		wantPages  int
	}{
		{name: "defaults", query: "", wantCode: http.StatusOK, wantTitles: []string{"Cooking", "Gardening", "Learning Golang"}, wantTotal: 3, wantPages: 1},
		{name: "keyword in title or content", query: "?keyword=GOLANG", wantCode: http.StatusOK, wantTitles: []string{"Gardening", "Learning Golang"}, wantTotal: 2, wantPages: 1},
		{name: "author", query: "?author=" + alice.ID.String(), wantCode: http.StatusOK, wantTitles: []string{"Cooking", "Learning Golang"}, wantTotal: 2, wantPages: 1},
		{name: "topic", query: "?topic=life&sortOrder=asc", wantCode: http.StatusOK, wantTitles: []string{"Gardening", "Cooking"}, wantTotal: 2, wantPages: 1},
		{name: "min likes", query: "?minLikes=2", wantCode: http.StatusOK, wantTitles: []string{"Gardening"}, wantTotal: 1, wantPages: 1},
		{name: "sort by title", query: "?sortBy=title&sortOrder=asc", wantCode: http.StatusOK, wantTitles: []string{"Cooking", "Gardening", "Learning Golang"}, wantTotal: 3, wantPages: 1},
		{name: "sort by likes", query: "?sortBy=likes", wantCode: http.StatusOK, wantTitles: []string{"Gardening", "Cooking", "Learning Golang"}, wantTotal: 3, wantPages: 1},
		{name: "second page", query: "?limit=2&page=2", wantCode: http.StatusOK, wantTitles: []string{"Learning Golang"}, wantTotal: 3, wantPages: 2},
		{name: "page past the end", query: "?limit=2&page=5", wantCode: http.StatusOK, wantTitles: []string{}, wantTotal: 3, wantPages: 2},
		{name: "limit too big", query: "?limit=101", wantCode: http.StatusBadRequest},
		{name: "bad page", query: "?page=0", wantCode: http.StatusBadRequest},
		{name: "bad sort field", query: "?sortBy=views", wantCode: http.StatusBadRequest},
		{name: "bad sort order", query: "?sortOrder=sideways", wantCode: http.StatusBadRequest},
		{name: "bad author", query: "?author=bob", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, "/posts"+tt.query, nil, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("want status code %v, got status code %v: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var got postsPageResponse
			decodeBody(t, rr, &got)
			titles := make([]string, 0, len(got.Posts))
			for _, p := range got.Posts {
				titles = append(titles, p.Title)
			}
			if !reflect.DeepEqual(titles, tt.wantTitles) {
				t.Errorf("want titles %v, got %v", tt.wantTitles, titles)
			}
			if got.TotalPosts != tt.wantTotal || got.TotalPages != tt.wantPages {
				t.Errorf("want total %d in %d pages, got %d in %d pages", tt.wantTotal, tt.wantPages, got.TotalPosts, got.TotalPages)
			}
		})
	}
}

func TestAPI_deletePost(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, aliceToken := e.newUser(t, "alice", models.RoleUser)
	bob, bobToken := e.newUser(t, "bob", models.RoleUser)
	_, modToken := e.newUser(t, "mod", models.RoleModerator)
	ctx := context.Background()

	post := e.newPost(t, alice, "doomed")
	imageID, err := e.db.SaveImage(ctx, "a.png", bytes.NewReader(pngData))
	if err != nil {
		t.Fatalf("failed to save image: %v", err)
	}
	if _, err := e.db.AddPostImages(ctx, post.ID, []string{imageID}, 0); err != nil {
		t.Fatalf("failed to attach image: %v", err)
	}
	root := e.newComment(t, bob, post, nil)
	e.newComment(t, alice, post, &root)

	rr := e.do(t, http.MethodDelete, "/post/"+post.ID.String(), nil, bobToken)
	if rr.Code != http.StatusForbidden {
		t.Errorf("other user: want status code %v, got %v", http.StatusForbidden, rr.Code)
	}

	rr = e.do(t, http.MethodDelete, "/post/"+post.ID.String(), nil, aliceToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	if _, err := e.db.Post(ctx, post.ID); !errors.Is(err, storage.ErrPostNotFound) {
		t.Errorf("want error %v, got %v", storage.ErrPostNotFound, err)
	}
	if _, err := e.db.Image(ctx, imageID); !errors.Is(err, storage.ErrImageNotFound) {
		t.Errorf("want error %v, got %v", storage.ErrImageNotFound, err)
	}
	left, _ := e.db.CommentsByPost(ctx, post.ID)
	if len(left) != 0 {
		t.Errorf("want no comments left, got %d", len(left))
	}
	for _, id := range []uuid.UUID{alice.ID, bob.ID} {
		u, _ := e.db.User(ctx, id)
		if len(u.Comments) != 0 {
			t.Errorf("want no comment references on user %s, got %v", u.Username, u.Comments)
		}
	}

	other := e.newPost(t, bob, "spam post")
	rr = e.do(t, http.MethodDelete, "/mod/"+other.ID.String(), nil, aliceToken)
	if rr.Code != http.StatusForbidden {
		t.Errorf("moderation by user: want status code %v, got %v", http.StatusForbidden, rr.Code)
	}
	rr = e.do(t, http.MethodDelete, "/mod/"+other.ID.String(), nil, modToken)
	if rr.Code != http.StatusOK {
		t.Errorf("moderation: want status code %v, got %v", http.StatusOK, rr.Code)
	}
	rr = e.do(t, http.MethodDelete, "/mod/"+other.ID.String(), nil, modToken)
	if rr.Code != http.StatusNotFound {
		t.Errorf("repeated moderation: want status code %v, got %v", http.StatusNotFound, rr.Code)
	}
}

func multipartRequest(t *testing.T, path, field string, files map[string][]byte, token string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAPI_postImages(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, aliceToken := e.newUser(t, "alice", models.RoleUser)
	_, bobToken := e.newUser(t, "bob", models.RoleUser)
	post := e.newPost(t, alice, "pictures")
	path := "/post/" + post.ID.String() + "/images"

	rr := e.serve(multipartRequest(t, path, "images", map[string][]byte{"a.png": pngData}, bobToken))
	if rr.Code != http.StatusForbidden {
		t.Errorf("other user: want status code %v, got %v", http.StatusForbidden, rr.Code)
	}

	rr = e.serve(multipartRequest(t, path, "images", map[string][]byte{"notes.txt": []byte("plain text")}, aliceToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("not an image: want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}

	rr = e.serve(multipartRequest(t, path, "images", map[string][]byte{"a.png": pngData}, aliceToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var got postResponse
	decodeBody(t, rr, &got)
	if len(got.Images) != 1 {
		t.Fatalf("want 1 image, got %v", got.Images)
	}

	rr = e.do(t, http.MethodGet, "/images/"+got.Images[0], nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v", http.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("want Content-Type image/png, got %q", ct)
	}
	if !bytes.Equal(rr.Body.Bytes(), pngData) {
		t.Error("want served image to match upload")
	}

	rr = e.do(t, http.MethodGet, "/images/missing", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing image: want status code %v, got %v", http.StatusNotFound, rr.Code)
	}
}

// outdatedPost serves the post as it was before any image was attached, as seen by an upload that
// raced with another one.
type outdatedPost struct {
	storage.Storage
}

func (o *outdatedPost) Post(ctx context.Context, id uuid.UUID) (models.Post, error) {
	p, err := o.Storage.Post(ctx, id)
	p.Images = nil
	return p, err
}

func TestAPI_postImagesLimit(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, aliceToken := e.newUser(t, "alice", models.RoleUser)
	post := e.newPost(t, alice, "full")
	path := "/post/" + post.ID.String() + "/images"

	full := make([]string, maxPostImages)
	for i := range full {
		full[i] = uuid.Must(uuid.NewV4()).String()
	}
	if _, err := e.db.AddPostImages(context.Background(), post.ID, full, maxPostImages); err != nil {
		t.Fatalf("failed to attach images: %v", err)
	}

	rr := e.serve(multipartRequest(t, path, "images", map[string][]byte{"a.png": pngData}, aliceToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("full post: want status code %v, got %v", http.StatusBadRequest, rr.Code)
	}

	e.api.db = &outdatedPost{Storage: e.db}
	rr = e.serve(multipartRequest(t, path, "images", map[string][]byte{"a.png": pngData}, aliceToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("outdated read: want status code %v, got %v: %s", http.StatusBadRequest, rr.Code, rr.Body.String())
	}

	got, err := e.db.Post(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got.Images, full) {
		t.Errorf("want images %v, got %v", full, got.Images)
	}
}

func TestAPI_uploadAvatar(t *testing.T) {
	e := newTestEnv(t, Options{})
	alice, aliceToken := e.newUser(t, "alice", models.RoleUser)
	_, bobToken := e.newUser(t, "bob", models.RoleUser)
	_, adminToken := e.newUser(t, "admin", models.RoleAdmin)
	path := "/user/avatar/" + alice.ID.String()

	rr := e.serve(multipartRequest(t, path, "avatar", map[string][]byte{"me.png": pngData}, bobToken))
	if rr.Code != http.StatusForbidden {
		t.Errorf("other user: want status code %v, got %v", http.StatusForbidden, rr.Code)
	}

	rr = e.serve(multipartRequest(t, path, "avatar", map[string][]byte{"me.png": pngData}, aliceToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got status code %v: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var first models.User
	decodeBody(t, rr, &first)
	if first.Avatar == "" {
		t.Fatal("want avatar id set")
	}

	rr = e.serve(multipartRequest(t, path, "avatar", map[string][]byte{"new.png": pngData}, adminToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: want status code %v, got %v", http.StatusOK, rr.Code)
	}
	if _, err := e.db.Image(context.Background(), first.Avatar); !errors.Is(err, storage.ErrImageNotFound) {
		t.Errorf("want previous avatar removed, got %v", err)
	}
}
