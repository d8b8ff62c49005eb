package api

import (
	"github.com/gofrs/uuid"

	"forum/pkg/comments"
	"forum/pkg/models"
	"forum/pkg/render"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Name     string `json:"name" validate:"max=64"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User        models.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

type updateMeRequest struct {
	Username *string `json:"username" validate:"omitempty,alphanum,min=3,max=32"`
	Name     *string `json:"name" validate:"omitempty,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type roleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=user moderator admin"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type usernameResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

type contributorResponse struct {
	User     models.User `json:"user"`
	Comments int         `json:"comments"`
	Posts    int         `json:"posts"`
}

type createPostRequest struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Content string   `json:"content" validate:"required"`
	Topics  []string `json:"topics" validate:"max=10,dive,min=1,max=32"`
}

type updatePostRequest struct {
	Title   *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Content *string  `json:"content" validate:"omitempty,min=1"`
	Topics  []string `json:"topics" validate:"omitempty,max=10,dive,min=1,max=32"`
}

// postResponse is a post with its markdown content rendered to sanitized HTML.
type postResponse struct {
	models.Post
	ContentHTML string `json:"contentHtml"`
}

func newPostResponse(p models.Post) postResponse {
	return postResponse{Post: p, ContentHTML: render.Markdown(p.Content)}
}

func newPostResponses(posts []models.Post) []postResponse {
	res := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		res = append(res, newPostResponse(p))
	}
	return res
}

type postsPageResponse struct {
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	TotalPosts int            `json:"totalPosts"`
	Posts      []postResponse `json:"posts"`
}

type reactionResponse struct {
	Likes    int  `json:"likes"`
	Dislikes int  `json:"dislikes"`
	Liked    bool `json:"liked"`
	Disliked bool `json:"disliked"`
}

type createCommentRequest struct {
	Content       string     `json:"content" validate:"required,max=5000"`
	PostID        uuid.UUID  `json:"postId" validate:"required"`
	ParentComment *uuid.UUID `json:"parentComment"`
}

type updateCommentRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type commentTreeResponse struct {
	Post     uuid.UUID        `json:"post"`
	Count    int              `json:"count"`
	Comments []*comments.Node `json:"comments"`
}

type deleteCommentResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Deleted []uuid.UUID `json:"deleted"`
}
