package api

import (
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"forum/pkg/comments"
	"forum/pkg/logger"
	"forum/pkg/metrics"
	"forum/pkg/models"
)

func (api *API) commentsHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	s := r.URL.Query().Get("postId")
	if s == "" {
		httpError(w, "Post ID not provided", http.StatusBadRequest)
		return
	}
	postID, err := uuid.FromString(s)
	if err != nil {
		httpError(w, "Invalid postId parameter", http.StatusBadRequest)
		log.Debugf("[commentsHandler][%s] bad postId %q: %v", sID, s, err)
		return
	}

	api.serveCommentTree(w, r, postID, "commentsHandler", sID)
}

// serveCommentTree answers with the assembled comment forest of the post, served from the tree cache
// when possible.
func (api *API) serveCommentTree(w http.ResponseWriter, r *http.Request, postID uuid.UUID, handler, sID string) {
	if _, err := api.db.Post(r.Context(), postID); err != nil {
		api.storageError(w, err, handler, sID)
		return
	}

	var (
		roots  []*comments.Node
		gen    uint64
		cached bool
	)
	if api.opts.Trees != nil {
		roots, gen, cached = api.opts.Trees.Get(postID)
		metrics.CacheResult(cached)
	}

	if !cached {
		list, err := api.db.CommentsByPost(r.Context(), postID)
		if err != nil {
			api.storageError(w, err, handler, sID)
			return
		}

		roots, err = comments.BuildTree(postID, list, comments.TreeOptions{MaxDepth: api.opts.MaxDepth})
		if err != nil {
			api.storageError(w, err, handler, sID)
			return
		}

		if api.opts.Trees != nil && !api.opts.Trees.Set(postID, gen, roots) {
			log.Debugf("[%s][%s] tree of post %v changed while loading, not cached", handler, sID, postID)
		}
	}

	resp := commentTreeResponse{Post: postID, Count: comments.Count(roots), Comments: roots}
	writeJSON(w, http.StatusOK, resp, handler, sID)
}

func (api *API) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	var req createCommentRequest
	if !api.decode(w, r, &req, "createCommentHandler", sID) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		httpError(w, "Content is required", http.StatusBadRequest)
		return
	}
	if api.contentRejected(w, r, "createCommentHandler", sID, req.Content) {
		return
	}

	c := models.Comment{
		Content: req.Content,
		Author:  user.ID,
		Post:    req.PostID,
	}
	if req.ParentComment != nil && *req.ParentComment != uuid.Nil {
		parent := *req.ParentComment
		c.ParentComment = &parent
	}

	created, err := api.db.CreateComment(r.Context(), c)
	if err != nil {
		api.storageError(w, err, "createCommentHandler", sID)
		return
	}
	api.invalidateTree(created.Post)

	writeJSON(w, http.StatusCreated, created, "createCommentHandler", sID)
	log.Debugf("[createCommentHandler][%s] comment %v added to post %v", sID, created.ID, created.Post)
}

// updateCommentHandler edits the content of a comment. Only its author may do that.
func (api *API) updateCommentHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	c, err := api.db.Comment(r.Context(), pathID(r))
	if err != nil {
		api.storageError(w, err, "updateCommentHandler", sID)
		return
	}
	if c.Author != user.ID {
		httpError(w, "Only the author can edit a comment", http.StatusForbidden)
		return
	}

	var req updateCommentRequest
	if !api.decode(w, r, &req, "updateCommentHandler", sID) {
		return
	}
	if api.contentRejected(w, r, "updateCommentHandler", sID, req.Content) {
		return
	}

	updated, err := api.db.UpdateComment(r.Context(), c.ID, req.Content)
	if err != nil {
		api.storageError(w, err, "updateCommentHandler", sID)
		return
	}
	api.invalidateTree(updated.Post)

	writeJSON(w, http.StatusOK, updated, "updateCommentHandler", sID)
}

// deleteCommentHandler removes a comment and all of its replies. The comment must exist so the
// principal can be checked against its author.
func (api *API) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	c, err := api.db.Comment(r.Context(), pathID(r))
	if err != nil {
		api.storageError(w, err, "deleteCommentHandler", sID)
		return
	}

	if err := comments.Authorize(user.ID, user.Role, c); err != nil {
		api.storageError(w, err, "deleteCommentHandler", sID)
		return
	}

	removed, err := api.removeComment(r.Context(), c)
	if err != nil {
		log.Warnf("[deleteCommentHandler][%s] cascade from %v stopped after %d removals", sID, c.ID, len(removed))
		api.storageError(w, err, "deleteCommentHandler", sID)
		return
	}

	resp := deleteCommentResponse{Success: true, Message: "Comment deleted", Deleted: removed}
	writeJSON(w, http.StatusOK, resp, "deleteCommentHandler", sID)
	log.Infof("[deleteCommentHandler][%s] %d comments removed starting at %v", sID, len(removed), c.ID)
}
