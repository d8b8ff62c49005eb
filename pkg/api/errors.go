package api

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"forum/pkg/comments"
	"forum/pkg/storage"
)

// storageError answers the request with the status matching err and logs it. Unexpected errors
// become a generic 500.
func (api *API) storageError(w http.ResponseWriter, err error, handler, sID string) {
	var cerr *comments.ConsistencyError

	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		httpError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrPostNotFound):
		httpError(w, "Post not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrCommentNotFound):
		httpError(w, "Comment not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrImageNotFound):
		httpError(w, "Image not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrParentCommentNotFound):
		httpError(w, "Parent comment not found in this post", http.StatusBadRequest)
	case errors.Is(err, storage.ErrPostIDNotProvided):
		httpError(w, "Post ID not provided", http.StatusBadRequest)
	case errors.Is(err, storage.ErrTooManyImages):
		httpError(w, "Post already has the maximum number of images", http.StatusBadRequest)
	case errors.Is(err, storage.ErrDuplicateUser):
		httpError(w, "User already exists", http.StatusBadRequest)
	case errors.Is(err, comments.ErrForbidden):
		httpError(w, "Not allowed to modify this resource", http.StatusForbidden)
	case errors.As(err, &cerr):
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[%s][%s] inconsistent comment data: %v", handler, sID, err)
		return
	default:
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[%s][%s] %v", handler, sID, err)
		return
	}

	log.Debugf("[%s][%s] %v", handler, sID, err)
}
