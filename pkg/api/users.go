package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
	"forum/pkg/models"
	"forum/pkg/storage"
)

func (api *API) meHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	writeJSON(w, http.StatusOK, user, "meHandler", sID)
}

// updateMeHandler changes profile fields. Role and password are not part of the request body and
// can never be changed here.
func (api *API) updateMeHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	var req updateMeRequest
	if !api.decode(w, r, &req, "updateMeHandler", sID) {
		return
	}
	if req.Email != nil {
		email := strings.ToLower(*req.Email)
		req.Email = &email
	}

	updated, err := api.db.UpdateUser(r.Context(), user.ID, storage.UserUpdate{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
	})
	if errors.Is(err, storage.ErrDuplicateUser) {
		httpError(w, "Username or email already taken", http.StatusBadRequest)
		return
	}
	if err != nil {
		api.storageError(w, err, "updateMeHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, updated, "updateMeHandler", sID)
}

func (api *API) deleteMeHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	user, _ := currentUser(r.Context())

	if err := api.removeUser(r.Context(), user); err != nil {
		api.storageError(w, err, "deleteMeHandler", sID)
		return
	}

	api.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Account deleted"}, "deleteMeHandler", sID)
	log.Infof("[deleteMeHandler][%s] user %v deleted own account", sID, user.ID)
}

func (api *API) checkUsernameHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		httpError(w, "Empty username parameter", http.StatusBadRequest)
		return
	}

	_, err := api.db.UserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		api.storageError(w, err, "checkUsernameHandler", sID)
		return
	}

	resp := usernameResponse{Username: username, Available: errors.Is(err, storage.ErrUserNotFound)}
	writeJSON(w, http.StatusOK, resp, "checkUsernameHandler", sID)
}

func (api *API) topContributorsHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > maxContributorsLimit {
		httpError(w, "Limit parameter is too big", http.StatusBadRequest)
		log.Debugf("[topContributorsHandler][%s] request with too big limit parameter", sID)
		return
	}

	top, err := api.db.TopContributors(r.Context(), limit)
	if err != nil {
		api.storageError(w, err, "topContributorsHandler", sID)
		return
	}

	resp := make([]contributorResponse, 0, len(top))
	for _, c := range top {
		resp = append(resp, contributorResponse{User: c.User, Comments: c.Comments, Posts: c.Posts})
	}
	writeJSON(w, http.StatusOK, resp, "topContributorsHandler", sID)
}

func (api *API) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	users, err := api.db.Users(r.Context())
	if err != nil {
		api.storageError(w, err, "listUsersHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, users, "listUsersHandler", sID)
}

func (api *API) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	admin, _ := currentUser(r.Context())

	target, err := api.db.User(r.Context(), pathID(r))
	if err != nil {
		api.storageError(w, err, "deleteUserHandler", sID)
		return
	}

	if err := api.removeUser(r.Context(), target); err != nil {
		api.storageError(w, err, "deleteUserHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "User deleted"}, "deleteUserHandler", sID)
	log.Infof("[deleteUserHandler][%s] admin %v deleted user %v", sID, admin.ID, target.ID)
}

func (api *API) setRoleHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	var req roleRequest
	if !api.decode(w, r, &req, "setRoleHandler", sID) {
		return
	}

	user, err := api.db.SetUserRole(r.Context(), pathID(r), req.Role)
	if err != nil {
		api.storageError(w, err, "setRoleHandler", sID)
		return
	}

	writeJSON(w, http.StatusOK, user, "setRoleHandler", sID)
	log.Infof("[setRoleHandler][%s] user %v is now %s", sID, user.ID, user.Role)
}

func (api *API) uploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))
	principal, _ := currentUser(r.Context())

	targetID := pathID(r)
	if targetID != principal.ID && principal.Role != models.RoleAdmin {
		httpError(w, "Cannot change another user's avatar", http.StatusForbidden)
		return
	}

	target, err := api.db.User(r.Context(), targetID)
	if err != nil {
		api.storageError(w, err, "uploadAvatarHandler", sID)
		return
	}

	ids, ok := api.saveUploadedImages(w, r, "avatar", 1, "uploadAvatarHandler", sID)
	if !ok {
		return
	}

	user, err := api.db.SetUserAvatar(r.Context(), target.ID, ids[0])
	if err != nil {
		api.storageError(w, err, "uploadAvatarHandler", sID)
		return
	}
	if target.Avatar != "" {
		if err := api.db.DeleteImage(r.Context(), target.Avatar); err != nil && !errors.Is(err, storage.ErrImageNotFound) {
			log.Warnf("[uploadAvatarHandler][%s] failed to remove previous avatar %s: %v", sID, target.Avatar, err)
		}
	}

	writeJSON(w, http.StatusOK, user, "uploadAvatarHandler", sID)
}
