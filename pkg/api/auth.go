package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"forum/pkg/auth"
	"forum/pkg/logger"
	"forum/pkg/models"
	"forum/pkg/storage"
)

func (api *API) registerHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	var req registerRequest
	if !api.decode(w, r, &req, "registerHandler", sID) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) || errors.Is(err, auth.ErrLongPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[registerHandler][%s] failed to hash password: %v", sID, err)
		return
	}

	user, err := api.db.CreateUser(r.Context(), models.User{
		Username: req.Username,
		Email:    strings.ToLower(req.Email),
		Password: hash,
		Name:     req.Name,
		Role:     models.RoleUser,
	})
	if errors.Is(err, storage.ErrDuplicateUser) {
		httpError(w, "User already exists", http.StatusBadRequest)
		log.Debugf("[registerHandler][%s] duplicate registration for %s", sID, req.Email)
		return
	}
	if err != nil {
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[registerHandler][%s] CreateUser() returned error: %v", sID, err)
		return
	}

	writeJSON(w, http.StatusCreated, user, "registerHandler", sID)
	log.Infof("[registerHandler][%s] user %v registered", sID, user.ID)
}

func (api *API) loginHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	var req loginRequest
	if !api.decode(w, r, &req, "loginHandler", sID) {
		return
	}

	user, err := api.db.UserByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[loginHandler][%s] UserByEmail() returned error: %v", sID, err)
		return
	}
	if err != nil || auth.CheckPassword(user.Password, req.Password) != nil {
		httpError(w, "Invalid email or password", http.StatusUnauthorized)
		log.Debugf("[loginHandler][%s] failed login for %s", sID, req.Email)
		return
	}

	pair, ok := api.issueTokens(w, r, user, "loginHandler", sID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: user, AccessToken: pair.Access}, "loginHandler", sID)
	log.Debugf("[loginHandler][%s] user %v logged in", sID, user.ID)
}

// refreshHandler rotates the refresh token. Presenting a token that is no longer the current one
// revokes the session.
func (api *API) refreshHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		httpError(w, "Refresh token missing", http.StatusUnauthorized)
		log.Debugf("[refreshHandler][%s] request without refresh token", sID)
		return
	}

	userID, tokenID, err := api.tokens.ParseRefresh(c.Value)
	if err != nil {
		httpError(w, "Invalid refresh token", http.StatusUnauthorized)
		log.Debugf("[refreshHandler][%s] rejected refresh token: %v", sID, err)
		return
	}

	user, err := api.db.User(r.Context(), userID)
	if err != nil {
		httpError(w, "Invalid refresh token", http.StatusUnauthorized)
		log.Debugf("[refreshHandler][%s] token owner %v: %v", sID, userID, err)
		return
	}

	if user.RefreshToken == "" || user.RefreshToken != tokenID {
		if err := api.db.SetRefreshToken(r.Context(), user.ID, ""); err != nil {
			log.Errorf("[refreshHandler][%s] failed to revoke session of %v: %v", sID, user.ID, err)
		}
		api.clearAuthCookies(w)
		httpError(w, "Refresh token reuse detected", http.StatusUnauthorized)
		log.Warnf("[refreshHandler][%s] stale refresh token presented for user %v", sID, user.ID)
		return
	}

	pair, ok := api.issueTokens(w, r, user, "refreshHandler", sID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: user, AccessToken: pair.Access}, "refreshHandler", sID)
}

func (api *API) logoutHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	if c, err := r.Cookie(refreshCookie); err == nil {
		if userID, _, err := api.tokens.ParseRefresh(c.Value); err == nil {
			err := api.db.SetRefreshToken(r.Context(), userID, "")
			if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
				log.Errorf("[logoutHandler][%s] failed to revoke session of %v: %v", sID, userID, err)
			}
		}
	}

	api.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"}, "logoutHandler", sID)
}

// issueTokens creates a new token pair, records the refresh token id and sets both cookies.
func (api *API) issueTokens(w http.ResponseWriter, r *http.Request, user models.User, handler, sID string) (auth.Pair, bool) {
	pair, err := api.tokens.Issue(user.ID)
	if err != nil {
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[%s][%s] failed to issue tokens: %v", handler, sID, err)
		return auth.Pair{}, false
	}

	if err := api.db.SetRefreshToken(r.Context(), user.ID, pair.RefreshID); err != nil {
		httpError(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[%s][%s] failed to store refresh token: %v", handler, sID, err)
		return auth.Pair{}, false
	}

	api.setCookie(w, accessCookie, pair.Access, auth.AccessTokenTTL)
	api.setCookie(w, refreshCookie, pair.Refresh, auth.RefreshTokenTTL)

	return pair, true
}

func (api *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   api.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (api *API) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   api.opts.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
