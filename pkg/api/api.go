package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"forum/pkg/auth"
	"forum/pkg/cache"
	"forum/pkg/censor"
	"forum/pkg/comments"
	"forum/pkg/metrics"
	"forum/pkg/models"
	"forum/pkg/storage"
)

const (
	maxPostsLimit        = 100
	maxContributorsLimit = 100

	uuidPattern = "[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}"
)

// Options carries the optional collaborators of the API. Nil values disable the feature.
type Options struct {
	ServiceName   string
	MaxDepth      int
	SecureCookies bool
	CORSOrigin    string

	Trees       *cache.Trees
	Checker     censor.Checker
	KafkaWriter *kafka.Writer
}

type API struct {
	ServiceName string

	r        *mux.Router
	db       storage.Storage
	tokens   *auth.Issuer
	cascade  *comments.Cascade
	validate *validator.Validate
	opts     Options
}

func New(db storage.Storage, tokens *auth.Issuer, opts Options) *API {
	api := API{
		ServiceName: opts.ServiceName,
		r:           mux.NewRouter(),
		db:          db,
		tokens:      tokens,
		cascade:     comments.NewCascade(db),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		opts:        opts,
	}
	api.endpoints()

	return &api
}

func (api *API) Router() *mux.Router {
	return api.r
}

func (api *API) endpoints() {
	api.r.Use(api.requestIDMiddleware)
	api.r.Use(api.headerMiddleware)
	api.r.Use(api.metricsMiddleware)
	if api.opts.KafkaWriter != nil {
		api.r.Use(api.loggingMiddleware(api.opts.KafkaWriter))
	}

	id := "{id:" + uuidPattern + "}"
	staff := []models.Role{models.RoleModerator, models.RoleAdmin}

	api.r.HandleFunc("/auth/register", api.registerHandler).Methods(http.MethodPost)
	api.r.HandleFunc("/auth/login", api.loginHandler).Methods(http.MethodPost)
	api.r.HandleFunc("/auth/refresh", api.refreshHandler).Methods(http.MethodPost)
	api.r.HandleFunc("/auth/logout", api.logoutHandler).Methods(http.MethodPost)

	api.r.HandleFunc("/user/check-username", api.checkUsernameHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/user/top-contributors", api.topContributorsHandler).Methods(http.MethodGet)
	api.r.Handle("/user/me", api.protect(api.meHandler)).Methods(http.MethodGet)
	api.r.Handle("/user/me", api.protect(api.updateMeHandler)).Methods(http.MethodPut)
	api.r.Handle("/user/me", api.protect(api.deleteMeHandler)).Methods(http.MethodDelete)
	api.r.Handle("/user/avatar/"+id, api.protect(api.uploadAvatarHandler)).Methods(http.MethodPost)

	api.r.Handle("/mod/user", api.protect(api.restrictTo(api.listUsersHandler, staff...))).Methods(http.MethodGet)
	api.r.Handle("/mod/user/"+id, api.protect(api.restrictTo(api.deleteUserHandler, models.RoleAdmin))).Methods(http.MethodDelete)
	api.r.Handle("/mod/"+id, api.protect(api.restrictTo(api.moderatePostHandler, staff...))).Methods(http.MethodDelete)
	api.r.Handle("/admin/"+id+"/role", api.protect(api.restrictTo(api.setRoleHandler, models.RoleAdmin))).Methods(http.MethodPatch)

	api.r.HandleFunc("/post", api.postsHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/posts", api.filterPostsHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/post/"+id, api.postHandler).Methods(http.MethodGet)
	api.r.HandleFunc("/post/"+id+"/comments", api.postCommentsHandler).Methods(http.MethodGet)
	api.r.Handle("/post", api.protect(api.createPostHandler)).Methods(http.MethodPost)
	api.r.Handle("/post/"+id, api.protect(api.updatePostHandler)).Methods(http.MethodPut)
	api.r.Handle("/post/"+id, api.protect(api.deletePostHandler)).Methods(http.MethodDelete)
	api.r.Handle("/post/"+id+"/like", api.protect(api.reactionHandler(models.Like))).Methods(http.MethodPut)
	api.r.Handle("/post/"+id+"/dislike", api.protect(api.reactionHandler(models.Dislike))).Methods(http.MethodPut)
	api.r.Handle("/post/"+id+"/images", api.protect(api.uploadPostImagesHandler)).Methods(http.MethodPost)

	api.r.HandleFunc("/comment/get", api.commentsHandler).Methods(http.MethodGet)
	api.r.Handle("/comment", api.protect(api.createCommentHandler)).Methods(http.MethodPost)
	api.r.Handle("/comment/"+id, api.protect(api.updateCommentHandler)).Methods(http.MethodPut)
	api.r.Handle("/comment/"+id, api.protect(api.deleteCommentHandler)).Methods(http.MethodDelete)

	api.r.HandleFunc("/images/{id}", api.imageHandler).Methods(http.MethodGet)
	api.r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api.r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(api.preflightHandler)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// httpError writes a JSON error body with the given status.
func httpError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Success: false, Message: msg})
}

// writeJSON encodes v with the given status. Encoding failures can only be logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, code int, v any, handler, sID string) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[%s][%s] failed to encode response data: %v", handler, sID, err)
	}
}

// decode reads a JSON body into dst and validates it. On failure it answers 400 and returns false.
func (api *API) decode(w http.ResponseWriter, r *http.Request, dst any, handler, sID string) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, "Invalid request body", http.StatusBadRequest)
		log.Debugf("[%s][%s] failed to decode request body: %v", handler, sID, err)
		return false
	}

	if err := api.validate.Struct(dst); err != nil {
		httpError(w, validationMessage(err), http.StatusBadRequest)
		log.Debugf("[%s][%s] request validation failed: %v", handler, sID, err)
		return false
	}

	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param()+" characters")
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// pathID parses the {id} route variable. The route pattern already guarantees the format.
func pathID(r *http.Request) uuid.UUID {
	return uuid.FromStringOrNil(mux.Vars(r)["id"])
}

// contentRejected runs the configured content check over texts. It answers the request and returns
// true when the content is banned or the check fails.
func (api *API) contentRejected(w http.ResponseWriter, r *http.Request, handler, sID string, texts ...string) bool {
	if api.opts.Checker == nil {
		return false
	}

	for _, text := range texts {
		banned, err := api.opts.Checker.Check(r.Context(), text)
		if err != nil {
			httpError(w, "Content check unavailable", http.StatusServiceUnavailable)
			log.Errorf("[%s][%s] content check failed: %v", handler, sID, err)
			return true
		}
		if banned {
			httpError(w, "Content contains forbidden words", http.StatusUnprocessableEntity)
			log.Debugf("[%s][%s] content rejected by censor", handler, sID)
			return true
		}
	}

	return false
}

func (api *API) preflightHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
