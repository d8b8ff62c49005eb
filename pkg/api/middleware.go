package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
	"forum/pkg/metrics"
	"forum/pkg/models"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

type ctxKeyUser struct{}

func (api *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				log.Errorf("[requestIDMiddleware] failed to generate request ID for %v: %v", r.RemoteAddr, err)
				httpError(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			reqID = id.String()
			log.Debugf("[requestIDMiddleware] generated request ID:%s for %v", reqID, r.RemoteAddr)
		}

		w.Header().Set("X-Request-Id", reqID)
		ctx := logger.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (api *API) headerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if origin := api.opts.CORSOrigin; origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		}
		next.ServeHTTP(w, r)
	})
}

func (api *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := logger.New(w)
		next.ServeHTTP(lw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveRequest(r.Method, route, lw.Status(), time.Since(start))
	})
}

func (api *API) loggingMiddleware(kWriter *kafka.Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := logger.New(w)
			defer func() {
				entry := logger.LogEntry{
					Timestamp:  time.Now(),
					IP:         getClientIP(r),
					StatusCode: lw.Status(),
					RequestID:  logger.RequestID(r.Context()),
					UserID:     lw.Header().Get("X-User-Id"),
					Method:     r.Method,
					Path:       r.URL.Path,
					Bytes:      lw.Size(),
					Duration:   time.Since(start).Seconds(),
					Service:    api.ServiceName,
				}
				go publishLogEntry(kWriter, entry)
			}()

			next.ServeHTTP(lw, r)
		})
	}
}

func publishLogEntry(kWriter *kafka.Writer, entry logger.LogEntry) {
	jsonEntry, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("[loggingMiddleware] failed to marshal log entry for request %s", entry.RequestID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = kWriter.WriteMessages(ctx, kafka.Message{Key: []byte(entry.RequestID), Value: jsonEntry})
	if err != nil {
		log.Errorf("[loggingMiddleware] failed to write log to Kafka: %v", err)
		return
	}
	log.Debugf("[loggingMiddleware] log entry sent to Kafka request_id:%s", entry.RequestID)
}

func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}

	return ip
}

// protect admits requests that carry a valid access token, from the accessToken cookie or an
// Authorization bearer header, and puts the token owner into the request context.
func (api *API) protect(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sID := logger.Shorten(logger.RequestID(r.Context()))

		token := bearerToken(r)
		if token == "" {
			httpError(w, "Not authorized, no token", http.StatusUnauthorized)
			log.Debugf("[protect][%s] request without access token from %v", sID, r.RemoteAddr)
			return
		}

		userID, err := api.tokens.ParseAccess(token)
		if err != nil {
			httpError(w, "Not authorized, token failed", http.StatusUnauthorized)
			log.Debugf("[protect][%s] rejected access token: %v", sID, err)
			return
		}

		user, err := api.db.User(r.Context(), userID)
		if err != nil {
			httpError(w, "Not authorized, user not found", http.StatusUnauthorized)
			log.Debugf("[protect][%s] token owner %v: %v", sID, userID, err)
			return
		}

		w.Header().Set("X-User-Id", user.ID.String())
		ctx := context.WithValue(r.Context(), ctxKeyUser{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// restrictTo admits only principals whose role is listed. It must run behind protect.
func (api *API) restrictTo(next http.HandlerFunc, roles ...models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(r.Context())
		if ok {
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
		}

		httpError(w, "Forbidden: insufficient role", http.StatusForbidden)
		log.Debugf("[restrictTo][%s] role %q denied for %s", logger.Shorten(logger.RequestID(r.Context())), user.Role, r.URL.Path)
	}
}

func currentUser(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKeyUser{}).(models.User)
	return u, ok
}

func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
