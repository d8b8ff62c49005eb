package censor

import (
	"encoding/json"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
)

// Server exposes a Checker over HTTP as POST /check.
type Server struct {
	r       *mux.Router
	checker Checker
}

func NewServer(checker Checker) *Server {
	s := Server{r: mux.NewRouter(), checker: checker}
	s.r.Use(requestIDMiddleware)
	s.r.HandleFunc("/check", s.checkHandler).Methods(http.MethodPost)

	return &s
}

func (s *Server) Router() *mux.Router {
	return s.r
}

func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	var body CheckRequest
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		log.Debugf("[checkHandler][%s] failed to decode request body: %v", sID, err)
		return
	}
	defer r.Body.Close()

	banned, err := s.checker.Check(r.Context(), body.Content)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		log.Errorf("[checkHandler][%s] check failed: %v", sID, err)
		return
	}
	if banned {
		http.Error(w, "Content contains banned words", http.StatusUnprocessableEntity)
		log.Debugf("[checkHandler][%s] content rejected", sID)
		return
	}

	w.WriteHeader(http.StatusOK)
	log.Debugf("[checkHandler][%s] content accepted", sID)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			reqID = id.String()
		}

		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), reqID)))
	})
}
