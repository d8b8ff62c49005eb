// Package logger carries request-scoped logging helpers shared by the HTTP services.
package logger

import (
	"context"
	"net/http"
	"time"
)

// ResponseLogger wraps a ResponseWriter and remembers the status code written to it.
type ResponseLogger struct {
	w      http.ResponseWriter
	status int
	bytes  int
}

func New(w http.ResponseWriter) *ResponseLogger {
	return &ResponseLogger{w: w, status: http.StatusOK}
}

func (l *ResponseLogger) WriteHeader(code int) {
	l.status = code
	l.w.WriteHeader(code)
}

func (l *ResponseLogger) Write(b []byte) (int, error) {
	n, err := l.w.Write(b)
	l.bytes += n
	return n, err
}

func (l *ResponseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *ResponseLogger) Status() int {
	return l.status
}

func (l *ResponseLogger) Size() int {
	return l.bytes
}

// LogEntry is the request record published to the log topic and indexed by logkeeper.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	IP         string    `json:"ip"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Bytes      int       `json:"bytes"`
	Duration   float64   `json:"duration_sec"`
	Service    string    `json:"service"`
}

// DocumentID identifies the entry in the search index.
func (e LogEntry) DocumentID() string {
	return e.Service + e.RequestID
}

type ctxKeyRequestID struct{}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

// RequestID extracts the request ID from the context.
// It returns the request ID as a string if present, otherwise returns an empty string.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID{}).(string); ok {
		return v
	}
	return ""
}

// Shorten truncates a string to 6 characters if it is longer than 6 and appends '...',
// otherwise it returns the string unchanged.
func Shorten(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
