package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseLogger(t *testing.T) {
	rr := httptest.NewRecorder()
	lw := New(rr)

	if lw.Status() != http.StatusOK {
		t.Errorf("want default status %d, got %d", http.StatusOK, lw.Status())
	}

	lw.Header().Set("X-Test", "1")
	lw.WriteHeader(http.StatusTeapot)
	if _, err := lw.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lw.Status() != http.StatusTeapot || rr.Code != http.StatusTeapot {
		t.Errorf("want status %d, got logger %d recorder %d", http.StatusTeapot, lw.Status(), rr.Code)
	}
	if lw.Size() != 5 {
		t.Errorf("want 5 bytes written, got %d", lw.Size())
	}
	if rr.Header().Get("X-Test") != "1" {
		t.Error("header was not passed through")
	}
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("want empty request id, got %q", got)
	}

	ctx = WithRequestID(ctx, "9b4f6c5d-1a32-4d8f-b5a6-23c9e1f7d2a1")
	if got := RequestID(ctx); got != "9b4f6c5d-1a32-4d8f-b5a6-23c9e1f7d2a1" {
		t.Errorf("want stored request id, got %q", got)
	}
}

func TestShorten(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abcdef", "abcdef"},
		{"abcdefg", "abcdef..."},
	}
	for _, tt := range tests {
		if got := Shorten(tt.in); got != tt.want {
			t.Errorf("Shorten(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
