package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aaqwq/groupscope/pkg/logger"
)

// TestRequestIDHonoursHeader verifies an incoming ID flows to the context
// and response.
func TestRequestIDHonoursHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" {
		t.Errorf("context request ID = %q", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("response header = %q", got)
	}
}

// TestRequestIDGenerates verifies a missing header produces a fresh ID.
func TestRequestIDGenerates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 16 {
		t.Errorf("generated ID = %q, want 16 hex chars", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header %q does not match context %q", got, seen)
	}
}
