package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contador/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var seen string
	m := NewMiddleware(log.Discard(), nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("expected generated request id, got %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("response header %q does not match context id %q", rec.Header().Get(RequestIDHeader), seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not propagated: %d", rec.Code)
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Fatalf("expected 1 request counted, got %d", got)
	}
}

func TestIncomingRequestID(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"abc-123", "abc-123"},
		{"", ""},
		{"has space", ""},
		{strings.Repeat("x", 65), ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, tt.header)
		if got := incomingRequestID(r); got != tt.want {
			t.Errorf("incomingRequestID(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if id := GetRequestID(t.Context()); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}
