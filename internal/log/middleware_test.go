package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFamilyFromPath(t *testing.T) {
	tests := []struct {
		path string
		want int64
		ok   bool
	}{
		{"/api/families/12/context", 12, true},
		{"/api/families/3", 3, true},
		{"/api/families/0/context", 0, false},
		{"/api/families/abc/ask", 0, false},
		{"/healthz", 0, false},
	}
	for _, tt := range tests {
		got, ok := FamilyFromPath(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FamilyFromPath(%q) = %d, %v; want %d, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequestIDMiddlewareScopesLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Handler: slog.NewTextHandler(&buf, nil)})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	})
	chain := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(h))

	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/families/7/context", nil))

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "family_id=7", "component=http"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %q: %s", want, out)
		}
	}
}
