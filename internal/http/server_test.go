package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"
	"contador/internal/services"
	"contador/internal/storage/memory"
)

type fakeNarrator struct {
	answer string
	err    error
	prompt string
}

func (f *fakeNarrator) Narrate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

type fakeStreamNarrator struct {
	fakeNarrator
	fragments []string
}

func (f *fakeStreamNarrator) NarrateStream(_ context.Context, _ string, yield func(string) error) error {
	for _, frag := range f.fragments {
		if err := yield(frag); err != nil {
			return err
		}
	}
	return nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(ports.SnapshotOptions{})
	s.AddMember(1, "Ana")
	s.AddMember(1, "Luis")
	s.AddIncome(core.Income{FamilyID: 1, Amount: decimal.NewFromInt(50000), Date: core.NewDate(2024, 10, 1), Description: "Sueldo"})

	add := func(date, desc string, amount int64, cat core.Category, method core.PaymentMethod) {
		d, err := core.ParseDate(date)
		if err != nil {
			t.Fatalf("parse date: %v", err)
		}
		if _, err := s.AddTransaction(context.Background(), core.Transaction{
			FamilyID: 1, Amount: decimal.NewFromInt(amount), Date: d,
			Description: desc, Category: cat, PaymentMethod: method,
		}); err != nil {
			t.Fatalf("add transaction: %v", err)
		}
	}
	add("2024-09-04", "supermercado", 1000, core.Almacen, core.Efectivo)
	add("2024-09-12", "nafta", 2000, core.Vehiculos, core.TarjetaCredito)
	add("2024-10-02", "supermercado", 700, core.Almacen, core.Efectivo)
	add("2024-10-09", "Supermercado ", 500, core.Almacen, core.TarjetaDebito)
	add("2024-10-15", "nafta", 2100, core.Vehiculos, core.TarjetaCredito)
	add("2024-10-20", "cine", 400, core.Ocio, core.Efectivo)
	return s
}

func newTestServer(t *testing.T, narrator ports.Narrator, rateLimit int) *Server {
	t.Helper()
	store := seedStore(t)
	snaps := services.NewSnapshotService(store, services.SnapshotServiceConfig{Lookback: 1, RetryAttempts: 1})
	advisor := services.NewAdvisorService(services.AdvisorDeps{
		Transactions: store,
		Members:      store,
		Income:       store,
		Snapshots:    snaps,
		Narrator:     narrator,
	}).WithClock(func() time.Time { return time.Date(2024, 10, 25, 12, 0, 0, 0, time.UTC) })

	srv := NewServer(":0", Deps{
		Advisor:            advisor,
		Snapshots:          snaps,
		RateLimitPerMinute: rateLimit,
		Logger:             log.Discard(),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}
}

func TestContextEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	rec := do(t, srv, http.MethodGet, "/api/families/1/context?year=2024&month=10&q=supermercado", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["period"] != "2024-10" || body["general"] != false {
		t.Fatalf("unexpected header fields %v", body)
	}
	if body["month_total"] != "3700" || body["subtotal"] != "1200" || body["balance"] != "46300" {
		t.Fatalf("unexpected totals month=%v subtotal=%v balance=%v", body["month_total"], body["subtotal"], body["balance"])
	}
	cats, _ := body["categories"].([]any)
	if len(cats) != 1 || cats[0] != core.Almacen.Label() {
		t.Fatalf("unexpected categories %v", body["categories"])
	}
	if body["members"] != float64(2) || body["detail_count"] != float64(2) {
		t.Fatalf("unexpected counts members=%v detail=%v", body["members"], body["detail_count"])
	}
}

func TestContextDefaultsToCurrentPeriod(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	rec := do(t, srv, http.MethodGet, "/api/families/1/context", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["period"] != "2024-10" || body["general"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestContextBadRequests(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	for _, target := range []string{
		"/api/families/abc/context",
		"/api/families/0/context",
		"/api/families/1/context?month=13",
		"/api/families/1/context?year=x",
	} {
		t.Run(target, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, target, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if decode(t, rec)["error"] == nil {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestAskEndpoint(t *testing.T) {
	narrator := &fakeNarrator{answer: "Gastaste $1,200 en Almacén."}
	srv := newTestServer(t, narrator, 0)
	rec := do(t, srv, http.MethodPost, "/api/families/1/ask",
		`{"question":"¿Cuánto gasté en el supermercado?","year":2024,"month":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["answer"] != narrator.answer {
		t.Fatalf("unexpected answer %v", body["answer"])
	}
	if body["transactions_included"] != float64(2) {
		t.Fatalf("unexpected transactions_included %v", body["transactions_included"])
	}
	if _, ok := body["context"].(map[string]any); !ok {
		t.Fatal("expected context in response")
	}
	if !strings.Contains(narrator.prompt, "PREGUNTA: ¿Cuánto gasté en el supermercado?") {
		t.Fatalf("prompt missing question: %q", narrator.prompt)
	}
}

func TestAskWithoutExpenses(t *testing.T) {
	narrator := &fakeNarrator{answer: "El IRPF grava rentas."}
	srv := newTestServer(t, narrator, 0)
	rec := do(t, srv, http.MethodPost, "/api/families/1/ask", `{"question":"¿Qué es el IRPF?","include_expenses":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["transactions_included"] != float64(0) || body["context"] != nil {
		t.Fatalf("expected no context, got %v", body)
	}
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name     string
		narrator ports.Narrator
		body     string
		want     int
	}{
		{"no narrator", nil, `{"question":"hola"}`, http.StatusServiceUnavailable},
		{"empty question", &fakeNarrator{answer: "x"}, `{"question":"   "}`, http.StatusBadRequest},
		{"unknown field", &fakeNarrator{answer: "x"}, `{"question":"hola","foo":1}`, http.StatusBadRequest},
		{"malformed json", &fakeNarrator{answer: "x"}, `{"question":`, http.StatusBadRequest},
		{"bad period", &fakeNarrator{answer: "x"}, `{"question":"hola","year":2024,"month":14}`, http.StatusBadRequest},
		{"narrator failure", &fakeNarrator{err: errors.New("quota")}, `{"question":"hola"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.narrator, 0)
			rec := do(t, srv, http.MethodPost, "/api/families/1/ask", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAskStream(t *testing.T) {
	narrator := &fakeStreamNarrator{fragments: []string{"Hola", " familia"}}
	srv := newTestServer(t, narrator, 0)
	rec := do(t, srv, http.MethodPost, "/api/families/1/ask?stream=true", `{"question":"¿Cómo vamos?","year":2024,"month":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "Hola familia" {
		t.Fatalf("unexpected stream body %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	srv := newTestServer(t, nil, 0)

	rec := do(t, srv, http.MethodPost, "/api/families/1/snapshots?year=2024&month=9", "")
	if rec.Code != http.StatusOK || decode(t, rec)["written"] != float64(2) {
		t.Fatalf("september recompute: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPost, "/api/families/1/snapshots?year=2024&month=10", "")
	if rec.Code != http.StatusOK || decode(t, rec)["written"] != float64(3) {
		t.Fatalf("october recompute: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/families/1/comparison?year=2024&month=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("comparison: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	metrics, _ := body["metrics"].([]any)
	if len(metrics) != 3 || body["lookback"] != float64(1) {
		t.Fatalf("unexpected comparison %v", body)
	}
	withPrior := 0
	for _, m := range metrics {
		if m.(map[string]any)["prior"] != nil {
			withPrior++
		}
	}
	if withPrior != 2 {
		t.Fatalf("expected 2 categories with a prior, got %d", withPrior)
	}

	rec = do(t, srv, http.MethodDelete, "/api/families/1/snapshots", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("rollback without period: got %d, want 400", rec.Code)
	}
	rec = do(t, srv, http.MethodDelete, "/api/families/1/snapshots?year=2024&month=10", "")
	if rec.Code != http.StatusOK || decode(t, rec)["removed"] != float64(3) {
		t.Fatalf("rollback: %d %s", rec.Code, rec.Body.String())
	}
}

func TestComparisonRefreshAndLookback(t *testing.T) {
	srv := newTestServer(t, nil, 0)

	rec := do(t, srv, http.MethodGet, "/api/families/1/comparison?year=2024&month=10&refresh=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("comparison: %d %s", rec.Code, rec.Body.String())
	}
	if metrics, _ := decode(t, rec)["metrics"].([]any); len(metrics) != 3 {
		t.Fatalf("expected refreshed metrics, got %s", rec.Body.String())
	}

	for _, lb := range []string{"0", "25", "x"} {
		rec := do(t, srv, http.MethodGet, "/api/families/1/comparison?year=2024&month=10&lookback="+lb, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("lookback=%s: got %d, want 400", lb, rec.Code)
		}
	}
}

func TestRecomputeAsyncRunsInlineWithoutBroker(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	rec := do(t, srv, http.MethodPost, "/api/families/1/snapshots?year=2024&month=10&async=true", "")
	if rec.Code != http.StatusAccepted || decode(t, rec)["status"] != "accepted" {
		t.Fatalf("async recompute: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/api/families/1/comparison?year=2024&month=10", "")
	if metrics, _ := decode(t, rec)["metrics"].([]any); len(metrics) != 3 {
		t.Fatalf("expected inline recompute to have written rows, got %s", rec.Body.String())
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	srv := newTestServer(t, nil, 2)
	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodPost, "/api/families/1/snapshots?year=2024&month=10", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i+1, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodPost, "/api/families/1/snapshots?year=2024&month=10", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third write: got %d, want 429", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	if rec := do(t, srv, http.MethodPut, "/api/families/1/snapshots", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got %d, want 405", rec.Code)
	}
}
