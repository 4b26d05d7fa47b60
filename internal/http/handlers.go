package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/services"
)

// maxLookback caps the comparison window accepted from clients.
const maxLookback = 24

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidFamily),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, services.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoNarrator):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, op, log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")))
		msg = "internal error"
	}
	writeError(w, status, msg)
}

// GET /api/families/{id}/context?year=&month=&q=
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseFamilyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	period, err := parsePeriod(r, s.advisor.CurrentPeriod())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := sanitizeInput(r.URL.Query().Get("q"))

	fc, err := s.advisor.BuildContext(r.Context(), familyID, period, query)
	if err != nil {
		s.fail(w, r, log.OpAggregate, err)
		return
	}
	writeJSON(w, http.StatusOK, newContextView(fc))
}

type askRequest struct {
	Question        string `json:"question"`
	Year            int    `json:"year,omitempty"`
	Month           int    `json:"month,omitempty"`
	IncludeExpenses *bool  `json:"include_expenses,omitempty"`
}

type askView struct {
	Answer               string       `json:"answer"`
	KnowledgeFile        string       `json:"knowledge_file,omitempty"`
	TransactionsIncluded int          `json:"transactions_included"`
	Context              *contextView `json:"context,omitempty"`
}

func newAskView(resp services.AskResponse) askView {
	v := askView{
		Answer:               resp.Answer,
		KnowledgeFile:        resp.KnowledgeFile,
		TransactionsIncluded: resp.TransactionsIncluded,
	}
	if resp.Context != nil {
		cv := newContextView(*resp.Context)
		v.Context = &cv
	}
	return v
}

// POST /api/families/{id}/ask[?stream=true]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseFamilyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body askRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := services.AskRequest{
		FamilyID:        familyID,
		Question:        sanitizeInput(body.Question),
		IncludeExpenses: body.IncludeExpenses == nil || *body.IncludeExpenses,
	}
	if body.Year != 0 || body.Month != 0 {
		req.Period = core.Period{Year: body.Year, Month: body.Month}
		if err := req.Period.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if parseBoolParam(r, "stream") {
		s.streamAsk(w, r, req)
		return
	}

	resp, err := s.advisor.Ask(r.Context(), req)
	if err != nil {
		s.fail(w, r, log.OpNarrate, err)
		return
	}
	writeJSON(w, http.StatusOK, newAskView(resp))
}

// streamAsk writes the answer as plain text, flushing each fragment.
func (s *Server) streamAsk(w http.ResponseWriter, r *http.Request, req services.AskRequest) {
	flusher, _ := w.(http.Flusher)
	started := false
	_, err := s.advisor.AskStream(r.Context(), req, func(fragment string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err == nil {
		return
	}
	if !started {
		s.fail(w, r, log.OpNarrate, err)
		return
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "Answer stream interrupted",
		log.FieldFamilyID, req.FamilyID,
		log.FieldError, err)
}

type comparisonView struct {
	FamilyID int64        `json:"family_id"`
	Period   string       `json:"period"`
	Lookback int          `json:"lookback"`
	Metrics  []metricView `json:"metrics"`
}

// GET /api/families/{id}/comparison?year=&month=&lookback=&refresh=
func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	familyID, period, ok := s.familyPeriod(w, r)
	if !ok {
		return
	}
	lookback, err := parseIntParam(r, "lookback", s.snapshots.Lookback())
	if err != nil || lookback < 1 || lookback > maxLookback {
		writeError(w, http.StatusBadRequest, "lookback must be between 1 and 24")
		return
	}

	if parseBoolParam(r, "refresh") {
		if _, err := s.snapshots.Recompute(r.Context(), familyID, period); err != nil {
			s.fail(w, r, log.OpUpsert, err)
			return
		}
	}
	metrics, err := s.snapshots.Compare(r.Context(), familyID, period, lookback)
	if err != nil {
		s.fail(w, r, log.OpCompare, err)
		return
	}
	writeJSON(w, http.StatusOK, comparisonView{
		FamilyID: familyID,
		Period:   period.String(),
		Lookback: lookback,
		Metrics:  newMetricViews(metrics),
	})
}

type snapshotView struct {
	FamilyID int64  `json:"family_id"`
	Period   string `json:"period"`
	Status   string `json:"status"`
	Written  *int   `json:"written,omitempty"`
	Removed  *int   `json:"removed,omitempty"`
}

// POST /api/families/{id}/snapshots?year=&month=&async=
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	familyID, period, ok := s.familyPeriod(w, r)
	if !ok {
		return
	}
	if parseBoolParam(r, "async") {
		if err := s.snapshots.RequestRecompute(r.Context(), familyID, period); err != nil {
			s.fail(w, r, log.OpUpsert, err)
			return
		}
		writeJSON(w, http.StatusAccepted, snapshotView{FamilyID: familyID, Period: period.String(), Status: "accepted"})
		return
	}
	n, err := s.snapshots.Recompute(r.Context(), familyID, period)
	if err != nil {
		s.fail(w, r, log.OpUpsert, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView{FamilyID: familyID, Period: period.String(), Status: "recomputed", Written: &n})
}

// DELETE /api/families/{id}/snapshots?year=&month=
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	familyID, period, ok := s.familyPeriod(w, r)
	if !ok {
		return
	}
	// A rollback must name its period explicitly.
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("year")) == "" || strings.TrimSpace(q.Get("month")) == "" {
		writeError(w, http.StatusBadRequest, "year and month are required")
		return
	}
	n, err := s.snapshots.Rollback(r.Context(), familyID, period)
	if err != nil {
		s.fail(w, r, log.OpRollback, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView{FamilyID: familyID, Period: period.String(), Status: "rolled_back", Removed: &n})
}

func (s *Server) familyPeriod(w http.ResponseWriter, r *http.Request) (int64, core.Period, bool) {
	familyID, err := parseFamilyID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, core.Period{}, false
	}
	period, err := parsePeriod(r, s.advisor.CurrentPeriod())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, core.Period{}, false
	}
	return familyID, period, true
}
