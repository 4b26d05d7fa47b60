package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"contador/internal/aggregate"
	"contador/internal/classify"
	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/narrative"
	"contador/internal/ports"
)

// ErrNoNarrator is returned by Ask when no text generator is configured.
var ErrNoNarrator = errors.New("no narrator configured")

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("empty question")

// AdvisorDeps are the collaborators of the advisor. Income, Snapshots,
// Narrator and Library are optional.
type AdvisorDeps struct {
	Transactions ports.TransactionLister
	Members      ports.MemberCounter
	Income       ports.IncomeReader
	Snapshots    *SnapshotService
	Detector     *classify.Detector
	Aggregator   *aggregate.Aggregator
	Narrator     ports.Narrator
	Library      *narrative.Library
}

// AdvisorService builds financial contexts and answers questions about them.
type AdvisorService struct {
	deps   AdvisorDeps
	now    func() time.Time
	logger *log.Logger
}

func NewAdvisorService(deps AdvisorDeps) *AdvisorService {
	if deps.Detector == nil {
		deps.Detector = classify.Default()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregate.NewAggregator(log.For(log.ComponentAggregate))
	}
	return &AdvisorService{
		deps:   deps,
		now:    time.Now,
		logger: log.For(log.ComponentAdvisor),
	}
}

// WithClock replaces the clock used to pick the default period.
func (s *AdvisorService) WithClock(now func() time.Time) *AdvisorService {
	s.now = now
	return s
}

// CurrentPeriod is the month the advisor considers "this month".
func (s *AdvisorService) CurrentPeriod() core.Period {
	return core.CurrentPeriod(s.now())
}

// BuildContext gathers the period's ledger and turns it into a complete
// financial context for query. Snapshot failures degrade the comparison
// but never fail the call.
func (s *AdvisorService) BuildContext(ctx context.Context, familyID int64, period core.Period, query string) (core.FinancialContext, error) {
	if familyID <= 0 {
		return core.FinancialContext{}, core.ErrInvalidFamily
	}
	if err := period.Validate(); err != nil {
		return core.FinancialContext{}, err
	}

	var txs []core.Transaction
	var members int
	income := decimal.Zero
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.deps.Transactions.ListTransactions(gctx, familyID, period.Start(), period.End())
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		members, err = s.deps.Members.CountMembers(gctx, familyID)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		return nil
	})
	if s.deps.Income != nil {
		g.Go(func() error {
			var err error
			income, err = s.deps.Income.IncomeTotal(gctx, familyID, period)
			if err != nil {
				return fmt.Errorf("sum income: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.FinancialContext{}, err
	}
	s.logger.DebugContext(ctx, "Loaded period ledger",
		log.FieldOperation, log.OpList,
		log.FieldFamilyID, familyID,
		log.FieldYear, period.Year,
		log.FieldMonth, period.Month,
		log.FieldCount, len(txs),
		"members", members)

	cats := s.deps.Detector.Detect(query)
	summary := s.deps.Aggregator.Build(txs, cats, members)

	fc := core.FinancialContext{
		FamilyID:    familyID,
		Period:      period,
		Query:       query,
		Categories:  cats,
		Summary:     summary,
		IncomeTotal: income,
		Balance:     income.Sub(summary.Totals.MonthTotal),
	}

	if s.deps.Snapshots != nil {
		metrics, err := s.deps.Snapshots.RecomputeAndCompare(ctx, familyID, period)
		if err != nil {
			s.logger.WarnContext(ctx, "Monthly comparison unavailable",
				log.FieldOperation, log.OpCompare,
				log.FieldFamilyID, familyID,
				log.FieldYear, period.Year,
				log.FieldMonth, period.Month,
				log.FieldError, err)
		} else {
			fc.Comparison = metrics
			fc.ComparisonAvailable = true
		}
	}
	return fc, nil
}

// AskRequest is a question about a family's finances.
type AskRequest struct {
	FamilyID int64
	Question string
	// Period defaults to the current month when zero.
	Period          core.Period
	IncludeExpenses bool
}

// AskResponse is the narrated answer plus what went into it.
type AskResponse struct {
	Answer               string
	KnowledgeFile        string
	TransactionsIncluded int
	Context              *core.FinancialContext
}

// Prepare selects knowledge, builds the context when requested and renders
// the prompt without calling the narrator.
func (s *AdvisorService) Prepare(ctx context.Context, req AskRequest) (prompt string, resp AskResponse, err error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", AskResponse{}, ErrEmptyQuestion
	}
	if req.Period == (core.Period{}) {
		req.Period = s.CurrentPeriod()
	}

	var knowledge string
	if s.deps.Library != nil {
		knowledge, resp.KnowledgeFile, err = s.deps.Library.Select(question)
		if err != nil {
			return "", AskResponse{}, err
		}
	}

	var data string
	if req.IncludeExpenses {
		fc, err := s.BuildContext(ctx, req.FamilyID, req.Period, question)
		if err != nil {
			return "", AskResponse{}, err
		}
		resp.Context = &fc
		resp.TransactionsIncluded = fc.Summary.Detail.Count
		data = narrative.RenderData(fc)
	}

	prompt = narrative.BuildPrompt(question, knowledge, data)
	s.logger.InfoContext(ctx, "Prompt prepared",
		log.FieldFamilyID, req.FamilyID,
		log.FieldQuestion, question,
		log.FieldKnowledge, resp.KnowledgeFile,
		log.FieldCount, resp.TransactionsIncluded,
		"include_expenses", req.IncludeExpenses,
		"prompt_chars", len(prompt))
	return prompt, resp, nil
}

// Ask answers a question, optionally grounded on the family's current data.
func (s *AdvisorService) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	if s.deps.Narrator == nil {
		return AskResponse{}, ErrNoNarrator
	}
	prompt, resp, err := s.Prepare(ctx, req)
	if err != nil {
		return AskResponse{}, err
	}
	answer, err := s.deps.Narrator.Narrate(ctx, prompt)
	if err != nil {
		return AskResponse{}, fmt.Errorf("narrate: %w", err)
	}
	resp.Answer = answer
	return resp, nil
}

// AskStream is Ask with the answer delivered in fragments. The returned
// response carries the full answer once the stream completes.
func (s *AdvisorService) AskStream(ctx context.Context, req AskRequest, yield func(fragment string) error) (AskResponse, error) {
	streamer, ok := s.deps.Narrator.(ports.StreamNarrator)
	if !ok {
		resp, err := s.Ask(ctx, req)
		if err != nil {
			return AskResponse{}, err
		}
		return resp, yield(resp.Answer)
	}
	prompt, resp, err := s.Prepare(ctx, req)
	if err != nil {
		return AskResponse{}, err
	}
	var b strings.Builder
	err = streamer.NarrateStream(ctx, prompt, func(fragment string) error {
		b.WriteString(fragment)
		return yield(fragment)
	})
	if err != nil {
		return AskResponse{}, err
	}
	resp.Answer = strings.TrimSpace(b.String())
	return resp, nil
}
