package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sync/singleflight"

	"contador/internal/analytics"
	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"
)

// DefaultLookback is the number of earlier months searched for a prior snapshot.
const DefaultLookback = 1

// RecomputePublisher hands a recompute request to an asynchronous worker.
type RecomputePublisher interface {
	PublishRecompute(ctx context.Context, familyID int64, period core.Period) error
}

// SnapshotServiceConfig tunes retries and the default comparison window.
type SnapshotServiceConfig struct {
	Lookback      int
	RetryAttempts uint
	RetryDelay    time.Duration
	// Timeout bounds one recompute, retries included.
	Timeout time.Duration
}

func DefaultSnapshotServiceConfig() SnapshotServiceConfig {
	return SnapshotServiceConfig{
		Lookback:      DefaultLookback,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
		Timeout:       30 * time.Second,
	}
}

// SnapshotService maintains monthly snapshots and compares periods.
// Concurrent recomputes of the same family and period share one store call.
type SnapshotService struct {
	store     ports.SnapshotStore
	publisher RecomputePublisher
	config    SnapshotServiceConfig
	group     singleflight.Group
	logger    *log.Logger
}

func NewSnapshotService(store ports.SnapshotStore, config SnapshotServiceConfig) *SnapshotService {
	if config.Lookback < 1 {
		config.Lookback = DefaultLookback
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &SnapshotService{
		store:  store,
		config: config,
		logger: log.For(log.ComponentSnapshot),
	}
}

// WithPublisher enables asynchronous recompute requests.
func (s *SnapshotService) WithPublisher(p RecomputePublisher) *SnapshotService {
	s.publisher = p
	return s
}

// Lookback is the configured default comparison window.
func (s *SnapshotService) Lookback() int { return s.config.Lookback }

// Recompute rebuilds the period's snapshot rows from the ledger and returns
// how many categories were written.
func (s *SnapshotService) Recompute(ctx context.Context, familyID int64, period core.Period) (int, error) {
	if familyID <= 0 {
		return 0, core.ErrInvalidFamily
	}
	if err := period.Validate(); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%d:%s", familyID, period)
	ch := s.group.DoChan(key, func() (any, error) {
		// Joined callers must not inherit the cancellation of whoever
		// started the call.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Timeout)
		defer cancel()
		var written int
		err := retry.Do(
			func() error {
				var err error
				written, err = s.store.UpsertPeriod(wctx, familyID, period)
				return err
			},
			retry.RetryIf(isTransient),
			retry.Context(wctx),
			retry.Attempts(s.config.RetryAttempts),
			retry.Delay(s.config.RetryDelay),
			retry.LastErrorOnly(true),
		)
		return written, err
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, fmt.Errorf("upsert snapshots %s: %w", period, res.Err)
		}
		if res.Shared {
			s.logger.DebugContext(ctx, "Joined in-flight snapshot recompute",
				log.FieldFamilyID, familyID,
				log.FieldYear, period.Year,
				log.FieldMonth, period.Month)
		}
		return res.Val.(int), nil
	}
}

// RequestRecompute publishes the recompute when a publisher is configured
// and falls back to recomputing inline otherwise.
func (s *SnapshotService) RequestRecompute(ctx context.Context, familyID int64, period core.Period) error {
	if err := period.Validate(); err != nil {
		return err
	}
	if s.publisher != nil {
		err := s.publisher.PublishRecompute(ctx, familyID, period)
		if err == nil {
			return nil
		}
		s.logger.WarnContext(ctx, "Failed to publish recompute, running inline",
			log.FieldFamilyID, familyID,
			log.FieldError, err)
	}
	_, err := s.Recompute(ctx, familyID, period)
	return err
}

// Compare reads the window [period-lookback, period] and compares each
// category of period against its latest earlier row. lookback < 1 uses the
// configured default.
func (s *SnapshotService) Compare(ctx context.Context, familyID int64, period core.Period, lookback int) ([]core.CategoryMetric, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if lookback < 1 {
		lookback = s.config.Lookback
	}
	rows, err := s.store.ListSnapshots(ctx, familyID, period.AddMonths(-lookback), period)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return analytics.Compare(rows, period, lookback), nil
}

// Rollback deletes every snapshot row of the period.
func (s *SnapshotService) Rollback(ctx context.Context, familyID int64, period core.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	n, err := s.store.DeletePeriod(ctx, familyID, period)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots %s: %w", period, err)
	}
	s.logger.InfoContext(ctx, "Rolled back snapshot period",
		log.FieldOperation, log.OpRollback,
		log.FieldFamilyID, familyID,
		log.FieldYear, period.Year,
		log.FieldMonth, period.Month,
		log.FieldCount, n)
	return n, nil
}

// RecomputeAndCompare upserts the period then compares it, the sequence the
// advisor runs for every context.
func (s *SnapshotService) RecomputeAndCompare(ctx context.Context, familyID int64, period core.Period) ([]core.CategoryMetric, error) {
	if _, err := s.Recompute(ctx, familyID, period); err != nil {
		return nil, err
	}
	return s.Compare(ctx, familyID, period, 0)
}

// isTransient reports lock contention, the only store failure a retry can clear.
func isTransient(err error) bool {
	return errors.Is(err, ports.ErrBusy)
}
