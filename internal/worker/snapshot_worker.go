// Package worker keeps monthly snapshots current outside the request path.
package worker

import (
	"context"
	"fmt"
	"time"

	"contador/internal/amqp"
	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"
	"contador/internal/services"
)

// SnapshotWorker recomputes snapshots on request and on a schedule.
type SnapshotWorker struct {
	snapshots *services.SnapshotService
	families  ports.FamilyLister
	now       func() time.Time
	logger    *log.Logger
}

func NewSnapshotWorker(snapshots *services.SnapshotService, families ports.FamilyLister) *SnapshotWorker {
	return &SnapshotWorker{
		snapshots: snapshots,
		families:  families,
		now:       time.Now,
		logger:    log.For(log.ComponentWorker),
	}
}

// HandleRecomputeMessage processes a single recompute message from AMQP.
func (w *SnapshotWorker) HandleRecomputeMessage(ctx context.Context, msg *amqp.SnapshotRecomputeMessage) error {
	period := msg.Period()
	w.logger.InfoContext(ctx, "Processing recompute message",
		log.FieldFamilyID, msg.FamilyID,
		log.FieldYear, period.Year,
		log.FieldMonth, period.Month,
		"reason", msg.Reason)

	n, err := w.snapshots.Recompute(ctx, msg.FamilyID, period)
	if err != nil {
		return fmt.Errorf("recompute %d/%s: %w", msg.FamilyID, period, err)
	}
	w.logger.InfoContext(ctx, "Recomputed snapshots",
		log.FieldFamilyID, msg.FamilyID,
		log.FieldCount, n)
	return nil
}

// RefreshResult summarizes one refresh pass.
type RefreshResult struct {
	Families int
	Periods  int
	Errors   int
}

// RefreshPeriods recomputes the given periods for every family with data.
// A failing family is logged and counted; the pass continues.
func (w *SnapshotWorker) RefreshPeriods(ctx context.Context, periods ...core.Period) (RefreshResult, error) {
	fams, err := w.families.ListFamilies(ctx)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("list families: %w", err)
	}
	res := RefreshResult{Families: len(fams)}
	for _, fam := range fams {
		for _, p := range periods {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if _, err := w.snapshots.Recompute(ctx, fam, p); err != nil {
				w.logger.ErrorContext(ctx, "Snapshot refresh failed",
					log.FieldFamilyID, fam,
					log.FieldYear, p.Year,
					log.FieldMonth, p.Month,
					log.FieldError, err)
				res.Errors++
				continue
			}
			res.Periods++
		}
	}
	return res, nil
}

// RefreshCurrentPeriod recomputes the current month for every family.
func (w *SnapshotWorker) RefreshCurrentPeriod(ctx context.Context) (RefreshResult, error) {
	return w.RefreshPeriods(ctx, core.CurrentPeriod(w.now()))
}

// StartupRefresh recomputes the current and previous months so the first
// comparison after downtime has a prior period to read.
func (w *SnapshotWorker) StartupRefresh(ctx context.Context) error {
	current := core.CurrentPeriod(w.now())
	res, err := w.RefreshPeriods(ctx, current.Prev(), current)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Startup refresh completed",
		log.FieldOperation, log.OpStartup,
		"families", res.Families,
		"periods", res.Periods,
		"errors", res.Errors)
	return nil
}

// Run refreshes the current period every interval until ctx is done.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RefreshCurrentPeriod(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic refresh failed", log.FieldError, err)
			}
		}
	}
}
