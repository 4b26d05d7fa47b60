package backend

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"
	"contador/internal/storage/memory"
)

// sheetSource is the read side of a spreadsheet ledger.
type sheetSource interface {
	ports.TransactionLister
	ports.MemberCounter
	FamilyID() int64
}

// sheetLedger serves transactions and members live from a spreadsheet and
// keeps snapshots and incomes in memory. Each upsert first copies the
// period's rows from the sheet so snapshots reflect the sheet as of that call.
type sheetLedger struct {
	sheet  sheetSource
	store  *memory.Store
	logger *log.Logger
}

var _ ports.Ledger = (*sheetLedger)(nil)

func newSheetLedger(sheet sheetSource, store *memory.Store) *sheetLedger {
	return &sheetLedger{sheet: sheet, store: store, logger: log.For(log.ComponentBackend)}
}

func (l *sheetLedger) ListFamilies(_ context.Context) ([]int64, error) {
	return []int64{l.sheet.FamilyID()}, nil
}

func (l *sheetLedger) ListTransactions(ctx context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	return l.sheet.ListTransactions(ctx, familyID, from, to)
}

func (l *sheetLedger) CountMembers(ctx context.Context, familyID int64) (int, error) {
	return l.sheet.CountMembers(ctx, familyID)
}

func (l *sheetLedger) IncomeTotal(ctx context.Context, familyID int64, period core.Period) (decimal.Decimal, error) {
	return l.store.IncomeTotal(ctx, familyID, period)
}

func (l *sheetLedger) UpsertPeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	txs, err := l.sheet.ListTransactions(ctx, familyID, period.Start(), period.End())
	if err != nil {
		return 0, fmt.Errorf("read sheet period %s: %w", period, err)
	}
	dropped, err := l.store.ReplacePeriod(familyID, period, txs)
	if err != nil {
		return 0, err
	}
	l.logger.DebugContext(ctx, "Imported sheet period",
		log.FieldFamilyID, familyID,
		log.FieldYear, period.Year,
		log.FieldMonth, period.Month,
		log.FieldCount, len(txs),
		"replaced", dropped)
	return l.store.UpsertPeriod(ctx, familyID, period)
}

func (l *sheetLedger) ListSnapshots(ctx context.Context, familyID int64, from, to core.Period) ([]core.MonthlySnapshot, error) {
	return l.store.ListSnapshots(ctx, familyID, from, to)
}

func (l *sheetLedger) DeletePeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	return l.store.DeletePeriod(ctx, familyID, period)
}
