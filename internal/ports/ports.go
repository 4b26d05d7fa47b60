// Package ports declares the collaborators the analytics core depends on.
package ports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"contador/internal/core"
)

// ErrBusy marks a store error caused by lock contention. Only errors
// wrapping it are worth retrying.
var ErrBusy = errors.New("store busy")

// Ports for outbound adapters.
type (
	// TransactionLister returns a family's transactions dated within [from, to].
	TransactionLister interface {
		ListTransactions(ctx context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error)
	}

	// FamilyLister enumerates the families that have ledger data.
	FamilyLister interface {
		ListFamilies(ctx context.Context) ([]int64, error)
	}

	MemberCounter interface {
		CountMembers(ctx context.Context, familyID int64) (int, error)
	}

	// IncomeReader sums a family's income for a period.
	IncomeReader interface {
		IncomeTotal(ctx context.Context, familyID int64, period core.Period) (decimal.Decimal, error)
	}

	// SnapshotStore persists per-category monthly aggregates.
	SnapshotStore interface {
		// UpsertPeriod recomputes the period from the stored transactions and
		// writes one row per category atomically. It returns the number of
		// categories written.
		UpsertPeriod(ctx context.Context, familyID int64, period core.Period) (int, error)
		// ListSnapshots returns rows with from <= period <= to.
		ListSnapshots(ctx context.Context, familyID int64, from, to core.Period) ([]core.MonthlySnapshot, error)
		// DeletePeriod removes every row of the period and returns how many were removed.
		DeletePeriod(ctx context.Context, familyID int64, period core.Period) (int, error)
	}

	// Narrator turns a rendered prompt into prose.
	Narrator interface {
		Narrate(ctx context.Context, prompt string) (string, error)
	}

	// StreamNarrator yields the answer in fragments as they are produced.
	StreamNarrator interface {
		NarrateStream(ctx context.Context, prompt string, yield func(fragment string) error) error
	}
)

// Ledger is a store that can serve the whole context pipeline.
type Ledger interface {
	FamilyLister
	TransactionLister
	MemberCounter
	IncomeReader
	SnapshotStore
}

// SnapshotOptions tunes snapshot upserts.
type SnapshotOptions struct {
	// PruneAbsent deletes rows of categories that no longer have
	// transactions in the recomputed period.
	PruneAbsent bool
}
