package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"contador/internal/amqp"
	"contador/internal/core"
	"contador/internal/ports"
	"contador/internal/services"
	"contador/internal/storage/memory"
)

func newTestWorker(t *testing.T) (*SnapshotWorker, *memory.Store) {
	t.Helper()
	store := memory.New(ports.SnapshotOptions{})
	for _, tx := range []core.Transaction{
		{FamilyID: 1, Amount: decimal.NewFromInt(100), Date: core.NewDate(2024, 9, 10), Description: "Super", Category: core.Almacen},
		{FamilyID: 1, Amount: decimal.NewFromInt(300), Date: core.NewDate(2024, 10, 3), Description: "Super", Category: core.Almacen},
		{FamilyID: 2, Amount: decimal.NewFromInt(50), Date: core.NewDate(2024, 10, 4), Description: "Cine", Category: core.Ocio},
	} {
		if _, err := store.AddTransaction(context.Background(), tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := services.NewSnapshotService(store, services.DefaultSnapshotServiceConfig())
	w := NewSnapshotWorker(svc, store)
	w.now = func() time.Time { return time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC) }
	return w, store
}

func TestHandleRecomputeMessage(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()
	msg := amqp.NewSnapshotRecomputeMessage(1, core.Period{Year: 2024, Month: 10}, "test")
	if err := w.HandleRecomputeMessage(ctx, msg); err != nil {
		t.Fatalf("HandleRecomputeMessage error: %v", err)
	}
	rows, _ := store.ListSnapshots(ctx, 1, msg.Period(), msg.Period())
	if len(rows) != 1 || !rows[0].Total.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected rows %+v", rows)
	}

	bad := &amqp.SnapshotRecomputeMessage{FamilyID: 1, Year: 2024, Month: 0}
	if err := w.HandleRecomputeMessage(ctx, bad); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestRefreshCurrentPeriod(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()
	res, err := w.RefreshCurrentPeriod(ctx)
	if err != nil {
		t.Fatalf("RefreshCurrentPeriod error: %v", err)
	}
	if res.Families != 2 || res.Periods != 2 || res.Errors != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	oct := core.Period{Year: 2024, Month: 10}
	for _, fam := range []int64{1, 2} {
		rows, _ := store.ListSnapshots(ctx, fam, oct, oct)
		if len(rows) != 1 {
			t.Fatalf("family %d: expected 1 row, got %d", fam, len(rows))
		}
	}
}

func TestStartupRefreshCoversPriorMonth(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()
	if err := w.StartupRefresh(ctx); err != nil {
		t.Fatalf("StartupRefresh error: %v", err)
	}
	rows, _ := store.ListSnapshots(ctx, 1, core.Period{Year: 2024, Month: 9}, core.Period{Year: 2024, Month: 10})
	if len(rows) != 2 {
		t.Fatalf("expected september and october rows, got %+v", rows)
	}
}

type failingFamilies struct{}

func (failingFamilies) ListFamilies(context.Context) ([]int64, error) {
	return nil, errors.New("db down")
}

func TestRefreshFailsWithoutFamilies(t *testing.T) {
	w, _ := newTestWorker(t)
	w.families = failingFamilies{}
	if _, err := w.RefreshCurrentPeriod(context.Background()); err == nil {
		t.Fatal("expected error when families cannot be listed")
	}
}
