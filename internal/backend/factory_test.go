package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"contador/internal/config"
	"contador/internal/core"
	"contador/internal/log"
	gsheet "contador/internal/sheets/google"
)

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DataBackend:         "postgres",
		PostgresHost:        "db",
		PostgresPort:        5433,
		PostgresDB:          "contador",
		SnapshotPruneAbsent: true,
		MemoryDataDir:       "seed",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.PostgresPort != 5433 || cfg.DataDirectory != "seed" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Snapshots.PruneAbsent {
		t.Fatal("expected PruneAbsent to carry over")
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "mongo"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres", Config{Type: PostgresBackend, PostgresHost: "db", PostgresDB: "contador"}, false},
		{"postgres without db", Config{Type: PostgresBackend, PostgresHost: "db"}, true},
		{"sheets", Config{Type: SheetsBackend, GoogleSpreadsheetID: "abc", GoogleFamilyID: 1}, false},
		{"sheets without id", Config{Type: SheetsBackend, GoogleFamilyID: 1}, true},
		{"sheets without family", Config{Type: SheetsBackend, GoogleSpreadsheetID: "abc"}, true},
		{"memory", Config{Type: MemoryBackend}, false},
		{"unknown", Config{Type: "mongo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 4 || got[0] != "sqlite" || got[1] != "postgres" {
		t.Fatalf("unexpected backend types %v", got)
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	csv := "family_id,date,description,amount,category\n1,2024-10-03,Super,500,Almacén\n"
	if err := os.WriteFile(filepath.Join(dir, "transactions.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	res, err := NewFactory(nil).CreateBackend(t.Context(), Config{Type: MemoryBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Close()

	fams, err := res.Ledger.ListFamilies(t.Context())
	if err != nil || len(fams) != 1 || fams[0] != 1 {
		t.Fatalf("unexpected families %v %v", fams, err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contador.db")
	res, err := NewFactory(nil).CreateBackend(t.Context(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	if res.Cleanup == nil {
		t.Fatal("sqlite backend should have a cleanup")
	}
	if err := res.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestCreateBackendRejectsInvalid(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(t.Context(), Config{Type: SQLiteBackend}); err == nil {
		t.Fatal("expected validation error")
	}
}

// fakeSheet serves a fixed set of rows for one family.
type fakeSheet struct {
	family  int64
	members int
	txs     []core.Transaction
	err     error
}

func (f *fakeSheet) FamilyID() int64 { return f.family }

func (f *fakeSheet) ListTransactions(_ context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if familyID != f.family {
		return nil, nil
	}
	var out []core.Transaction
	for _, tx := range f.txs {
		if !tx.Date.Before(from.Time) && !tx.Date.After(to.Time) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeSheet) CountMembers(_ context.Context, familyID int64) (int, error) {
	if familyID != f.family {
		return 0, nil
	}
	return f.members, nil
}

func sheetTx(day int, desc string, amount int64, cat core.Category) core.Transaction {
	return core.Transaction{
		FamilyID:      3,
		Date:          core.NewDate(2024, 10, day),
		Description:   desc,
		Amount:        decimal.NewFromInt(amount),
		Category:      cat,
		PaymentMethod: core.Efectivo,
	}
}

func TestCreateSheetsBackend(t *testing.T) {
	sheet := &fakeSheet{family: 3, members: 2, txs: []core.Transaction{
		sheetTx(1, "Super", 700, core.Almacen),
		sheetTx(5, "Nafta", 2100, core.Vehiculos),
	}}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "incomes.csv"), []byte("3,2024-10-01,Sueldo,50000\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	f := &DefaultFactory{
		logger: log.Discard(),
		newSheet: func(_ context.Context, cfg gsheet.Config) (sheetSource, error) {
			if cfg.SpreadsheetID != "abc" || cfg.FamilyID != 3 {
				t.Fatalf("unexpected sheet config %+v", cfg)
			}
			return sheet, nil
		},
	}

	res, err := f.CreateBackend(t.Context(), Config{
		Type:                SheetsBackend,
		GoogleSpreadsheetID: "abc",
		GoogleFamilyID:      3,
		DataDirectory:       dir,
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	ledger := res.Ledger
	ctx := t.Context()
	oct := core.Period{Year: 2024, Month: 10}

	fams, _ := ledger.ListFamilies(ctx)
	if len(fams) != 1 || fams[0] != 3 {
		t.Fatalf("unexpected families %v", fams)
	}
	if n, _ := ledger.CountMembers(ctx, 3); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}
	if inc, _ := ledger.IncomeTotal(ctx, 3, oct); !inc.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected income %s", inc)
	}

	n, err := ledger.UpsertPeriod(ctx, 3, oct)
	if err != nil || n != 2 {
		t.Fatalf("UpsertPeriod() = %d, %v", n, err)
	}

	// A new sheet row shows up on the next upsert.
	sheet.txs = append(sheet.txs, sheetTx(9, "Super", 500, core.Almacen))
	if _, err := ledger.UpsertPeriod(ctx, 3, oct); err != nil {
		t.Fatalf("second UpsertPeriod() error = %v", err)
	}
	snaps, _ := ledger.ListSnapshots(ctx, 3, oct, oct)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshot rows, got %+v", snaps)
	}
	if snaps[0].Category != core.Almacen || snaps[0].Count != 2 || !snaps[0].Total.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected almacen snapshot %+v", snaps[0])
	}

	if removed, _ := ledger.DeletePeriod(ctx, 3, oct); removed != 2 {
		t.Fatalf("expected 2 removed rows, got %d", removed)
	}

	sheet.err = errors.New("quota")
	if _, err := ledger.UpsertPeriod(ctx, 3, oct); err == nil {
		t.Fatal("expected sheet error to surface")
	}
}
