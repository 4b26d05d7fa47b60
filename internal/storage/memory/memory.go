// Package memory is an in-process ledger for tests and demos.
package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"contador/internal/analytics"
	"contador/internal/core"
	"contador/internal/ports"
)

type snapshotKey struct {
	familyID int64
	period   core.Period
	category core.Category
}

// Store keeps transactions, members, incomes and snapshots in memory.
// A single mutex makes every upsert atomic.
type Store struct {
	mu        sync.Mutex
	opts      ports.SnapshotOptions
	nextID    int64
	txs       []core.Transaction
	members   map[int64][]string
	incomes   []core.Income
	snapshots map[snapshotKey]core.MonthlySnapshot
}

var _ ports.Ledger = (*Store)(nil)

func New(opts ports.SnapshotOptions) *Store {
	return &Store{
		opts:      opts,
		members:   make(map[int64][]string),
		snapshots: make(map[snapshotKey]core.MonthlySnapshot),
	}
}

// NewFromFiles seeds a store from base/transactions.csv, base/members.csv
// and base/incomes.csv. Missing files are skipped.
//
//	transactions.csv: family_id,date,description,amount,category[,subcategory,payment_method,notes]
//	members.csv:      family_id,name
//	incomes.csv:      family_id,date,description,amount
func NewFromFiles(base string, opts ports.SnapshotOptions) (*Store, error) {
	s := New(opts)
	ctx := context.Background()

	if err := readCSV(filepath.Join(base, "transactions.csv"), 5, func(rec []string) error {
		familyID, err := parseFamily(rec[0])
		if err != nil {
			return err
		}
		tx, err := core.ParseTransaction(familyID, core.TransactionFields{
			Date:          rec[1],
			Description:   rec[2],
			Amount:        rec[3],
			Category:      rec[4],
			Subcategory:   field(rec, 5),
			PaymentMethod: field(rec, 6),
			Notes:         field(rec, 7),
		})
		if err != nil {
			return err
		}
		_, err = s.AddTransaction(ctx, tx)
		return err
	}); err != nil {
		return nil, err
	}

	if err := readCSV(filepath.Join(base, "members.csv"), 2, func(rec []string) error {
		familyID, err := parseFamily(rec[0])
		if err != nil {
			return err
		}
		s.AddMember(familyID, rec[1])
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readCSV(filepath.Join(base, "incomes.csv"), 4, func(rec []string) error {
		familyID, err := parseFamily(rec[0])
		if err != nil {
			return err
		}
		date, err := core.ParseDate(rec[1])
		if err != nil {
			return err
		}
		amount, err := core.ParseAmount(rec[3])
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", rec[3], err)
		}
		s.AddIncome(core.Income{FamilyID: familyID, Date: date, Description: strings.TrimSpace(rec[2]), Amount: amount})
		return nil
	}); err != nil {
		return nil, err
	}

	return s, nil
}

// AddTransaction stores a validated transaction and returns its id.
func (s *Store) AddTransaction(_ context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	tx.ID = s.nextID
	s.txs = append(s.txs, tx)
	return tx.ID, nil
}

// RemoveTransaction deletes a transaction by id.
func (s *Store) RemoveTransaction(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tx := range s.txs {
		if tx.ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return true
		}
	}
	return false
}

// ReplacePeriod swaps the family's transactions dated within period for txs,
// which are renumbered. It returns how many transactions were dropped.
func (s *Store) ReplacePeriod(familyID int64, period core.Period, txs []core.Transaction) (int, error) {
	for _, tx := range txs {
		if tx.FamilyID != familyID || !period.Contains(tx.Date) {
			return 0, fmt.Errorf("transaction %q outside family %d period %s", tx.Description, familyID, period)
		}
		if err := tx.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	kept := s.txs[:0]
	for _, tx := range s.txs {
		if tx.FamilyID == familyID && period.Contains(tx.Date) {
			dropped++
			continue
		}
		kept = append(kept, tx)
	}
	s.txs = kept
	for _, tx := range txs {
		s.nextID++
		tx.ID = s.nextID
		s.txs = append(s.txs, tx)
	}
	return dropped, nil
}

func (s *Store) AddMember(familyID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[familyID] = append(s.members[familyID], strings.TrimSpace(name))
}

func (s *Store) AddIncome(in core.Income) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomes = append(s.incomes, in)
}

// ListFamilies implements ports.FamilyLister
func (s *Store) ListFamilies(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, tx := range s.txs {
		if !slices.Contains(out, tx.FamilyID) {
			out = append(out, tx.FamilyID)
		}
	}
	slices.Sort(out)
	return out, nil
}

// ListTransactions implements ports.TransactionLister
func (s *Store) ListTransactions(_ context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(familyID, from, to), nil
}

func (s *Store) listLocked(familyID int64, from, to core.Date) []core.Transaction {
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.FamilyID != familyID || tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// CountMembers implements ports.MemberCounter
func (s *Store) CountMembers(_ context.Context, familyID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members[familyID]), nil
}

// IncomeTotal implements ports.IncomeReader
func (s *Store) IncomeTotal(_ context.Context, familyID int64, period core.Period) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, in := range s.incomes {
		if in.FamilyID == familyID && period.Contains(in.Date) {
			total = total.Add(in.Amount)
		}
	}
	return total, nil
}

// UpsertPeriod implements ports.SnapshotStore
func (s *Store) UpsertPeriod(_ context.Context, familyID int64, period core.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps := analytics.BuildSnapshots(familyID, period, s.listLocked(familyID, period.Start(), period.End()))
	present := make(map[core.Category]bool, len(snaps))
	for _, sn := range snaps {
		s.snapshots[snapshotKey{familyID, period, sn.Category}] = sn
		present[sn.Category] = true
	}
	if s.opts.PruneAbsent {
		for k := range s.snapshots {
			if k.familyID == familyID && k.period == period && !present[k.category] {
				delete(s.snapshots, k)
			}
		}
	}
	return len(snaps), nil
}

// ListSnapshots implements ports.SnapshotStore
func (s *Store) ListSnapshots(_ context.Context, familyID int64, from, to core.Period) ([]core.MonthlySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.MonthlySnapshot
	for k, sn := range s.snapshots {
		idx := k.period.Index()
		if k.familyID == familyID && idx >= from.Index() && idx <= to.Index() {
			out = append(out, sn)
		}
	}
	sortSnapshots(out)
	return out, nil
}

// DeletePeriod implements ports.SnapshotStore
func (s *Store) DeletePeriod(_ context.Context, familyID int64, period core.Period) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.snapshots {
		if k.familyID == familyID && k.period == period {
			delete(s.snapshots, k)
			n++
		}
	}
	return n, nil
}

func sortSnapshots(rows []core.MonthlySnapshot) {
	slices.SortFunc(rows, func(a, b core.MonthlySnapshot) int {
		if a.Period != b.Period {
			return a.Period.Index() - b.Period.Index()
		}
		return int(a.Category) - int(b.Category)
	})
}

func readCSV(path string, minFields int, fn func([]string) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "family_id") {
			continue
		}
		if len(rec) < minFields {
			return fmt.Errorf("%s line %d: expected at least %d fields, got %d", path, line, minFields, len(rec))
		}
		if err := fn(rec); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
}

func parseFamily(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidFamily, s)
	}
	return id, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
