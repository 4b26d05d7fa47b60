package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"contador/internal/analytics"
	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"

	_ "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore is the default ledger: transactions, members, incomes and
// monthly snapshots in one SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	opts   ports.SnapshotOptions
	logger *log.Logger
}

var _ ports.Ledger = (*SQLiteStore)(nil)

// DSN builds the connection string for dbPath. Transactions start with
// BEGIN IMMEDIATE so a snapshot upsert holds the write lock from its first
// read to its commit.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func NewSQLiteStore(dbPath string, opts ports.SnapshotOptions) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, opts: opts, logger: log.For(log.ComponentStorage)}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// AddTransaction validates and stores a transaction, returning its id.
func (s *SQLiteStore) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (family_id, amount, date, description, category, subcategory, payment_method, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.FamilyID, tx.Amount.String(), tx.Date.String(), tx.Description,
		tx.Category.Label(), tx.Subcategory, string(tx.PaymentMethod), tx.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return res.LastInsertId()
}

// AddMember registers an active household member.
func (s *SQLiteStore) AddMember(ctx context.Context, familyID int64, name string) (int64, error) {
	if familyID <= 0 {
		return 0, core.ErrInvalidFamily
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (family_id, name) VALUES (?, ?)`, familyID, strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return res.LastInsertId()
}

// AddIncome stores an income entry.
func (s *SQLiteStore) AddIncome(ctx context.Context, in core.Income) (int64, error) {
	if in.FamilyID <= 0 {
		return 0, core.ErrInvalidFamily
	}
	if !in.Amount.IsPositive() {
		return 0, core.ErrInvalidAmount
	}
	var member any
	if in.MemberID > 0 {
		member = in.MemberID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incomes (family_id, member_id, amount, date, description) VALUES (?, ?, ?, ?, ?)`,
		in.FamilyID, member, in.Amount.String(), in.Date.String(), in.Description)
	if err != nil {
		return 0, fmt.Errorf("insert income: %w", err)
	}
	return res.LastInsertId()
}

// ListFamilies implements ports.FamilyLister
func (s *SQLiteStore) ListFamilies(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT family_id FROM transactions ORDER BY family_id`)
	if err != nil {
		return nil, fmt.Errorf("query families: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListTransactions implements ports.TransactionLister
func (s *SQLiteStore) ListTransactions(ctx context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	return listTransactions(ctx, s.db, familyID, from, to)
}

func listTransactions(ctx context.Context, q queryer, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, family_id, amount, date, description, category, subcategory, payment_method, notes
		 FROM transactions
		 WHERE family_id = ? AND date BETWEEN ? AND ?
		 ORDER BY date, id`,
		familyID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var tx core.Transaction
		var amount, date, cat, method string
		if err := rows.Scan(&tx.ID, &tx.FamilyID, &amount, &date, &tx.Description, &cat, &tx.Subcategory, &method, &tx.Notes); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %d amount: %w", tx.ID, err)
		}
		if tx.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		if tx.Category, err = core.ParseCategory(cat); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.PaymentMethod = core.PaymentMethod(method)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// CountMembers implements ports.MemberCounter
func (s *SQLiteStore) CountMembers(ctx context.Context, familyID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM family_members WHERE family_id = ? AND active = 1`, familyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// IncomeTotal implements ports.IncomeReader
func (s *SQLiteStore) IncomeTotal(ctx context.Context, familyID int64, period core.Period) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount FROM incomes WHERE family_id = ? AND date BETWEEN ? AND ?`,
		familyID, period.Start().String(), period.End().String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("query incomes: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan income: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("income amount %q: %w", amount, err)
		}
		total = total.Add(d)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate incomes: %w", err)
	}
	return total, nil
}

// UpsertPeriod implements ports.SnapshotStore. Lock contention is reported
// as ports.ErrBusy.
func (s *SQLiteStore) UpsertPeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	n, err := s.upsertPeriod(ctx, familyID, period)
	return n, markBusy(err)
}

// markBusy wraps SQLITE_BUSY and SQLITE_LOCKED failures, including their
// extended codes, with ports.ErrBusy.
func markBusy(err error) error {
	var coded interface{ Code() int }
	if err == nil || !errors.As(err, &coded) {
		return err
	}
	switch coded.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", ports.ErrBusy, err)
	}
	return err
}

func (s *SQLiteStore) upsertPeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	txs, err := listTransactions(ctx, tx, familyID, period.Start(), period.End())
	if err != nil {
		return 0, err
	}
	snaps := analytics.BuildSnapshots(familyID, period, txs)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO monthly_expense_snapshots
		     (family_id, year, month, category, total, purchase_count, avg_ticket)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (family_id, year, month, category) DO UPDATE SET
		     total          = excluded.total,
		     purchase_count = excluded.purchase_count,
		     avg_ticket     = excluded.avg_ticket,
		     updated_at     = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	for _, sn := range snaps {
		if _, err := stmt.ExecContext(ctx, familyID, period.Year, period.Month, sn.Category.Label(),
			sn.Total.String(), sn.Count, sn.AvgTicket.String()); err != nil {
			return 0, fmt.Errorf("upsert snapshot %s: %w", sn.Category.Label(), err)
		}
	}

	if s.opts.PruneAbsent {
		if err := pruneAbsent(ctx, tx, familyID, period, snaps); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot upsert",
		append(log.NewFields().WithPeriod(familyID, period.Year, period.Month).ToSlice(), log.FieldCount, len(snaps))...)
	return len(snaps), nil
}

func pruneAbsent(ctx context.Context, tx *sql.Tx, familyID int64, period core.Period, keep []core.MonthlySnapshot) error {
	query := `DELETE FROM monthly_expense_snapshots WHERE family_id = ? AND year = ? AND month = ?`
	args := []any{familyID, period.Year, period.Month}
	if len(keep) > 0 {
		query += ` AND category NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for _, sn := range keep {
			args = append(args, sn.Category.Label())
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune absent categories: %w", err)
	}
	return nil
}

// ListSnapshots implements ports.SnapshotStore
func (s *SQLiteStore) ListSnapshots(ctx context.Context, familyID int64, from, to core.Period) ([]core.MonthlySnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, month, category, total, purchase_count, avg_ticket
		 FROM monthly_expense_snapshots
		 WHERE family_id = ? AND (year * 12 + month) BETWEEN ? AND ?
		 ORDER BY year, month, category`,
		familyID, from.Index(), to.Index())
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlySnapshot
	for rows.Next() {
		var sn core.MonthlySnapshot
		var cat, total, ticket string
		if err := rows.Scan(&sn.Period.Year, &sn.Period.Month, &cat, &total, &sn.Count, &ticket); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		sn.FamilyID = familyID
		if sn.Category, err = core.ParseCategory(cat); err != nil {
			return nil, fmt.Errorf("snapshot category: %w", err)
		}
		if sn.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("snapshot total: %w", err)
		}
		if sn.AvgTicket, err = decimal.NewFromString(ticket); err != nil {
			return nil, fmt.Errorf("snapshot ticket: %w", err)
		}
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// DeletePeriod implements ports.SnapshotStore
func (s *SQLiteStore) DeletePeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM monthly_expense_snapshots WHERE family_id = ? AND year = ? AND month = ?`,
		familyID, period.Year, period.Month)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	s.logger.InfoContext(ctx, "snapshot period rolled back",
		append(log.NewFields().WithPeriod(familyID, period.Year, period.Month).ToSlice(), log.FieldCount, n)...)
	return int(n), nil
}
