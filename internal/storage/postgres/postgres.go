// Package postgres stores the ledger and its monthly snapshots in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"contador/internal/analytics"
	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"
)

//go:embed 001_schema.sql
var migrationSQL string

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int

	Snapshots ports.SnapshotOptions
}

// Store implements ports.Ledger on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	opts   ports.SnapshotOptions
	logger *log.Logger
}

var _ ports.Ledger = (*Store)(nil)

// ConnString renders cfg as a libpq keyword/value string, defaults applied.
func (cfg Config) ConnString() string {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// New connects, pings and applies the schema.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.For(log.ComponentStorage)
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)

	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("executing migration: %w", err)
	}

	return &Store{pool: pool, opts: cfg.Snapshots, logger: logger}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// AddTransaction validates and stores a transaction, returning its id.
func (s *Store) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (family_id, amount, date, description, category, subcategory, payment_method, notes)
		VALUES ($1, $2::text::numeric, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		tx.FamilyID, tx.Amount.String(), tx.Date.Time, tx.Description,
		tx.Category.Label(), tx.Subcategory, string(tx.PaymentMethod), tx.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting transaction: %w", err)
	}
	return id, nil
}

// ListFamilies implements ports.FamilyLister
func (s *Store) ListFamilies(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT family_id FROM transactions ORDER BY family_id`)
	if err != nil {
		return nil, fmt.Errorf("querying families: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collecting families: %w", err)
	}
	return ids, nil
}

// ListTransactions implements ports.TransactionLister
func (s *Store) ListTransactions(ctx context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	return listTransactions(ctx, s.pool, familyID, from, to)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listTransactions(ctx context.Context, q querier, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, family_id, amount::text, date, description, category, subcategory, payment_method, notes
		FROM transactions
		WHERE family_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, id`,
		familyID, from.Time, to.Time)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var tx core.Transaction
		var amount, cat, method string
		var date time.Time
		if err := rows.Scan(&tx.ID, &tx.FamilyID, &amount, &date, &tx.Description, &cat, &tx.Subcategory, &method, &tx.Notes); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %d amount: %w", tx.ID, err)
		}
		if tx.Category, err = core.ParseCategory(cat); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
		tx.PaymentMethod = core.PaymentMethod(method)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return out, nil
}

// CountMembers implements ports.MemberCounter
func (s *Store) CountMembers(ctx context.Context, familyID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM family_members WHERE family_id = $1 AND active`, familyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return n, nil
}

// IncomeTotal implements ports.IncomeReader
func (s *Store) IncomeTotal(ctx context.Context, familyID int64, period core.Period) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM incomes
		WHERE family_id = $1 AND date BETWEEN $2 AND $3`,
		familyID, period.Start().Time, period.End().Time).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing incomes: %w", err)
	}
	return decimal.NewFromString(total)
}

// lockKey scopes the advisory lock to one (family, year, month).
func lockKey(familyID int64, period core.Period) string {
	return fmt.Sprintf("snapshot:%d:%s", familyID, period)
}

// UpsertPeriod implements ports.SnapshotStore. A transaction-level advisory
// lock serializes concurrent recomputes of the same period. Serialization
// failures, deadlocks and lock timeouts are reported as ports.ErrBusy.
func (s *Store) UpsertPeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	n, err := s.upsertPeriod(ctx, familyID, period)
	return n, markBusy(err)
}

// SQLSTATEs that a retry can clear.
var busyCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

func markBusy(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && busyCodes[pgErr.Code] {
		return fmt.Errorf("%w: %w", ports.ErrBusy, err)
	}
	return err
}

func (s *Store) upsertPeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(familyID, period)); err != nil {
		return 0, fmt.Errorf("acquiring period lock: %w", err)
	}

	txs, err := listTransactions(ctx, tx, familyID, period.Start(), period.End())
	if err != nil {
		return 0, err
	}
	snaps := analytics.BuildSnapshots(familyID, period, txs)

	batch := &pgx.Batch{}
	for _, sn := range snaps {
		batch.Queue(`
			INSERT INTO monthly_expense_snapshots
				(family_id, year, month, category, total, purchase_count, avg_ticket)
			VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7::text::numeric)
			ON CONFLICT (family_id, year, month, category) DO UPDATE SET
				total          = EXCLUDED.total,
				purchase_count = EXCLUDED.purchase_count,
				avg_ticket     = EXCLUDED.avg_ticket,
				updated_at     = NOW()`,
			familyID, period.Year, period.Month, sn.Category.Label(),
			sn.Total.String(), sn.Count, sn.AvgTicket.String(),
		)
	}
	if s.opts.PruneAbsent {
		keep := make([]string, len(snaps))
		for i, sn := range snaps {
			keep[i] = sn.Category.Label()
		}
		batch.Queue(`
			DELETE FROM monthly_expense_snapshots
			WHERE family_id = $1 AND year = $2 AND month = $3 AND NOT (category = ANY($4))`,
			familyID, period.Year, period.Month, keep,
		)
	}

	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return 0, fmt.Errorf("upserting snapshot %d: %w", i, err)
			}
		}
		if err := results.Close(); err != nil {
			return 0, fmt.Errorf("closing batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot upsert",
		append(log.NewFields().WithPeriod(familyID, period.Year, period.Month).ToSlice(), log.FieldCount, len(snaps))...)
	return len(snaps), nil
}

// ListSnapshots implements ports.SnapshotStore
func (s *Store) ListSnapshots(ctx context.Context, familyID int64, from, to core.Period) ([]core.MonthlySnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT year, month, category, total::text, purchase_count, avg_ticket::text
		FROM monthly_expense_snapshots
		WHERE family_id = $1 AND (year * 12 + month) BETWEEN $2 AND $3
		ORDER BY year, month, category`,
		familyID, from.Index(), to.Index())
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlySnapshot
	for rows.Next() {
		sn := core.MonthlySnapshot{FamilyID: familyID}
		var cat, total, ticket string
		if err := rows.Scan(&sn.Period.Year, &sn.Period.Month, &cat, &total, &sn.Count, &ticket); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
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
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

// DeletePeriod implements ports.SnapshotStore
func (s *Store) DeletePeriod(ctx context.Context, familyID int64, period core.Period) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM monthly_expense_snapshots WHERE family_id = $1 AND year = $2 AND month = $3`,
		familyID, period.Year, period.Month)
	if err != nil {
		return 0, fmt.Errorf("deleting snapshots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
