package backend

import (
	"context"

	"contador/internal/ports"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the ledger and an optional cleanup function.
type BackendResult struct {
	Ledger  ports.Ledger
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	Snapshots ports.SnapshotOptions

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Google Sheets specific
	GoogleSpreadsheetID     string
	GoogleTransactionsSheet string
	GoogleFamilyID          int64
	GoogleMemberCount       int

	// Memory backend seed files; the sheets backend reads incomes from here too.
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	SheetsBackend   BackendType = "sheets"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
