package backend

import (
	"context"
	"fmt"

	"contador/internal/log"
	gsheet "contador/internal/sheets/google"
	"contador/internal/storage"
	"contador/internal/storage/memory"
	"contador/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger   *log.Logger
	newSheet func(ctx context.Context, cfg gsheet.Config) (sheetSource, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.For(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger,
		newSheet: func(ctx context.Context, cfg gsheet.Config) (sheetSource, error) {
			return gsheet.New(ctx, cfg)
		},
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	store, err := storage.NewSQLiteStore(config.SQLiteDBPath, config.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"prune_absent", config.Snapshots.PruneAbsent)

	return &BackendResult{Ledger: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.New(ctx, postgres.Config{
		Host:      config.PostgresHost,
		Port:      config.PostgresPort,
		Database:  config.PostgresDB,
		User:      config.PostgresUser,
		Password:  config.PostgresPassword,
		SSLMode:   config.PostgresSSLMode,
		Snapshots: config.Snapshots,
	}, f.logger.WithComponent(log.ComponentStorage))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
	}

	f.logger.Info("Initialized PostgreSQL backend",
		"host", config.PostgresHost,
		"database", config.PostgresDB)

	return &BackendResult{
		Ledger: store,
		Cleanup: func() error {
			store.Close()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sheet, err := f.newSheet(ctx, gsheet.Config{
		SpreadsheetID:     config.GoogleSpreadsheetID,
		TransactionsSheet: config.GoogleTransactionsSheet,
		FamilyID:          config.GoogleFamilyID,
		MemberCount:       config.GoogleMemberCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	// Incomes are not kept in the sheet; seed them from the data directory.
	store, err := memory.NewFromFiles(dataDir(config), config.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to seed sheets backend: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		log.FieldFamilyID, config.GoogleFamilyID)

	return &BackendResult{Ledger: newSheetLedger(sheet, store)}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store, err := memory.NewFromFiles(dataDir(config), config.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir(config))

	return &BackendResult{Ledger: store}, nil
}

func dataDir(config Config) string {
	if config.DataDirectory == "" {
		return "data"
	}
	return config.DataDirectory
}
