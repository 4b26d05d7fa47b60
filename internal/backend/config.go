package backend

import (
	"errors"
	"fmt"

	"contador/internal/config"
	"contador/internal/ports"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:      backendType,
		Snapshots: ports.SnapshotOptions{PruneAbsent: appConfig.SnapshotPruneAbsent},

		SQLiteDBPath: appConfig.SQLiteDBPath,

		PostgresHost:     appConfig.PostgresHost,
		PostgresPort:     appConfig.PostgresPort,
		PostgresDB:       appConfig.PostgresDB,
		PostgresUser:     appConfig.PostgresUser,
		PostgresPassword: appConfig.PostgresPassword,
		PostgresSSLMode:  appConfig.PostgresSSLMode,

		GoogleSpreadsheetID:     appConfig.GoogleSpreadsheetID,
		GoogleTransactionsSheet: appConfig.GoogleTransactionsSheet,
		GoogleFamilyID:          appConfig.GoogleFamilyID,
		GoogleMemberCount:       appConfig.GoogleMemberCount,

		DataDirectory: appConfig.MemoryDataDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresHost == "" || c.PostgresDB == "" {
			return errors.New("PostgreSQL host and database are required for postgres backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleFamilyID <= 0 {
			return fmt.Errorf("sheets backend needs a positive family id, got %d", c.GoogleFamilyID)
		}
	case MemoryBackend:
		// DataDirectory defaults to "data"; missing seed files leave the store empty.
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend, SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
