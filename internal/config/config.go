package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Backend selection: sqlite | postgres | memory | sheets
	DataBackend string

	// SQLite
	SQLiteDBPath string

	// PostgreSQL
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Memory backend seed directory
	MemoryDataDir string

	// AMQP, optional: empty URL disables asynchronous recompute
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger
	GoogleSpreadsheetID     string
	GoogleTransactionsSheet string
	GoogleFamilyID          int64
	GoogleMemberCount       int

	// Text generation
	GeminiAPIKey  string
	GeminiModel   string
	KnowledgePath string

	// Snapshots
	ComparisonLookback      int
	SnapshotPruneAbsent     bool
	SnapshotRefreshInterval time.Duration
	MemberCacheTTL          time.Duration
}

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"sqlite", "postgres", "memory", "sheets"}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/contador.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "contador"),
		PostgresUser:     getEnv("POSTGRES_USER", "contador"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MemoryDataDir: getEnv("MEMORY_DATA_DIR", "data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "contador"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "snapshot_recompute"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleTransactionsSheet: getEnv("GOOGLE_TRANSACTIONS_SHEET", "Transacciones"),
		GoogleFamilyID:          int64(getEnvInt("GOOGLE_FAMILY_ID", 1)),
		GoogleMemberCount:       getEnvInt("GOOGLE_MEMBER_COUNT", 1),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		KnowledgePath: getEnv("KNOWLEDGE_PATH", "./knowledge"),

		ComparisonLookback:      getEnvInt("COMPARISON_LOOKBACK", 1),
		SnapshotPruneAbsent:     getEnvBool("SNAPSHOT_PRUNE_ABSENT", false),
		SnapshotRefreshInterval: getEnvDuration("SNAPSHOT_REFRESH_INTERVAL", time.Hour),
		MemberCacheTTL:          getEnvDuration("MEMBER_CACHE_TTL", 5*time.Minute),
	}
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if !slices.Contains(Backends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.PostgresHost == "" {
			errs = append(errs, "POSTGRES_HOST is required when using postgres backend")
		}
		if c.PostgresDB == "" {
			errs = append(errs, "POSTGRES_DB is required when using postgres backend")
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			errs = append(errs, fmt.Sprintf("invalid postgres port %d", c.PostgresPort))
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errs = append(errs, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleTransactionsSheet == "" {
			errs = append(errs, "Google transactions sheet name is required when using sheets backend")
		}
		if c.GoogleFamilyID <= 0 {
			errs = append(errs, fmt.Sprintf("invalid GOOGLE_FAMILY_ID %d: must be positive", c.GoogleFamilyID))
		}
		if c.GoogleMemberCount < 0 {
			errs = append(errs, fmt.Sprintf("invalid GOOGLE_MEMBER_COUNT %d: must not be negative", c.GoogleMemberCount))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ComparisonLookback < 1 || c.ComparisonLookback > 24 {
		errs = append(errs, fmt.Sprintf("invalid comparison lookback %d: must be between 1 and 24 months", c.ComparisonLookback))
	}
	if c.SnapshotRefreshInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid snapshot refresh interval %v: must be at least 1 minute", c.SnapshotRefreshInterval))
	} else if c.SnapshotRefreshInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid snapshot refresh interval %v: must be at most 24 hours", c.SnapshotRefreshInterval))
	}
	if c.MemberCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid member cache TTL %v: must not be negative", c.MemberCacheTTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
