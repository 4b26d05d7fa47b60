package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/ports"
)

// Config selects the spreadsheet holding a family's ledger.
type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	FamilyID          int64
	MemberCount       int
	// CredentialsJSON overrides the GOOGLE_SERVICE_ACCOUNT_* lookup when set.
	CredentialsJSON []byte
}

// Client reads transactions from a Google Sheets ledger. The sheet is the
// ledger of a single family; rows are never written back.
type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	familyID          int64
	members           int
	retryDelay        time.Duration
	logger            *log.Logger
}

var (
	_ ports.TransactionLister = (*Client)(nil)
	_ ports.MemberCounter     = (*Client)(nil)
)

// New creates a Sheets client with service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.FamilyID <= 0 {
		return nil, core.ErrInvalidFamily
	}
	if cfg.TransactionsSheet == "" {
		cfg.TransactionsSheet = "Transacciones"
	}
	creds := cfg.CredentialsJSON
	if len(creds) == 0 {
		var err error
		creds, err = credentialsFromEnv()
		if err != nil {
			return nil, err
		}
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, cfg), nil
}

func newClient(svc *gsheet.Service, cfg Config) *Client {
	return &Client{
		svc:               svc,
		spreadsheetID:     cfg.SpreadsheetID,
		transactionsSheet: cfg.TransactionsSheet,
		familyID:          cfg.FamilyID,
		members:           cfg.MemberCount,
		retryDelay:        10 * time.Second,
		logger:            log.For(log.ComponentSheets),
	}
}

// credentialsFromEnv uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// FamilyID is the family the spreadsheet belongs to.
func (c *Client) FamilyID() int64 { return c.familyID }

// ListTransactions scans the transactions sheet and returns the valid rows
// dated within [from, to]. Other families get an empty ledger.
func (c *Client) ListTransactions(ctx context.Context, familyID int64, from, to core.Date) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if familyID != c.familyID {
		return nil, nil
	}
	values, err := c.readRange(ctx, fmt.Sprintf("%s!A:G", c.transactionsSheet))
	if err != nil {
		return nil, err
	}
	txs, skipped, err := parseTransactions(values, c.familyID, from, to)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped invalid sheet rows",
			log.FieldOperation, log.OpParse,
			log.FieldFamilyID, familyID,
			log.FieldCount, skipped)
	}
	return txs, nil
}

// CountMembers returns the configured household size; the sheet carries no member list.
func (c *Client) CountMembers(_ context.Context, familyID int64) (int, error) {
	if familyID != c.familyID {
		return 0, nil
	}
	return c.members, nil
}

// readRange fetches a range, retrying while the API reports throttling.
func (c *Client) readRange(ctx context.Context, rng string) ([][]interface{}, error) {
	var resp *gsheet.ValueRange
	err := retry.Do(
		func() error {
			var err error
			resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
			return err
		},
		retry.RetryIf(isRetryable),
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func isRetryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	return false
}
