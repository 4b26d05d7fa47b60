package cli

import (
	"context"
	"time"

	"contador/internal/amqp"
	"contador/internal/backend"
	"contador/internal/cache"
	"contador/internal/config"
	"contador/internal/log"
	"contador/internal/narrative"
	"contador/internal/ports"
	"contador/internal/services"
)

// App holds the services shared by the binaries.
type App struct {
	Config    *config.Config
	Backend   *backend.BackendResult
	Snapshots *services.SnapshotService
	Advisor   *services.AdvisorService
	// Broker is nil when AMQP_URL is unset or the broker was unreachable.
	Broker *amqp.Client

	caches *cache.Manager
	logger *log.Logger
}

// AppOptions selects the optional collaborators to start.
type AppOptions struct {
	// Broker connects to AMQP_URL when set.
	Broker bool
	// Narrator creates a Gemini client when GEMINI_API_KEY is set.
	Narrator bool
}

// NewApp wires the ledger into the snapshot and advisor services. A broker
// or narrator that fails to start is logged and left out.
func NewApp(ctx context.Context, logger *log.Logger, cfg *config.Config, res *backend.BackendResult, opts AppOptions) *App {
	app := &App{
		Config:  cfg,
		Backend: res,
		caches:  cache.NewManager(),
		logger:  logger,
	}

	snapCfg := services.DefaultSnapshotServiceConfig()
	snapCfg.Lookback = cfg.ComparisonLookback
	app.Snapshots = services.NewSnapshotService(res.Ledger, snapCfg)

	if opts.Broker && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, recomputes will run inline", log.FieldError, err)
		} else {
			app.Broker = client
			app.Snapshots.WithPublisher(client)
			logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	var members ports.MemberCounter = res.Ledger
	if cfg.MemberCacheTTL > 0 {
		counter := cache.NewMemberCounter(res.Ledger, cfg.MemberCacheTTL)
		app.caches.Register(counter.Cleaner())
		app.caches.StartCleanup(cfg.MemberCacheTTL)
		members = counter
	}

	var narrator ports.Narrator
	if opts.Narrator {
		if cfg.GeminiAPIKey == "" {
			logger.Info("GEMINI_API_KEY not set, questions will be rejected")
		} else {
			n, err := narrative.NewGeminiNarrator(ctx, narrative.GeminiConfig{
				APIKey: cfg.GeminiAPIKey,
				Model:  cfg.GeminiModel,
			})
			if err != nil {
				logger.Warn("Gemini unavailable, questions will be rejected", log.FieldError, err)
			} else {
				narrator = n
			}
		}
	}

	app.Advisor = services.NewAdvisorService(services.AdvisorDeps{
		Transactions: res.Ledger,
		Members:      members,
		Income:       res.Ledger,
		Snapshots:    app.Snapshots,
		Narrator:     narrator,
		Library:      narrative.NewLibrary(cfg.KnowledgePath, narrative.DefaultTopics()),
	})
	return app
}

// Close stops the caches and releases the broker and the backend.
func (a *App) Close() {
	a.caches.Stop()
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	}
	if err := a.Backend.Close(); err != nil {
		a.logger.Warn("Failed to close backend", log.FieldError, err)
	}
}

// ShutdownTimeout bounds cleanup after a termination signal.
const ShutdownTimeout = 30 * time.Second
