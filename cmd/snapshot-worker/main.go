package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"contador/internal/cli"
	"contador/internal/log"
	"contador/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting snapshot-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(context.Background(), logger, cfg)
	app := cli.NewApp(context.Background(), logger, cfg, res, cli.AppOptions{Broker: true})
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := worker.NewSnapshotWorker(app.Snapshots, res.Ledger)

	// Snapshots missed while nothing was running.
	logger.Info("Performing startup refresh...")
	if err := w.StartupRefresh(ctx); err != nil {
		logger.Error("Startup refresh failed", log.FieldError, err)
	}

	var wg sync.WaitGroup
	if app.Broker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.Broker.ConsumeRecompute(ctx, w.HandleRecomputeMessage); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", log.FieldError, err)
				}
				cancel()
			}
		}()
	} else {
		logger.Info("Skipping AMQP consumption - no broker configured")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx, cfg.SnapshotRefreshInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("Worker shutdown complete")
	case <-time.After(cli.ShutdownTimeout):
		logger.Warn("Shutdown timeout reached")
	}
}
