package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"contador/internal/cli"
	apphttp "contador/internal/http"
	"contador/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	logger.Info("Initialized backend", "backend", cfg.DataBackend)

	app := cli.NewApp(context.Background(), logger, cfg, res, cli.AppOptions{Broker: true, Narrator: true})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Advisor:            app.Advisor,
		Snapshots:          app.Snapshots,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, cli.ShutdownTimeout, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		app.Close()
	})

	logger.Info("Starting server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed to start", log.FieldError, err, "port", cfg.Port)
		app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped")
}
