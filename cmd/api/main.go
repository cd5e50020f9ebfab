package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/panday-team/panday/internal/config"
	"github.com/panday-team/panday/internal/observability"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)

		return exitFailure
	}

	// Text logs at LOG_LEVEL with request_id and trace_id/span_id from the context.
	slog.SetDefault(observability.NewLogger(os.Stdout, cfg.LogLevel))

	if err := cfg.RequireAPIKey(); err != nil {
		slog.Error("Invalid configuration", "error", err)

		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start", "error", err)

		return exitFailure
	}

	runErr := app.Run(ctx)
	if runErr != nil {
		slog.Error("Server stopped", "error", runErr)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)

		return exitFailure
	}

	slog.Info("Server exited")

	if runErr != nil {
		return exitFailure
	}

	return exitSuccess
}
