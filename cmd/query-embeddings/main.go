// query-embeddings runs one retrieval query through the same router the API uses and prints the
// ranked sources. Configuration comes from the environment (and .env), like the API server;
// --backend overrides EMBEDDINGS_BACKEND for this run.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/panday-team/panday/internal/bootstrap"
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
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(config.Load, buildQuerier)
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("query failed", "error", err)

		return exitFailure
	}

	return exitSuccess
}

// buildQuerier wires the retrieval stack without metrics and returns its router.
func buildQuerier(ctx context.Context, cfg *config.Config) (querier, func(), error) {
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	stack, err := bootstrap.Build(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}

	return stack.Router, stack.Close, nil
}
