// Package bootstrap builds the retrieval stack (embedding provider, backends, router) from configuration.
// It is shared by the HTTP server and the query CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/redis/go-redis/v9"

	"github.com/panday-team/panday/internal/config"
	"github.com/panday-team/panday/internal/embeddings"
	"github.com/panday-team/panday/internal/googleai"
	"github.com/panday-team/panday/internal/observability"
	"github.com/panday-team/panday/internal/openai"
	"github.com/panday-team/panday/internal/repository"
	"github.com/panday-team/panday/internal/service"
	"github.com/panday-team/panday/pkg/database"
)

var (
	errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")
	errDatabaseURLRequired          = errors.New("EMBEDDINGS_BACKEND=postgres requires DATABASE_URL")
)

// Stack is the wired retrieval stack. Postgres is nil unless the postgres backend is active.
type Stack struct {
	Router   *service.Router
	File     *service.FileBackend
	Postgres *service.PostgresBackend
	Model    string

	db    *pgxpool.Pool
	redis *redis.Client
}

// NewEmbeddingClient returns the provider client selected by EMBEDDING_PROVIDER and its model name.
func NewEmbeddingClient(ctx context.Context, cfg *config.Config) (embeddings.Client, string, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderOpenAI:
		client := openai.NewClient(cfg.EmbeddingProviderAPIKey, []openai.ClientOption{
			openai.WithModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
		})

		return client, client.Model(), nil
	case config.EmbeddingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			return nil, "", fmt.Errorf("create google embedding client: %w", err)
		}

		return client, client.Model(), nil
	case config.EmbeddingProviderMock:
		return embeddings.NewMockClientWithDimensions(cfg.EmbeddingDimensions), "mock", nil
	default:
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// Build wires the retrieval stack. metrics may be nil. The postgres backend is constructed only when
// EMBEDDINGS_BACKEND selects it; a missing DATABASE_URL or an unreachable database is an error.
// An unreachable Redis only disables the shared result cache.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, model, err := NewEmbeddingClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider configured", "provider", cfg.EmbeddingProvider, "model", model)

	generator := embeddings.NewGenerator(embeddings.GeneratorParams{
		Client:    client,
		RateLimit: cfg.EmbeddingRateLimit,
		Metrics:   metrics.EmbeddingMetrics(),
		Logger:    logger,
	})

	fileBackend, err := service.NewFileBackend(service.FileBackendParams{
		Loader:         repository.NewFileIndexRepository(cfg.EmbeddingsPath),
		Embedder:       generator,
		Model:          model,
		IndexCacheTTL:  cfg.IndexCacheTTL,
		IndexCacheSize: cfg.IndexCacheSize,
		CacheMetrics:   metrics.CacheMetrics(),
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create file backend: %w", err)
	}

	stack := &Stack{File: fileBackend, Model: model}

	name, _ := service.ParseBackendName(cfg.EmbeddingsBackend)

	var primary service.Backend

	switch {
	case name != service.BackendPostgres:
	case cfg.DatabaseURL == "":
		return nil, errDatabaseURLRequired
	default:
		if err := stack.buildPostgres(ctx, cfg, generator, metrics, logger); err != nil {
			stack.Close()

			return nil, err
		}

		primary = stack.Postgres
	}

	router, err := service.NewRouter(service.RouterParams{
		Configured:       cfg.EmbeddingsBackend,
		DefaultRoadmapID: cfg.DefaultRoadmapID,
		Postgres:         primary,
		File:             fileBackend,
		Metrics:          metrics.RetrievalMetrics(),
		Logger:           logger,
	})
	if err != nil {
		stack.Close()

		return nil, fmt.Errorf("create router: %w", err)
	}

	stack.Router = router

	return stack, nil
}

func (s *Stack) buildPostgres(
	ctx context.Context,
	cfg *config.Config,
	embedder service.QueryEmbedder,
	metrics *observability.Metrics,
	logger *slog.Logger,
) error {
	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, &database.PoolConfig{
		MaxConns:        int32(cfg.DatabaseMaxConns), //nolint:gosec // validated by config.Load
		MinConns:        int32(cfg.DatabaseMinConns), //nolint:gosec // validated by config.Load
		MaxConnLifetime: cfg.DatabaseMaxConnLifetime,
		AfterConnect:    pgxvec.RegisterTypes,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	s.db = db

	var shared service.SharedResultCache

	if cfg.RedisURL != "" {
		rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("shared result cache disabled: redis unavailable", "error", err)
		} else {
			s.redis = rdb
			shared = repository.NewRedisQueryResultCache(rdb, cfg.QueryCacheTTL)

			logger.Info("shared result cache enabled")
		}
	}

	pg, err := service.NewPostgresBackend(service.PostgresBackendParams{
		Store:          repository.NewEmbeddingIndexRepository(db),
		Embedder:       embedder,
		QueryCacheTTL:  cfg.QueryCacheTTL,
		QueryCacheSize: cfg.QueryCacheSize,
		SharedCache:    shared,
		CacheMetrics:   metrics.CacheMetrics(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create postgres backend: %w", err)
	}

	s.Postgres = pg

	return nil
}

// Preload loads roadmapID's file index into the cache. Failures are logged, not returned.
func (s *Stack) Preload(ctx context.Context, roadmapID string, logger *slog.Logger) {
	if roadmapID == "" {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if _, err := s.File.LoadIndex(ctx, roadmapID); err != nil {
		logger.Warn("index preload failed", "roadmap_id", roadmapID, "error", err)

		return
	}

	logger.Info("index preloaded", "roadmap_id", roadmapID)
}

// Close releases the database pool and Redis client when they were opened.
func (s *Stack) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("close redis client", "error", err)
		}
	}

	if s.db != nil {
		s.db.Close()
	}
}
