package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/observability"
	"github.com/panday-team/panday/internal/ragerrors"
	"github.com/panday-team/panday/internal/repository"
	"github.com/panday-team/panday/pkg/cache"
)

// Defaults for the postgres backend's result cache.
const (
	DefaultQueryCacheTTL  = 5 * time.Minute
	DefaultQueryCacheSize = 1000
)

const globalScope = "global"

// EmbeddingIndexStore resolves active indexes and runs similarity search.
// Implemented by repository.EmbeddingIndexRepository.
type EmbeddingIndexStore interface {
	ResolveActiveIndex(ctx context.Context, roadmapID string, userID *string) (models.EmbeddingIndex, error)
	SimilaritySearch(ctx context.Context, indexID string, queryEmbedding []float32, topK int) ([]models.RankedRow, error)
}

// SharedResultCache is a cross-process result cache consulted behind the in-process one.
// Implemented by repository.RedisQueryResultCache.
type SharedResultCache interface {
	Get(ctx context.Context, key string) (models.QueryResponse, bool, error)
	Set(ctx context.Context, key string, resp models.QueryResponse) error
	Clear(ctx context.Context) (int, error)
}

// PostgresBackend serves queries from pgvector indexes, caching full responses for QueryCacheTTL.
type PostgresBackend struct {
	store        EmbeddingIndexStore
	embedder     QueryEmbedder
	results      *cache.TTLCache[string, models.QueryResponse]
	shared       SharedResultCache
	cacheMetrics observability.CacheMetrics
	logger       *slog.Logger
}

// PostgresBackendParams configures PostgresBackend. Zero TTL and size use the defaults.
// Clock, SharedCache and CacheMetrics may be nil.
type PostgresBackendParams struct {
	Store          EmbeddingIndexStore
	Embedder       QueryEmbedder
	QueryCacheTTL  time.Duration
	QueryCacheSize int
	Clock          func() time.Time
	SharedCache    SharedResultCache
	CacheMetrics   observability.CacheMetrics
	Logger         *slog.Logger
}

// NewPostgresBackend creates a PostgresBackend.
func NewPostgresBackend(p PostgresBackendParams) (*PostgresBackend, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ttl := p.QueryCacheTTL
	if ttl == 0 {
		ttl = DefaultQueryCacheTTL
	}

	size := p.QueryCacheSize
	if size == 0 {
		size = DefaultQueryCacheSize
	}

	results, err := cache.NewTTLCache[string, models.QueryResponse](
		size, ttl, func(key string) string { return key }, cache.WithClock(p.Clock),
	)
	if err != nil {
		return nil, err
	}

	return &PostgresBackend{
		store:        p.Store,
		embedder:     p.Embedder,
		results:      results,
		shared:       p.SharedCache,
		cacheMetrics: p.CacheMetrics,
		logger:       logger,
	}, nil
}

// Name returns "postgres".
func (b *PostgresBackend) Name() string {
	return string(BackendPostgres)
}

// ResultCacheKey returns the cache key for req: roadmap, user (or "global"), topK and query text.
// req must already have defaults applied.
func ResultCacheKey(req models.QueryRequest) string {
	scope := globalScope
	if req.UserID != nil {
		scope = *req.UserID
	}

	return req.RoadmapID + ":" + scope + ":" + strconv.Itoa(req.TopK) + ":" + req.Query
}

// QueryEmbeddings answers req from the active index for its roadmap and user.
// Identical requests within the cache TTL are served without touching the database or the provider.
// Errors are wrapped in *ragerrors.BackendError and are never cached.
func (b *PostgresBackend) QueryEmbeddings(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	req = req.WithDefaults()

	ctx, span := observability.Tracer().Start(ctx, "embeddings.postgres.query")
	defer span.End()

	span.SetAttributes(
		attribute.String("roadmap_id", req.RoadmapID),
		attribute.Int("top_k", req.TopK),
		attribute.Bool("user_scoped", req.UserID != nil),
	)

	resp, hit, err := b.results.GetOrLoad(ctx, ResultCacheKey(req), func(ctx context.Context, key string) (models.QueryResponse, error) {
		return b.load(context.WithoutCancel(ctx), key, req)
	})
	b.recordCache(ctx, observability.CacheQueryResult, hit)

	span.SetAttributes(attribute.Bool("cache_hit", hit))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")

		b.logger.Error("postgres backend: query failed", "roadmap_id", req.RoadmapID, "error", err)

		return models.QueryResponse{}, ragerrors.NewBackendError(b.Name(), req.RoadmapID, err)
	}

	resp.Sources = slices.Clone(resp.Sources)

	return resp, nil
}

// load consults the shared cache, then computes the response and publishes it there.
// Shared cache failures are logged and never fail the query.
func (b *PostgresBackend) load(ctx context.Context, key string, req models.QueryRequest) (models.QueryResponse, error) {
	if b.shared != nil {
		resp, ok, err := b.shared.Get(ctx, key)
		if err != nil {
			b.logger.Warn("postgres backend: shared cache get failed", "error", err)
		}

		b.recordCache(ctx, observability.CacheQueryResultShared, ok)

		if ok {
			return resp, nil
		}
	}

	resp, err := b.query(ctx, req)
	if err != nil {
		return models.QueryResponse{}, err
	}

	if b.shared != nil {
		if err := b.shared.Set(ctx, key, resp); err != nil {
			b.logger.Warn("postgres backend: shared cache set failed", "error", err)
		}
	}

	return resp, nil
}

func (b *PostgresBackend) query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	index, err := b.store.ResolveActiveIndex(ctx, req.RoadmapID, req.UserID)
	if err != nil {
		return models.QueryResponse{}, err
	}

	vec, err := b.embedder.Embed(ctx, req.Query)
	if err != nil {
		return models.QueryResponse{}, err
	}

	rows, err := b.store.SimilaritySearch(ctx, index.ID, vec, req.TopK)
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("similarity search: %w", err)
	}

	hits := make([]SourceHit, len(rows))
	for i, row := range rows {
		hits[i] = SourceHit{
			NodeID:   row.NodeID,
			Content:  row.Content,
			Metadata: row.Metadata,
			Score:    repository.ScoreFromDistance(row.Distance),
		}
	}

	slices.SortStableFunc(hits, func(a, b SourceHit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	b.logger.Debug("postgres backend: query served",
		"roadmap_id", req.RoadmapID,
		"index_id", index.ID,
		"hits", len(hits),
	)

	return buildResponse(req, hits), nil
}

// ClearCache empties the in-process result cache and, when configured, the shared one.
// The in-process cache is always cleared even if the shared clear fails.
func (b *PostgresBackend) ClearCache(ctx context.Context) error {
	b.results.InvalidateAll()

	if b.shared == nil {
		b.logger.Info("postgres backend: result cache cleared")

		return nil
	}

	n, err := b.shared.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clear shared result cache: %w", err)
	}

	b.logger.Info("postgres backend: result cache cleared", "shared_keys", n)

	return nil
}

func (b *PostgresBackend) recordCache(ctx context.Context, name string, hit bool) {
	if b.cacheMetrics == nil {
		return
	}

	if hit {
		b.cacheMetrics.RecordHit(ctx, name)
	} else {
		b.cacheMetrics.RecordMiss(ctx, name)
	}
}
