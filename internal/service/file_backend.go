package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/observability"
	"github.com/panday-team/panday/internal/ragerrors"
	"github.com/panday-team/panday/internal/repository"
	"github.com/panday-team/panday/pkg/cache"
	"github.com/panday-team/panday/pkg/vectorindex"
)

// Defaults for the file backend's index cache.
const (
	DefaultIndexCacheTTL  = time.Hour
	DefaultIndexCacheSize = 64
)

// FileIndexLoader loads a persisted roadmap index. Implemented by repository.FileIndexRepository.
type FileIndexLoader interface {
	Load(ctx context.Context, roadmapID string) (*repository.FileIndex, error)
}

// FileBackend serves queries from persisted per-roadmap vector indexes held in memory.
// Loaded indexes are cached per roadmap for IndexCacheTTL; query results are not cached.
type FileBackend struct {
	loader       FileIndexLoader
	embedder     QueryEmbedder
	indexCache   *cache.TTLCache[string, *repository.FileIndex]
	cacheMetrics observability.CacheMetrics
	model        string
	logger       *slog.Logger
}

// FileBackendParams configures FileBackend. Zero TTL and size use the defaults.
// Clock and CacheMetrics may be nil. Model is the query embedding model; when set, indexes
// whose manifest names another model are logged with a warning.
type FileBackendParams struct {
	Loader         FileIndexLoader
	Embedder       QueryEmbedder
	Model          string
	IndexCacheTTL  time.Duration
	IndexCacheSize int
	Clock          func() time.Time
	CacheMetrics   observability.CacheMetrics
	Logger         *slog.Logger
}

// NewFileBackend creates a FileBackend.
func NewFileBackend(p FileBackendParams) (*FileBackend, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ttl := p.IndexCacheTTL
	if ttl == 0 {
		ttl = DefaultIndexCacheTTL
	}

	size := p.IndexCacheSize
	if size == 0 {
		size = DefaultIndexCacheSize
	}

	indexCache, err := cache.NewTTLCache[string, *repository.FileIndex](
		size, ttl, func(roadmapID string) string { return roadmapID }, cache.WithClock(p.Clock),
	)
	if err != nil {
		return nil, err
	}

	return &FileBackend{
		loader:       p.Loader,
		embedder:     p.Embedder,
		indexCache:   indexCache,
		cacheMetrics: p.CacheMetrics,
		model:        p.Model,
		logger:       logger,
	}, nil
}

// Name returns "json".
func (b *FileBackend) Name() string {
	return string(BackendJSON)
}

// LoadIndex returns the index for roadmapID, from cache when loaded less than the TTL ago.
// Concurrent misses for one roadmap share a single disk load. Failed loads are not cached.
func (b *FileBackend) LoadIndex(ctx context.Context, roadmapID string) (*repository.FileIndex, error) {
	fi, hit, err := b.indexCache.GetOrLoad(ctx, roadmapID,
		func(ctx context.Context, roadmapID string) (*repository.FileIndex, error) {
			// The load is shared by every waiter, so one caller's cancellation must not fail the rest.
			return b.loadIndex(context.WithoutCancel(ctx), roadmapID)
		})
	b.recordCache(ctx, hit)

	if err != nil {
		return nil, err
	}

	return fi, nil
}

func (b *FileBackend) loadIndex(ctx context.Context, roadmapID string) (*repository.FileIndex, error) {
	start := time.Now()

	fi, err := b.loader.Load(ctx, roadmapID)
	if err != nil {
		b.logger.Error("file backend: index load failed", "roadmap_id", roadmapID, "error", err)

		return nil, err
	}

	attrs := []any{
		"roadmap_id", roadmapID,
		"nodes", fi.Index.Len(),
		"dimensions", fi.Index.Dimensions(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if m := fi.Manifest; m != nil {
		attrs = append(attrs, "model", m.Model, "document_count", m.DocumentCount, "generated_at", m.GeneratedAt)
	}

	b.logger.Info("file backend: index loaded", attrs...)

	if fi.Manifest != nil && b.model != "" && fi.Manifest.Model != "" && fi.Manifest.Model != b.model {
		// Vectors from different models are not comparable; results will be poor.
		b.logger.Warn("file backend: index built with a different embedding model",
			"roadmap_id", roadmapID,
			"index_model", fi.Manifest.Model,
			"query_model", b.model,
		)
	}

	return fi, nil
}

// InvalidateIndex drops the cached index for roadmapID so the next query reloads it from disk.
func (b *FileBackend) InvalidateIndex(roadmapID string) {
	b.indexCache.Invalidate(roadmapID)
}

// Retrieve embeds query and returns the topK most similar nodes of fi.
// Failures are returned as *ragerrors.RetrievalError.
func (b *FileBackend) Retrieve(
	ctx context.Context, fi *repository.FileIndex, query string, topK int,
) ([]vectorindex.Hit, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, ragerrors.NewRetrievalError(fi.RoadmapID, err)
	}

	hits, err := fi.Index.Search(vec, topK)
	if err != nil {
		return nil, ragerrors.NewRetrievalError(fi.RoadmapID, err)
	}

	return hits, nil
}

// QueryEmbeddings answers req from the roadmap's persisted index.
// Errors are wrapped in *ragerrors.BackendError.
func (b *FileBackend) QueryEmbeddings(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	req = req.WithDefaults()

	ctx, span := observability.Tracer().Start(ctx, "embeddings.json.query")
	defer span.End()

	span.SetAttributes(attribute.String("roadmap_id", req.RoadmapID), attribute.Int("top_k", req.TopK))

	resp, err := b.query(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")

		return models.QueryResponse{}, ragerrors.NewBackendError(b.Name(), req.RoadmapID, err)
	}

	return resp, nil
}

func (b *FileBackend) query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	fi, err := b.LoadIndex(ctx, req.RoadmapID)
	if err != nil {
		return models.QueryResponse{}, err
	}

	hits, err := b.Retrieve(ctx, fi, req.Query, req.TopK)
	if err != nil {
		return models.QueryResponse{}, err
	}

	sourceHits := make([]SourceHit, len(hits))
	for i, h := range hits {
		sourceHits[i] = SourceHit{Content: h.Node.Text, Metadata: h.Node.Metadata, Score: h.Score}
	}

	b.logger.Debug("file backend: query served", "roadmap_id", req.RoadmapID, "hits", len(hits))

	return buildResponse(req, sourceHits), nil
}

func (b *FileBackend) recordCache(ctx context.Context, hit bool) {
	if b.cacheMetrics == nil {
		return
	}

	if hit {
		b.cacheMetrics.RecordHit(ctx, observability.CacheFileIndex)
	} else {
		b.cacheMetrics.RecordMiss(ctx, observability.CacheFileIndex)
	}
}
