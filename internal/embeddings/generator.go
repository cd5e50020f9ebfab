package embeddings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/panday-team/panday/internal/observability"
	"github.com/panday-team/panday/internal/ragerrors"
)

// Generator produces query embeddings for the retrieval backends.
// Every call reaches the provider: there is no retry and no caching at this layer.
// Provider failures surface as *ragerrors.EmbeddingGenerationError.
type Generator struct {
	client  Client
	limiter *rate.Limiter
	metrics observability.EmbeddingMetrics
	logger  *slog.Logger
}

// GeneratorParams holds dependencies for NewGenerator.
type GeneratorParams struct {
	Client Client
	// RateLimit caps provider calls per second. Zero disables throttling.
	RateLimit float64
	// Metrics may be nil when metrics are disabled.
	Metrics observability.EmbeddingMetrics
	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(p GeneratorParams) *Generator {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Generator{
		client:  p.Client,
		metrics: p.Metrics,
		logger:  logger,
	}

	if p.RateLimit > 0 {
		burst := max(1, int(p.RateLimit))
		g.limiter = rate.NewLimiter(rate.Limit(p.RateLimit), burst)
	}

	return g
}

// Embed returns the embedding vector for text.
// Blank text is rejected with a validation error without calling the provider.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ragerrors.NewValidationError("query", "query text is empty")
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.recordError(ctx, "rate_limit_wait")

			return nil, ragerrors.NewEmbeddingGenerationError(err)
		}
	}

	start := time.Now()
	vec, err := g.client.CreateEmbedding(ctx, text)
	elapsed := time.Since(start)

	if err != nil {
		g.recordDuration(ctx, elapsed, "failed")
		g.recordError(ctx, "provider_error")
		g.logger.Warn("embedding generation failed", "error", err, "duration_ms", elapsed.Milliseconds())

		return nil, ragerrors.NewEmbeddingGenerationError(err)
	}

	if len(vec) == 0 {
		g.recordDuration(ctx, elapsed, "failed")
		g.recordError(ctx, "empty_embedding")

		return nil, ragerrors.NewEmbeddingGenerationError(errEmptyEmbedding)
	}

	g.recordDuration(ctx, elapsed, "success")

	return vec, nil
}

func (g *Generator) recordDuration(ctx context.Context, d time.Duration, status string) {
	if g.metrics != nil {
		g.metrics.RecordEmbeddingDuration(ctx, d, status)
	}
}

func (g *Generator) recordError(ctx context.Context, reason string) {
	if g.metrics != nil {
		g.metrics.RecordProviderError(ctx, reason)
	}
}
