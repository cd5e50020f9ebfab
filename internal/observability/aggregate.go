package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric collectors. A nil *Metrics means metrics are disabled;
// use the accessor methods so callers receive nil interfaces in that case.
type Metrics struct {
	HTTP      HTTPMetrics
	Cache     CacheMetrics
	Embedding EmbeddingMetrics
	Retrieval RetrievalMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	httpMetrics, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	cache, err := newCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	embedding, err := newEmbeddingMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("embedding metrics: %w", err)
	}

	retrieval, err := newRetrievalMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("retrieval metrics: %w", err)
	}

	return &Metrics{
		HTTP:      httpMetrics,
		Cache:     cache,
		Embedding: embedding,
		Retrieval: retrieval,
	}, nil
}

// CacheMetrics returns the cache collector, or nil when m is nil.
func (m *Metrics) CacheMetrics() CacheMetrics {
	if m == nil {
		return nil
	}

	return m.Cache
}

// EmbeddingMetrics returns the embedding collector, or nil when m is nil.
func (m *Metrics) EmbeddingMetrics() EmbeddingMetrics {
	if m == nil {
		return nil
	}

	return m.Embedding
}

// RetrievalMetrics returns the retrieval collector, or nil when m is nil.
func (m *Metrics) RetrievalMetrics() RetrievalMetrics {
	if m == nil {
		return nil
	}

	return m.Retrieval
}

// HTTPMetrics returns the HTTP collector, or nil when m is nil.
func (m *Metrics) HTTPMetrics() HTTPMetrics {
	if m == nil {
		return nil
	}

	return m.HTTP
}
