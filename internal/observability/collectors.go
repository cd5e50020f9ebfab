package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RetrievalMetrics records backend query outcomes and router fallbacks.
type RetrievalMetrics interface {
	RecordQuery(ctx context.Context, backend, outcome string, duration time.Duration)
	RecordFallback(ctx context.Context, outcome string)
}

// CacheMetrics records lookups against the file index and query result caches.
// Hit ratio per cache = rate(hits) / (rate(hits) + rate(misses)).
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
}

// EmbeddingMetrics records query-embedding provider calls.
type EmbeddingMetrics interface {
	RecordProviderError(ctx context.Context, reason string)
	RecordEmbeddingDuration(ctx context.Context, duration time.Duration, status string)
}

func counter(meter metric.Meter, name, desc string) (metric.Int64Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	return c, nil
}

func secondsHistogram(meter metric.Meter, name, desc string) (metric.Float64Histogram, error) {
	h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	return h, nil
}

type retrievalMetrics struct {
	queries   metric.Int64Counter
	duration  metric.Float64Histogram
	fallbacks metric.Int64Counter
}

func newRetrievalMetrics(meter metric.Meter) (*retrievalMetrics, error) {
	var (
		m   retrievalMetrics
		err error
	)

	if m.queries, err = counter(meter, MetricNameQueries,
		"Embeddings queries by backend and outcome (success, error)"); err != nil {
		return nil, err
	}

	if m.duration, err = secondsHistogram(meter, MetricNameQueryDuration,
		"Embeddings query duration per backend, cache hits included"); err != nil {
		return nil, err
	}

	if m.fallbacks, err = counter(meter, MetricNameFallbacks,
		"Postgres failures answered by the file backend (recovered) or not (failed)"); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *retrievalMetrics) RecordQuery(ctx context.Context, backend, outcome string, duration time.Duration) {
	backendAttr := attribute.String(AttrBackend, NormalizeBackend(backend))
	m.queries.Add(ctx, 1, metric.WithAttributes(
		backendAttr,
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedQueryOutcomes)),
	))
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(backendAttr))
}

func (m *retrievalMetrics) RecordFallback(ctx context.Context, outcome string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedFallbackOutcomes)),
	))
}

type cacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

func newCacheMetrics(meter metric.Meter) (*cacheMetrics, error) {
	hits, err := counter(meter, MetricNameCacheHits,
		"Cache lookups served from memory or Redis, by cache (file_index, query_result, query_result_shared)")
	if err != nil {
		return nil, err
	}

	misses, err := counter(meter, MetricNameCacheMisses,
		"Cache lookups that fell through to disk, Postgres, or the next tier, by cache")
	if err != nil {
		return nil, err
	}

	return &cacheMetrics{hits: hits, misses: misses}, nil
}

func (c *cacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	c.hits.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName))))
}

func (c *cacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	c.misses.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName))))
}

type embeddingMetrics struct {
	providerErrors metric.Int64Counter
	duration       metric.Float64Histogram
}

func newEmbeddingMetrics(meter metric.Meter) (*embeddingMetrics, error) {
	providerErrors, err := counter(meter, MetricNameEmbeddingProviderErrors,
		"Query embedding failures by reason")
	if err != nil {
		return nil, err
	}

	duration, err := secondsHistogram(meter, MetricNameEmbeddingDuration,
		"Embedding provider call duration by status")
	if err != nil {
		return nil, err
	}

	return &embeddingMetrics{providerErrors: providerErrors, duration: duration}, nil
}

func (e *embeddingMetrics) RecordProviderError(ctx context.Context, reason string) {
	e.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, NormalizeReason(reason, AllowedEmbeddingProviderReason)),
	))
}

func (e *embeddingMetrics) RecordEmbeddingDuration(ctx context.Context, duration time.Duration, status string) {
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStatus, NormalizeReason(status, AllowedEmbeddingStatus)),
	))
}
