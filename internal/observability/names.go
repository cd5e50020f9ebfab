// Package observability provides OpenTelemetry metrics and tracing for the retrieval service.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameQueries                 = "panday_embeddings_queries_total"
	MetricNameQueryDuration           = "panday_embeddings_query_duration_seconds"
	MetricNameFallbacks               = "panday_embeddings_fallbacks_total"
	MetricNameCacheHits               = "panday_cache_hits_total"
	MetricNameCacheMisses             = "panday_cache_misses_total"
	MetricNameEmbeddingDuration       = "panday_embedding_provider_duration_seconds"
	MetricNameEmbeddingProviderErrors = "panday_embedding_provider_errors_total"
	MetricNameRequestBodyTooLarge     = "panday_http_request_body_too_large_total"
)

// Attribute keys.
const (
	AttrBackend = "backend"
	AttrCache   = "cache"
	AttrOutcome = "outcome"
	AttrReason  = "reason"
	AttrStatus  = "status"
)

// Cache names used as the "cache" attribute.
const (
	CacheFileIndex         = "file_index"
	CacheQueryResult       = "query_result"
	CacheQueryResultShared = "query_result_shared"
)

// AllowedCacheNames bounds the "cache" attribute.
var AllowedCacheNames = map[string]bool{
	CacheFileIndex:         true,
	CacheQueryResult:       true,
	CacheQueryResultShared: true,
}

// AllowedBackends bounds the "backend" attribute.
var AllowedBackends = map[string]bool{
	"json":     true,
	"postgres": true,
}

// AllowedQueryOutcomes for panday_embeddings_queries_total.
var AllowedQueryOutcomes = map[string]bool{
	"success": true,
	"error":   true,
}

// AllowedFallbackOutcomes for panday_embeddings_fallbacks_total.
var AllowedFallbackOutcomes = map[string]bool{
	"recovered": true,
	"failed":    true,
}

// AllowedEmbeddingProviderReason for panday_embedding_provider_errors_total.
var AllowedEmbeddingProviderReason = map[string]bool{
	"provider_error":  true,
	"empty_embedding": true,
	"rate_limit_wait": true,
}

// AllowedEmbeddingStatus for panday_embedding_provider_duration_seconds.
var AllowedEmbeddingStatus = map[string]bool{
	"success": true,
	"failed":  true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}

// NormalizeBackend returns backend if known, otherwise "other".
func NormalizeBackend(backend string) string {
	return NormalizeReason(backend, AllowedBackends)
}
