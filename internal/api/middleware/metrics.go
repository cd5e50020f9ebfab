package middleware

import (
	"net/http"
	"time"

	"github.com/panday-team/panday/internal/observability"
)

// knownRoutes bounds the route attribute; anything else is recorded as "other".
var knownRoutes = map[string]bool{
	"/health":                    true,
	"/ready":                     true,
	"/metrics":                   true,
	"/v1/embeddings/query":       true,
	"/v1/embeddings/cache/clear": true,
	"/v1/embeddings/backend":     true,
}

// Metrics returns middleware that records HTTP request count and duration.
// When metrics is nil, recording is skipped. Put Metrics outermost so duration is full request time.
func Metrics(metrics observability.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Context(), r.Method, normalizeRoute(r.URL.Path),
				statusToClass(rw.statusCode), time.Since(start))
		})
	}
}

// normalizeRoute maps unknown paths to "other" to bound cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}

	return "other"
}

// statusToClass maps HTTP status code to 1xx, 2xx, 4xx, 5xx.
func statusToClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status >= 100:
		return "1xx"
	default:
		return "unknown"
	}
}
