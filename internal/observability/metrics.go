package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	meterScope       = "github.com/panday-team/panday/internal/observability"
	cardinalityLimit = 2000

	defaultOTLPExportInterval = 60 * time.Second
)

// Metrics exporter names accepted by MeterProviderConfig.Exporter.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
)

var errUnsupportedMetricsExporter = errors.New("unsupported metrics exporter")

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for request and query duration histograms.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics records request count and duration per route, and requests rejected for body size.
type HTTPMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// Exporter is "prometheus" (default) or "otlp". OTLP pushes to the endpoint in
	// OTEL_EXPORTER_OTLP_ENDPOINT and serves no /metrics handler.
	Exporter string
	// ServiceName is used in the resource (default: panday-embeddings).
	ServiceName string
	// ExportInterval is the OTLP push interval (default 60s).
	ExportInterval time.Duration
}

// NewMeterProvider creates a MeterProvider for cfg.Exporter and returns the provider,
// an HTTP handler for /metrics (nil for OTLP), and the collectors that use the provider's Meter.
// Caller must call provider.Shutdown on exit. When metrics are disabled, pass nil for metrics at call sites.
func NewMeterProvider(
	ctx context.Context, cfg MeterProviderConfig,
) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics *Metrics, err error) {
	var reader sdkmetric.Reader

	switch cfg.Exporter {
	case "", ExporterPrometheus:
		reg := prometheus.NewRegistry()

		exporter, err := prometheusexporter.New(
			prometheusexporter.WithRegisterer(reg),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		reader = exporter
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case ExporterOTLP:
		// SDK reads OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from env.
		exporter, err := otlpmetrichttp.New(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = defaultOTLPExportInterval
		}

		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	default:
		return nil, nil, nil, fmt.Errorf("%w: %q", errUnsupportedMetricsExporter, cfg.Exporter)
	}

	histogramView := func(name string) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
		)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(newResource(cfg.ServiceName)),
		sdkmetric.WithReader(reader),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			histogramView("http.server.duration"),
			histogramView(MetricNameQueryDuration),
			histogramView(MetricNameEmbeddingDuration),
		),
	)

	metrics, err = NewMetrics(mp.Meter(meterScope))
	if err != nil {
		_ = mp.Shutdown(ctx)

		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	return mp, metricsHandler, metrics, nil
}

// ShutdownMeterProvider flushes and shuts down the MeterProvider. Safe to call with nil.
func ShutdownMeterProvider(ctx context.Context, provider MeterProviderShutdown) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	var (
		m   httpMetrics
		err error
	)

	if m.requestCount, err = meter.Int64Counter("http.server.request_count",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("request_count: %w", err)
	}

	if m.requestDuration, err = secondsHistogram(meter, "http.server.duration",
		"HTTP request duration in seconds"); err != nil {
		return nil, err
	}

	if m.bodyTooLarge, err = counter(meter, MetricNameRequestBodyTooLarge,
		"Requests rejected with 413 because the body exceeded MAX_REQUEST_BODY_BYTES"); err != nil {
		return nil, err
	}

	return &m, nil
}

type httpMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	bodyTooLarge    metric.Int64Counter
}

func (m *httpMetrics) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (m *httpMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	m.bodyTooLarge.Add(ctx, 1)
}
