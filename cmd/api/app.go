package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/panday-team/panday/internal/api/handlers"
	"github.com/panday-team/panday/internal/api/middleware"
	"github.com/panday-team/panday/internal/bootstrap"
	"github.com/panday-team/panday/internal/config"
	"github.com/panday-team/panday/internal/observability"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	stack          *bootstrap.Stack
	server         *http.Server
	meterProvider  observability.MeterProviderShutdown
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

// NewApp builds and wires all components. It does not start the HTTP server;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		err            error
		meterProvider  observability.MeterProviderShutdown
		metricsHandler http.Handler
		metrics        *observability.Metrics
	)

	if cfg.MetricsEnabled() {
		meterProvider, metricsHandler, metrics, err = observability.NewMeterProvider(ctx,
			observability.MeterProviderConfig{Exporter: cfg.OtelMetricsExporter, ServiceName: cfg.ServiceName})
		if err != nil {
			return nil, fmt.Errorf("create meter provider: %w", err)
		}
	} else {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(ctx, observability.TracerProviderConfig{
			Exporter:    cfg.OtelTracesExporter,
			ServiceName: cfg.ServiceName,
			SampleRatio: cfg.TracesSampleRatio,
		})
		if err != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}

		otel.SetTracerProvider(tracerProvider)
	}

	if mp, ok := meterProvider.(metric.MeterProvider); ok {
		otel.SetMeterProvider(mp)
	}

	stack, err := bootstrap.Build(ctx, cfg, metrics, slog.Default())
	if err != nil {
		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after build error", "error", err2)
		}

		return nil, fmt.Errorf("build retrieval stack: %w", err)
	}

	server := newHTTPServer(cfg, stack, metrics, metricsHandler, meterProvider, tracerProvider)

	return &App{
		cfg:            cfg,
		stack:          stack,
		server:         server,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health, /ready and /metrics, API key on /v1/).
// Handler chain: RequestID -> Metrics -> otelhttp(Logging(MaxBody(mux))) so access logs get trace_id/span_id.
func newHTTPServer(
	cfg *config.Config,
	stack *bootstrap.Stack,
	metrics *observability.Metrics,
	metricsHandler http.Handler,
	meterProvider observability.MeterProviderShutdown,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	health := handlers.NewHealthHandler(func(ctx context.Context) error {
		_, err := stack.File.LoadIndex(ctx, cfg.DefaultRoadmapID)

		return err
	})
	embeddings := handlers.NewEmbeddingsHandler(stack.Router)

	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)
	public.HandleFunc("GET /ready", health.Ready)

	if metricsHandler != nil {
		public.Handle("GET /metrics", metricsHandler)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("/v1/embeddings/query", embeddings.Query)
	protected.HandleFunc("/v1/embeddings/cache/clear", embeddings.ClearCache)
	protected.HandleFunc("/v1/embeddings/backend", embeddings.Backend)

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware.Auth(cfg.APIKey)(protected))
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/ready" && r.URL.Path != "/metrics"
		}),
	}
	if mp, ok := meterProvider.(metric.MeterProvider); ok {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(mp))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	var handler http.Handler = middleware.MaxBody(cfg.MaxRequestBodyBytes, metrics.HTTPMetrics())(mux)
	// Logging runs inside otelhttp so r.Context() has the span when we log.
	handler = middleware.Logging(slog.Default())(handler)
	handler = otelhttp.NewHandler(handler, "panday-api", otelOpts...)
	handler = middleware.Metrics(metrics.HTTPMetrics())(handler)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run preloads the configured roadmap index, starts the HTTP server, then blocks until ctx is
// cancelled (e.g. signal) or the server fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	a.stack.Preload(ctx, a.cfg.PreloadRoadmapID, slog.Default())

	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port, "backend", a.stack.Router.ActiveBackend())

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(
	ctx context.Context, tracer *sdktrace.TracerProvider, meter observability.MeterProviderShutdown,
) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server, then releases the database and Redis, then observability.
// The observability error is returned only when the server shut down cleanly.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	defer a.stack.Close()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
