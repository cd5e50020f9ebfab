package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/observability"
)

// ErrFileBackendRequired is returned by NewRouter when no file backend is supplied.
var ErrFileBackendRequired = errors.New("router: file backend is required")

// Outcomes recorded by the router.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeRecovered = "recovered"
	outcomeFailed    = "failed"
)

// RouterParams configures a Router. Postgres, Metrics and Logger may be nil.
type RouterParams struct {
	// Configured is the raw EMBEDDINGS_BACKEND value.
	Configured string
	// DefaultRoadmapID replaces models.DefaultRoadmapID for requests without a roadmap.
	DefaultRoadmapID string
	Postgres         Backend
	File             Backend
	Metrics          observability.RetrievalMetrics
	Logger           *slog.Logger
}

// Router dispatches queries to the configured backend. When postgres is configured,
// failures fall back to the file backend; if that also fails the postgres error is returned.
type Router struct {
	active         BackendName
	defaultRoadmap string
	primary        Backend
	fallback       Backend
	clearer        CacheClearer
	indexes        IndexInvalidator
	metrics        observability.RetrievalMetrics
	logger         *slog.Logger
}

// NewRouter creates a Router. Unknown backend names and a postgres selection without a
// postgres backend both degrade to the file backend with a warning.
func NewRouter(p RouterParams) (*Router, error) {
	if p.File == nil {
		return nil, ErrFileBackendRequired
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name, ok := ParseBackendName(p.Configured)
	if !ok {
		logger.Warn("router: unknown embeddings backend, using json", "backend", p.Configured)
	}

	if name == BackendPostgres && p.Postgres == nil {
		logger.Warn("router: postgres backend unavailable, using json")

		name = BackendJSON
	}

	defaultRoadmap := p.DefaultRoadmapID
	if defaultRoadmap == "" {
		defaultRoadmap = models.DefaultRoadmapID
	}

	r := &Router{
		active:         name,
		defaultRoadmap: defaultRoadmap,
		primary:        p.File,
		metrics:        p.Metrics,
		logger:         logger,
	}

	if inv, ok := p.File.(IndexInvalidator); ok {
		r.indexes = inv
	}

	if name == BackendPostgres {
		r.primary = p.Postgres
		r.fallback = p.File

		if c, ok := p.Postgres.(CacheClearer); ok {
			r.clearer = c
		}
	}

	logger.Info("router: embeddings backend selected", "backend", string(name))

	return r, nil
}

// DefaultRoadmapID returns the roadmap used for requests that name none.
func (r *Router) DefaultRoadmapID() string {
	return r.defaultRoadmap
}

// ActiveBackend returns the name of the backend queries are sent to first.
func (r *Router) ActiveBackend() string {
	return string(r.active)
}

// QueryEmbeddings sends req to the active backend, falling back to the file backend when
// postgres fails. When both fail, the returned error is the original postgres error.
func (r *Router) QueryEmbeddings(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	if req.RoadmapID == "" {
		req.RoadmapID = r.defaultRoadmap
	}

	req = req.WithDefaults()

	ctx, span := observability.Tracer().Start(ctx, "embeddings.router.query")
	defer span.End()

	span.SetAttributes(
		attribute.String("backend", r.primary.Name()),
		attribute.String("roadmap_id", req.RoadmapID),
	)

	resp, err := r.queryBackend(ctx, r.primary, req)
	if err == nil {
		return resp, nil
	}

	if r.fallback == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")

		return models.QueryResponse{}, err
	}

	r.logger.Warn("router: primary backend failed, falling back",
		"backend", r.primary.Name(),
		"fallback", r.fallback.Name(),
		"roadmap_id", req.RoadmapID,
		"error", err,
	)

	span.AddEvent("fallback", trace.WithAttributes(attribute.String("fallback", r.fallback.Name())))

	resp, fallbackErr := r.queryBackend(ctx, r.fallback, req)
	if fallbackErr != nil {
		r.recordFallback(ctx, outcomeFailed)

		r.logger.Error("router: fallback backend failed",
			"backend", r.primary.Name(),
			"fallback", r.fallback.Name(),
			"roadmap_id", req.RoadmapID,
			"error", err,
			"fallback_error", fallbackErr,
		)

		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")

		return models.QueryResponse{}, err
	}

	r.recordFallback(ctx, outcomeRecovered)

	return resp, nil
}

func (r *Router) queryBackend(ctx context.Context, b Backend, req models.QueryRequest) (models.QueryResponse, error) {
	start := time.Now()
	resp, err := b.QueryEmbeddings(ctx, req)

	if r.metrics != nil {
		outcome := outcomeSuccess
		if err != nil {
			outcome = outcomeError
		}

		r.metrics.RecordQuery(ctx, b.Name(), outcome, time.Since(start))
	}

	return resp, err
}

func (r *Router) recordFallback(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordFallback(ctx, outcome)
	}
}

// ClearCache clears the postgres result cache. It is a no-op when postgres is not active.
func (r *Router) ClearCache(ctx context.Context) error {
	if r.clearer == nil {
		r.logger.Debug("router: no result cache to clear", "backend", string(r.active))

		return nil
	}

	return r.clearer.ClearCache(ctx)
}

// InvalidateIndex drops the file backend's cached index for roadmapID.
func (r *Router) InvalidateIndex(roadmapID string) {
	if r.indexes != nil {
		r.indexes.InvalidateIndex(roadmapID)
	}
}
