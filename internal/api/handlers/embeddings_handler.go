package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/panday-team/panday/internal/api/response"
	"github.com/panday-team/panday/internal/api/validation"
	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/ragerrors"
)

// EmbeddingsService answers retrieval queries and manages their caches. Implemented by service.Router.
type EmbeddingsService interface {
	QueryEmbeddings(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
	ClearCache(ctx context.Context) error
	InvalidateIndex(roadmapID string)
	ActiveBackend() string
	DefaultRoadmapID() string
}

// EmbeddingsHandler handles HTTP requests for embeddings retrieval.
type EmbeddingsHandler struct {
	service EmbeddingsService
}

// NewEmbeddingsHandler creates a new embeddings handler.
func NewEmbeddingsHandler(service EmbeddingsService) *EmbeddingsHandler {
	return &EmbeddingsHandler{service: service}
}

// Query handles POST /v1/embeddings/query (JSON body) and GET /v1/embeddings/query (query params).
func (h *EmbeddingsHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest

	switch r.Method {
	case http.MethodPost:
		if err := validation.DecodeJSONBody(r, &req); err != nil {
			response.RespondBadRequest(w, "Invalid request body")

			return
		}

		if err := validation.ValidateStruct(&req); err != nil {
			validation.RespondValidationError(w, err)

			return
		}
	case http.MethodGet:
		if err := validation.DecodeQueryParams(r, &req); err != nil {
			response.RespondBadRequest(w, "Invalid query parameters")

			return
		}

		if err := validation.ValidateStruct(&req); err != nil {
			validation.RespondValidationError(w, err)

			return
		}
	default:
		response.RespondMethodNotAllowed(w, "GET, POST")

		return
	}

	if req.RoadmapID == "" {
		req.RoadmapID = h.service.DefaultRoadmapID()
	}

	resp, err := h.service.QueryEmbeddings(r.Context(), req)
	if err != nil {
		h.respondQueryError(w, r, req, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// respondQueryError maps backend failures to HTTP. Provider and database messages stay in the logs.
func (h *EmbeddingsHandler) respondQueryError(w http.ResponseWriter, r *http.Request, req models.QueryRequest, err error) {
	switch {
	case errors.Is(err, ragerrors.ErrValidation):
		var vErr *ragerrors.ValidationError
		if errors.As(err, &vErr) {
			response.RespondBadRequest(w, vErr.Error())

			return
		}

		response.RespondBadRequest(w, "Invalid query")
	case errors.Is(err, ragerrors.ErrNotFound):
		slog.WarnContext(r.Context(), "embeddings query: index not found",
			"roadmap_id", req.RoadmapID,
			"error", err,
		)

		response.RespondNotFound(w, "No embedding index found for roadmap "+req.RoadmapID)
	default:
		slog.ErrorContext(r.Context(), "embeddings query failed",
			"roadmap_id", req.RoadmapID,
			"query_length", len(req.Query),
			"error", err,
		)

		response.RespondBadGateway(w, "Embeddings query failed")
	}
}

// ClearCache handles POST /v1/embeddings/cache/clear.
// With ?scope=index&roadmap_id=x the file backend's cached index for x is dropped as well.
func (h *EmbeddingsHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.RespondMethodNotAllowed(w, "POST")

		return
	}

	query := r.URL.Query()
	scope := query.Get("scope")
	roadmapID := query.Get("roadmap_id")

	switch scope {
	case "", "results":
	case "index":
		if !models.ValidRoadmapID(roadmapID) {
			response.RespondBadRequest(w, "roadmap_id is required for scope=index")

			return
		}

		h.service.InvalidateIndex(roadmapID)
	default:
		response.RespondBadRequest(w, "scope must be one of: results, index")

		return
	}

	if err := h.service.ClearCache(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "embeddings cache clear failed", "error", err)
		response.RespondInternalServerError(w, "Failed to clear cache")

		return
	}

	slog.InfoContext(r.Context(), "embeddings cache cleared", "scope", scope, "roadmap_id", roadmapID)

	w.WriteHeader(http.StatusNoContent)
}

// Backend handles GET /v1/embeddings/backend.
func (h *EmbeddingsHandler) Backend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.RespondMethodNotAllowed(w, "GET")

		return
	}

	response.RespondJSON(w, http.StatusOK, models.BackendInfo{Backend: h.service.ActiveBackend()})
}
