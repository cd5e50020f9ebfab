package service

import (
	"context"
	"strings"

	"github.com/panday-team/panday/internal/models"
)

// BackendName identifies a retrieval backend.
type BackendName string

// Supported backends.
const (
	BackendJSON     BackendName = "json"
	BackendPostgres BackendName = "postgres"
)

// ParseBackendName maps an EMBEDDINGS_BACKEND value to a backend, case-insensitively.
// Empty selects json. Unrecognized values also select json and report ok=false so the caller can warn.
func ParseBackendName(raw string) (name BackendName, ok bool) {
	switch BackendName(strings.ToLower(strings.TrimSpace(raw))) {
	case BackendPostgres:
		return BackendPostgres, true
	case BackendJSON, "":
		return BackendJSON, true
	default:
		return BackendJSON, false
	}
}

// Backend answers retrieval queries against one vector store.
type Backend interface {
	Name() string
	QueryEmbeddings(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
}

// CacheClearer is implemented by backends that own a clearable result cache.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// IndexInvalidator is implemented by backends that cache loaded indexes per roadmap.
type IndexInvalidator interface {
	InvalidateIndex(roadmapID string)
}

// QueryEmbedder turns query text into a vector. Implemented by embeddings.Generator.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
