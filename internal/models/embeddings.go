package models

import (
	"time"
)

// Retrieval defaults applied when a request leaves the field unset.
const (
	DefaultTopK      = 5
	MaxTopK          = 20
	DefaultRoadmapID = "electrician-bc"
)

// QueryRequest asks a retrieval backend for the TopK nodes of a roadmap most similar to Query.
// A nil UserID selects the roadmap's global index.
type QueryRequest struct {
	Query     string  `json:"query" form:"query" validate:"required,no_null_bytes,not_blank,max=2000"`
	TopK      int     `json:"top_k,omitempty" form:"top_k" validate:"omitempty,min=1,max=20"`
	RoadmapID string  `json:"roadmap_id,omitempty" form:"roadmap_id" validate:"omitempty,roadmap_id,max=100"`
	UserID    *string `json:"user_id,omitempty" form:"user_id" validate:"omitempty,no_null_bytes,min=1,max=255"`
}

// WithDefaults returns a copy of r with TopK and RoadmapID filled in when unset.
func (r QueryRequest) WithDefaults() QueryRequest {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}

	if r.RoadmapID == "" {
		r.RoadmapID = DefaultRoadmapID
	}

	return r
}

// SourceDocument is one retrieved hit, normalized for display and citation.
// Score is backend-specific: the json backend reports raw cosine similarity in [-1, 1],
// postgres reports 1 - distance/2 clamped to [0, 1]. Higher is always more similar.
type SourceDocument struct {
	NodeID      string  `json:"node_id"`
	Title       string  `json:"title"`
	Score       float64 `json:"score"`
	TextSnippet string  `json:"text_snippet"`
	URL         string  `json:"url"`
	NodeType    string  `json:"node_type,omitempty"`
	RoadmapID   string  `json:"roadmap_id"`
}

// QueryResponse is the result of a retrieval query. Sources is never nil.
// Context is the concatenation of the hits' full texts for prompt grounding.
type QueryResponse struct {
	Query     string           `json:"query"`
	RoadmapID string           `json:"roadmap_id"`
	Sources   []SourceDocument `json:"sources"`
	Context   string           `json:"context"`
}

// EmbeddingIndex is a versioned vector index for a roadmap, optionally scoped to a user.
// At most one index per (RoadmapID, UserID) is active.
type EmbeddingIndex struct {
	ID            string    `json:"id"`
	RoadmapID     string    `json:"roadmap_id"`
	UserID        *string   `json:"user_id,omitempty"`
	IsActive      bool      `json:"is_active"`
	DocumentCount int       `json:"document_count"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"created_at"`
}

// RankedRow is a similarity search result row. Distance is pgvector cosine distance in [0, 2].
type RankedRow struct {
	ID       string
	NodeID   *string
	Content  string
	Metadata map[string]any
	Distance float64
}

// IndexManifest is the metadata.json written next to a persisted file index.
type IndexManifest struct {
	Model         string    `json:"model"`
	RoadmapID     string    `json:"roadmapId"`
	GeneratedAt   time.Time `json:"generatedAt"`
	DocumentCount int       `json:"documentCount"`
}

// BackendInfo reports which backend the router is configured to use.
type BackendInfo struct {
	Backend string `json:"backend"`
}

// ValidRoadmapID reports whether id is a non-empty slug of letters, digits, '-' and '_'.
// Roadmap ids name directories on disk, so anything else is rejected.
func ValidRoadmapID(id string) bool {
	if id == "" {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}
