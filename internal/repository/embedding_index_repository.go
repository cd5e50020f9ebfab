package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/ragerrors"
)

// EmbeddingIndexRepository reads versioned embedding indexes and their documents from Postgres.
// The pool must have pgvector types registered (pgxvec.RegisterTypes in AfterConnect).
type EmbeddingIndexRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingIndexRepository creates a new embedding index repository.
func NewEmbeddingIndexRepository(db *pgxpool.Pool) *EmbeddingIndexRepository {
	return &EmbeddingIndexRepository{db: db}
}

// ResolveActiveIndex returns the active index for roadmapID. A nil userID selects the global index
// (user_id IS NULL). If more than one row is active, the most recent one wins.
// Returns *ragerrors.NoActiveIndexError when none exists.
func (r *EmbeddingIndexRepository) ResolveActiveIndex(
	ctx context.Context, roadmapID string, userID *string,
) (models.EmbeddingIndex, error) {
	var idx models.EmbeddingIndex

	err := r.db.QueryRow(ctx, `
		SELECT id, roadmap_id, user_id, is_active, document_count, model, created_at
		FROM embedding_indexes
		WHERE roadmap_id = $1
		  AND user_id IS NOT DISTINCT FROM $2
		  AND is_active
		ORDER BY created_at DESC
		LIMIT 1`,
		roadmapID, userID,
	).Scan(&idx.ID, &idx.RoadmapID, &idx.UserID, &idx.IsActive, &idx.DocumentCount, &idx.Model, &idx.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EmbeddingIndex{}, ragerrors.NewNoActiveIndexError(roadmapID, userID)
		}

		return models.EmbeddingIndex{}, fmt.Errorf("resolve active index: %w", err)
	}

	return idx, nil
}

// SimilaritySearch returns the topK documents of indexID nearest to queryEmbedding by cosine distance,
// ascending. Distance is pgvector's <=> value in [0, 2].
func (r *EmbeddingIndexRepository) SimilaritySearch(
	ctx context.Context, indexID string, queryEmbedding []float32, topK int,
) ([]models.RankedRow, error) {
	vec := pgvector.NewVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT id, node_id, content, metadata, embedding <=> $1 AS distance
		FROM embedding_documents
		WHERE index_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, indexID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := []models.RankedRow{}

	for rows.Next() {
		var (
			row      models.RankedRow
			metadata []byte
		)

		if err := rows.Scan(&row.ID, &row.NodeID, &row.Content, &metadata, &row.Distance); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}

		row.Metadata = decodeMetadata(metadata)
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating similarity rows: %w", err)
	}

	return results, nil
}

// decodeMetadata parses a jsonb metadata column. Null, non-object, or invalid JSON yields an empty map.
func decodeMetadata(raw []byte) map[string]any {
	metadata := map[string]any{}
	if len(raw) == 0 {
		return metadata
	}

	if err := json.Unmarshal(raw, &metadata); err != nil || metadata == nil {
		return map[string]any{}
	}

	return metadata
}

// ScoreFromDistance converts a cosine distance in [0, 2] to a similarity score in [0, 1]:
// max(0, 1 - d/2). Float error below zero distance is clamped to 1; NaN maps to 0.
func ScoreFromDistance(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}

	return math.Min(1, math.Max(0, 1-distance/2))
}
