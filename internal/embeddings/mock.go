package embeddings

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"

	vectors "github.com/panday-team/panday/pkg/embeddings"
)

// ErrMockEmptyInput is returned by MockClient for blank input.
var ErrMockEmptyInput = errors.New("mock embeddings: input text is empty")

// MockClient implements Client for tests and offline runs.
// It generates deterministic unit vectors from the sha256 of the input text.
type MockClient struct {
	dimensions int
}

// NewMockClient creates a mock client producing 1536-dimension vectors,
// matching OpenAI's text-embedding-3-small.
func NewMockClient() *MockClient {
	return &MockClient{dimensions: 1536}
}

// NewMockClientWithDimensions creates a mock client with custom dimensions.
func NewMockClientWithDimensions(dimensions int) *MockClient {
	return &MockClient{dimensions: dimensions}
}

// CreateEmbedding returns the deterministic embedding for input.
func (c *MockClient) CreateEmbedding(_ context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrMockEmptyInput
	}

	hash := sha256.Sum256([]byte(input))
	embedding := make([]float32, c.dimensions)

	for i := range embedding {
		// Cycle through hash bytes, mapping each into [-1, 1].
		embedding[i] = (float32(hash[i%len(hash)]) / 127.5) - 1.0
	}

	vectors.NormalizeL2(embedding)

	return embedding, nil
}

var _ Client = (*MockClient)(nil)
