// Package embeddings turns query text into embedding vectors through a pluggable provider.
package embeddings

import (
	"context"
	"errors"
)

var errEmptyEmbedding = errors.New("provider returned an empty embedding")

// Client generates an embedding vector for a single text.
// Implemented by openai.Client, googleai.Client and MockClient.
type Client interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}
