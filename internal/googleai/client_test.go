package googleai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestClient(t *testing.T, values []float32, opts ...ClientOption) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "mbedContent"), r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{{"values": values}},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := NewClientWithConfig(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	}, opts...)
	require.NoError(t, err)

	return c
}

func TestClient_CreateEmbedding(t *testing.T) {
	c := newTestClient(t, []float32{0.1, 0.2, 0.3, 0.4}, WithDimensions(4))

	vec, err := c.CreateEmbedding(context.Background(), "red seal exam")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
	assert.Equal(t, defaultModel, c.Model())
}

func TestClient_CreateEmbedding_dimension_mismatch(t *testing.T) {
	c := newTestClient(t, []float32{0.1, 0.2}, WithDimensions(4))

	_, err := c.CreateEmbedding(context.Background(), "red seal exam")
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClient_CreateEmbedding_empty_input(t *testing.T) {
	c := newTestClient(t, nil, WithModel("text-embedding-004"))

	_, err := c.CreateEmbedding(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, "text-embedding-004", c.Model())
}
