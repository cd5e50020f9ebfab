package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panday-team/panday/internal/models"
)

func TestValidateStruct_QueryRequest(t *testing.T) {
	user := "user-1"

	tests := []struct {
		name    string
		req     models.QueryRequest
		wantErr string
	}{
		{name: "minimal", req: models.QueryRequest{Query: "what is a ground fault"}},
		{name: "full", req: models.QueryRequest{Query: "q", TopK: 20, RoadmapID: "electrician_bc-2", UserID: &user}},
		{name: "missing query", req: models.QueryRequest{}, wantErr: "query is required"},
		{name: "blank query", req: models.QueryRequest{Query: "   \t"}, wantErr: "query must not be blank"},
		{name: "null byte", req: models.QueryRequest{Query: "a\x00b"}, wantErr: "query must not contain NULL bytes"},
		{
			name:    "query too long",
			req:     models.QueryRequest{Query: strings.Repeat("a", 2001)},
			wantErr: "query must be at most 2000 characters",
		},
		{name: "top_k too large", req: models.QueryRequest{Query: "q", TopK: 21}, wantErr: "top_k must be at most 20"},
		{name: "negative top_k", req: models.QueryRequest{Query: "q", TopK: -1}, wantErr: "top_k must be at least 1"},
		{
			name:    "roadmap path traversal",
			req:     models.QueryRequest{Query: "q", RoadmapID: "../etc"},
			wantErr: "roadmap_id may only contain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRespondValidationError(t *testing.T) {
	err := ValidateStruct(models.QueryRequest{Query: "q", TopK: 50})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	RespondValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"location":"top_k"`)
	assert.Contains(t, rec.Body.String(), `"title":"Validation Error"`)
}

func TestValidateAndDecodeQueryParams(t *testing.T) {
	t.Run("decodes snake_case params", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/embeddings/query?query=ohm&top_k=3&roadmap_id=plumber-on&user_id=u1", nil)

		var req models.QueryRequest
		require.NoError(t, ValidateAndDecodeQueryParams(r, &req))

		assert.Equal(t, "ohm", req.Query)
		assert.Equal(t, 3, req.TopK)
		assert.Equal(t, "plumber-on", req.RoadmapID)
		require.NotNil(t, req.UserID)
		assert.Equal(t, "u1", *req.UserID)
	})

	t.Run("non-numeric top_k fails to decode", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/embeddings/query?query=ohm&top_k=many", nil)

		var req models.QueryRequest
		err := ValidateAndDecodeQueryParams(r, &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode query parameters")
	})

	t.Run("missing query fails validation", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/embeddings/query", nil)

		var req models.QueryRequest
		err := ValidateAndDecodeQueryParams(r, &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query is required")
	})
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"query":"q","top_k":2}`},
		{name: "unknown field", body: `{"query":"q","topK":2}`, wantErr: true},
		{name: "trailing data", body: `{"query":"q"} {"query":"r"}`, wantErr: true},
		{name: "malformed", body: `{"query":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var req models.QueryRequest
			err := DecodeJSONBody(r, &req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
