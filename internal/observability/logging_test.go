package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger_adds_request_id(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, "info")
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")

	logger.InfoContext(ctx, "query served", "backend", "json")
	logger.DebugContext(ctx, "hidden")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-123")
	assert.Contains(t, out, "backend=json")
	assert.NotContains(t, out, "hidden")
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "file_index", NormalizeCacheName("file_index"))
	assert.Equal(t, "other", NormalizeCacheName("webhook_list"))
	assert.Equal(t, "postgres", NormalizeBackend("postgres"))
	assert.Equal(t, "other", NormalizeBackend("qdrant"))
	assert.Equal(t, "recovered", NormalizeReason("recovered", AllowedFallbackOutcomes))
	assert.Equal(t, "other", NormalizeReason("", AllowedFallbackOutcomes))
}

func TestNewMetrics_nil_meter(t *testing.T) {
	m, err := NewMetrics(nil)
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.Nil(t, m.CacheMetrics())
	assert.Nil(t, m.RetrievalMetrics())
	assert.Nil(t, m.EmbeddingMetrics())
}
