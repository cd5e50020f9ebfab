package repository

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFromDistance(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{name: "identical vectors", distance: 0, want: 1},
		{name: "orthogonal vectors", distance: 1, want: 0.5},
		{name: "opposite vectors", distance: 2, want: 0},
		{name: "beyond range clamps to zero", distance: 2.5, want: 0},
		{name: "float error below zero clamps to one", distance: -1e-9, want: 1},
		{name: "nan", distance: math.NaN(), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreFromDistance(tt.distance)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestScoreFromDistance_monotonic(t *testing.T) {
	prev := ScoreFromDistance(0)
	for d := 0.05; d <= 2; d += 0.05 {
		cur := ScoreFromDistance(d)
		assert.LessOrEqual(t, cur, prev, "score must not increase with distance (d=%f)", d)
		prev = cur
	}
}

func TestDecodeMetadata(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want map[string]any
	}{
		{name: "object", raw: []byte(`{"title":"Wiring","node_id":"n1"}`), want: map[string]any{"title": "Wiring", "node_id": "n1"}},
		{name: "null column", raw: nil, want: map[string]any{}},
		{name: "json null", raw: []byte(`null`), want: map[string]any{}},
		{name: "array", raw: []byte(`[1,2]`), want: map[string]any{}},
		{name: "invalid", raw: []byte(`{`), want: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeMetadata(tt.raw))
		})
	}
}
