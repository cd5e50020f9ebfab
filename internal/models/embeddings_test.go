package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryRequest_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   QueryRequest
		want QueryRequest
	}{
		{
			name: "fills unset fields",
			in:   QueryRequest{Query: "wiring"},
			want: QueryRequest{Query: "wiring", TopK: DefaultTopK, RoadmapID: DefaultRoadmapID},
		},
		{
			name: "keeps explicit fields",
			in:   QueryRequest{Query: "wiring", TopK: 3, RoadmapID: "plumber"},
			want: QueryRequest{Query: "wiring", TopK: 3, RoadmapID: "plumber"},
		},
		{
			name: "negative top_k uses default",
			in:   QueryRequest{Query: "wiring", TopK: -1},
			want: QueryRequest{Query: "wiring", TopK: DefaultTopK, RoadmapID: DefaultRoadmapID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.WithDefaults())
		})
	}
}

func TestValidRoadmapID(t *testing.T) {
	valid := []string{"electrician-bc", "plumber_on", "HVAC2"}
	invalid := []string{"", "../etc", "a/b", `a\b`, "a b", "électricien", "x.json"}

	for _, id := range valid {
		assert.True(t, ValidRoadmapID(id), id)
	}

	for _, id := range invalid {
		assert.False(t, ValidRoadmapID(id), id)
	}
}
