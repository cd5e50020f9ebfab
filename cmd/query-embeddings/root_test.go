package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panday-team/panday/internal/config"
	"github.com/panday-team/panday/internal/models"
)

type fakeQuerier struct {
	backend string
	resp    models.QueryResponse
	err     error
	got     models.QueryRequest
}

func (f *fakeQuerier) QueryEmbeddings(_ context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	f.got = req

	return f.resp, f.err
}

func (f *fakeQuerier) ActiveBackend() string { return f.backend }

func loadOK() (*config.Config, error) {
	return &config.Config{EmbeddingsBackend: "json"}, nil
}

func execute(t *testing.T, q *fakeQuerier, load loadFunc, args ...string) (string, *config.Config, bool, error) {
	t.Helper()

	var (
		builtWith *config.Config
		closed    bool
	)

	build := func(_ context.Context, cfg *config.Config) (querier, func(), error) {
		builtWith = cfg

		return q, func() { closed = true }, nil
	}

	cmd := newRootCmd(load, build)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), builtWith, closed, err
}

func sampleResponse() models.QueryResponse {
	return models.QueryResponse{
		Query:     "apprenticeship",
		RoadmapID: "electrician-bc",
		Sources: []models.SourceDocument{
			{NodeID: "n1", Title: "Level 1 Apprenticeship", Score: 0.91, TextSnippet: "Start here", URL: "/roadmap/n1"},
		},
		Context: "Start here",
	}
}

func TestRootCmd_PrintsSources(t *testing.T) {
	q := &fakeQuerier{backend: "json", resp: sampleResponse()}

	out, _, closed, err := execute(t, q, loadOK, "apprenticeship", "-k", "3", "--roadmap", "electrician-bc", "--user", "u1")
	require.NoError(t, err)

	assert.True(t, closed)
	assert.Equal(t, "apprenticeship", q.got.Query)
	assert.Equal(t, 3, q.got.TopK)
	assert.Equal(t, "electrician-bc", q.got.RoadmapID)
	require.NotNil(t, q.got.UserID)
	assert.Equal(t, "u1", *q.got.UserID)

	assert.Contains(t, out, "Backend: json")
	assert.Contains(t, out, "[1] Level 1 Apprenticeship (0.910)")
	assert.Contains(t, out, "/roadmap/n1")
}

func TestRootCmd_JSONOutput(t *testing.T) {
	q := &fakeQuerier{backend: "postgres", resp: sampleResponse()}

	out, _, _, err := execute(t, q, loadOK, "apprenticeship", "--json")
	require.NoError(t, err)

	var got models.QueryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, sampleResponse(), got)
	assert.Nil(t, q.got.UserID)
	assert.Equal(t, models.DefaultTopK, q.got.TopK)
}

func TestRootCmd_NoResults(t *testing.T) {
	q := &fakeQuerier{backend: "json", resp: models.QueryResponse{RoadmapID: "electrician-bc", Sources: []models.SourceDocument{}}}

	out, _, _, err := execute(t, q, loadOK, "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestRootCmd_BackendOverride(t *testing.T) {
	q := &fakeQuerier{backend: "postgres", resp: sampleResponse()}

	_, cfg, _, err := execute(t, q, loadOK, "apprenticeship", "--backend", "postgres")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "postgres", cfg.EmbeddingsBackend)
}

func TestRootCmd_Errors(t *testing.T) {
	queryErr := errors.New("failed to query json embeddings: boom")

	tests := []struct {
		name    string
		load    loadFunc
		q       *fakeQuerier
		args    []string
		wantErr string
	}{
		{name: "missing query", load: loadOK, q: &fakeQuerier{}, args: []string{}, wantErr: "accepts 1 arg"},
		{name: "top k too large", load: loadOK, q: &fakeQuerier{}, args: []string{"q", "-k", "21"}, wantErr: "--top-k"},
		{name: "top k zero", load: loadOK, q: &fakeQuerier{}, args: []string{"q", "-k", "0"}, wantErr: "--top-k"},
		{name: "bad roadmap", load: loadOK, q: &fakeQuerier{}, args: []string{"q", "-r", "../etc"}, wantErr: "invalid roadmap id"},
		{name: "unknown backend", load: loadOK, q: &fakeQuerier{}, args: []string{"q", "--backend", "pinecone"}, wantErr: "unknown backend"},
		{
			name:    "config error",
			load:    func() (*config.Config, error) { return nil, errors.New("EMBEDDING_PROVIDER must be one of") },
			q:       &fakeQuerier{},
			args:    []string{"q"},
			wantErr: "load configuration",
		},
		{name: "query error", load: loadOK, q: &fakeQuerier{err: queryErr}, args: []string{"q"}, wantErr: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := execute(t, tt.q, tt.load, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
