package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panday-team/panday/internal/ragerrors"
)

const testVectorStore = `{
  "embedding_dict": {
    "node-wiring": [1.0, 0.0, 0.0],
    "node-exam": [0.0, 1.0, 0.0]
  },
  "text_id_to_ref_doc_id": {"node-wiring": "doc-1", "node-exam": "doc-2"},
  "metadata_dict": {}
}`

const testDocStore = `{
  "docstore/data": {
    "node-wiring": {
      "__data__": {
        "id_": "node-wiring",
        "text": "Residential wiring basics.",
        "metadata": {"node_id": "wiring", "title": "Wiring", "type": "skill"}
      },
      "__type__": "1"
    },
    "node-exam": {
      "__data__": {
        "id_": "node-exam",
        "text": "Red Seal exam preparation.",
        "metadata": {"title": "Exam"}
      },
      "__type__": "1"
    },
    "doc-1": {
      "__data__": {"id_": "doc-1", "text": "source document"},
      "__type__": "4"
    }
  }
}`

const testManifest = `{
  "model": "text-embedding-3-small",
  "roadmapId": "electrician-bc",
  "generatedAt": "2025-03-01T12:30:00.123456+00:00",
  "documentCount": 2,
  "files": {}
}`

func writeIndex(t *testing.T, base, roadmapID string, files map[string]string) {
	t.Helper()

	dir := filepath.Join(base, roadmapID, "index")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

func TestFileIndexRepository_Load(t *testing.T) {
	base := t.TempDir()
	writeIndex(t, base, "electrician-bc", map[string]string{
		vectorStoreFile: testVectorStore,
		docStoreFile:    testDocStore,
		manifestFile:    testManifest,
	})

	repo := NewFileIndexRepository(base)

	fi, err := repo.Load(context.Background(), "electrician-bc")
	require.NoError(t, err)

	assert.Equal(t, "electrician-bc", fi.RoadmapID)
	assert.Equal(t, filepath.Join(base, "electrician-bc", "index"), fi.Path)
	assert.Equal(t, 2, fi.Index.Len(), "source documents without vectors are skipped")
	assert.Equal(t, 3, fi.Index.Dimensions())

	wiring, err := fi.Index.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, wiring, 1)

	node := wiring[0].Node
	assert.Equal(t, "node-wiring", node.ID)
	assert.Equal(t, "Residential wiring basics.", node.Text)
	assert.Equal(t, "Wiring", node.Metadata["title"])
	assert.Equal(t, "skill", node.Metadata["type"])

	require.NotNil(t, fi.Manifest)
	assert.Equal(t, "text-embedding-3-small", fi.Manifest.Model)
	assert.Equal(t, 2, fi.Manifest.DocumentCount)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 30, 0, 123456000, time.UTC), fi.Manifest.GeneratedAt.UTC())

	hits, err := fi.Index.Search([]float32{0.1, 0.9, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "node-exam", hits[0].Node.ID)
}

func TestFileIndexRepository_Load_without_manifest(t *testing.T) {
	base := t.TempDir()
	writeIndex(t, base, "plumber", map[string]string{
		vectorStoreFile: testVectorStore,
		docStoreFile:    testDocStore,
	})

	fi, err := NewFileIndexRepository(base).Load(context.Background(), "plumber")
	require.NoError(t, err)
	assert.Nil(t, fi.Manifest)
}

func TestFileIndexRepository_Load_errors(t *testing.T) {
	tests := []struct {
		name         string
		roadmapID    string
		files        map[string]string
		wantNotFound bool
	}{
		{
			name:         "missing directory",
			roadmapID:    "welder",
			wantNotFound: true,
		},
		{
			name:      "path traversal",
			roadmapID: "../secrets",
		},
		{
			name:      "invalid vector store json",
			roadmapID: "broken-json",
			files:     map[string]string{vectorStoreFile: `{"embedding_dict":`, docStoreFile: testDocStore},
		},
		{
			name:      "missing embedding dict",
			roadmapID: "no-embeddings",
			files:     map[string]string{vectorStoreFile: `{}`, docStoreFile: testDocStore},
		},
		{
			name:      "missing docstore data",
			roadmapID: "no-docstore",
			files:     map[string]string{vectorStoreFile: testVectorStore, docStoreFile: `{}`},
		},
		{
			name:      "orphan embedding",
			roadmapID: "orphan",
			files: map[string]string{
				vectorStoreFile: `{"embedding_dict": {"ghost": [1, 0]}}`,
				docStoreFile:    testDocStore,
			},
		},
		{
			name:      "non numeric embedding",
			roadmapID: "bad-vector",
			files: map[string]string{
				vectorStoreFile: `{"embedding_dict": {"node-wiring": ["a", "b"]}}`,
				docStoreFile:    testDocStore,
			},
		},
		{
			name:      "mixed dimensions",
			roadmapID: "mixed",
			files: map[string]string{
				vectorStoreFile: `{"embedding_dict": {"node-wiring": [1, 0], "node-exam": [1, 0, 0]}}`,
				docStoreFile:    testDocStore,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			if tt.files != nil {
				writeIndex(t, base, tt.roadmapID, tt.files)
			}

			_, err := NewFileIndexRepository(base).Load(context.Background(), tt.roadmapID)
			require.Error(t, err)
			require.ErrorIs(t, err, ragerrors.ErrIndexLoad)

			if tt.wantNotFound {
				assert.ErrorIs(t, err, ragerrors.ErrNotFound)
			} else {
				assert.NotErrorIs(t, err, ragerrors.ErrNotFound)
			}
		})
	}
}

func TestFileIndexRepository_Load_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileIndexRepository(t.TempDir()).Load(ctx, "electrician-bc")
	require.ErrorIs(t, err, context.Canceled)
}
