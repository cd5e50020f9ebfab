package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/panday-team/panday/internal/models"
	"github.com/panday-team/panday/internal/ragerrors"
	"github.com/panday-team/panday/pkg/vectorindex"
)

// Persisted index file names inside <base>/<roadmapId>/index/.
const (
	vectorStoreFile = "default__vector_store.json"
	docStoreFile    = "docstore.json"
	manifestFile    = "metadata.json"
)

var (
	errInvalidRoadmapID   = errors.New("invalid roadmap id")
	errInvalidJSON        = errors.New("invalid JSON")
	errMissingEmbeddings  = errors.New("vector store has no embedding_dict")
	errMissingDocstore    = errors.New("docstore has no docstore/data")
	errMalformedEmbedding = errors.New("malformed embedding")
	errOrphanEmbedding    = errors.New("embedding has no docstore node")
)

// FileIndex is a persisted vector index loaded into memory.
type FileIndex struct {
	RoadmapID string
	Path      string
	// Manifest is nil when metadata.json is absent.
	Manifest *models.IndexManifest
	Index    *vectorindex.Index
}

// FileIndexRepository loads persisted per-roadmap vector indexes from a base directory.
type FileIndexRepository struct {
	basePath string
}

// NewFileIndexRepository creates a repository rooted at basePath.
func NewFileIndexRepository(basePath string) *FileIndexRepository {
	return &FileIndexRepository{basePath: basePath}
}

// IndexPath returns the directory holding roadmapID's persisted index.
func (r *FileIndexRepository) IndexPath(roadmapID string) string {
	return filepath.Join(r.basePath, roadmapID, "index")
}

// Load reads and parses the persisted index for roadmapID.
// Any failure is returned as *ragerrors.IndexLoadError.
func (r *FileIndexRepository) Load(ctx context.Context, roadmapID string) (*FileIndex, error) {
	if !models.ValidRoadmapID(roadmapID) {
		return nil, ragerrors.NewIndexLoadError(roadmapID, "", errInvalidRoadmapID)
	}

	dir := r.IndexPath(roadmapID)

	if err := ctx.Err(); err != nil {
		return nil, ragerrors.NewIndexLoadError(roadmapID, dir, err)
	}

	vectorStore, err := readJSON(filepath.Join(dir, vectorStoreFile))
	if err != nil {
		return nil, ragerrors.NewIndexLoadError(roadmapID, dir, err)
	}

	docStore, err := readJSON(filepath.Join(dir, docStoreFile))
	if err != nil {
		return nil, ragerrors.NewIndexLoadError(roadmapID, dir, err)
	}

	nodes, err := parseNodes(vectorStore, docStore)
	if err != nil {
		return nil, ragerrors.NewIndexLoadError(roadmapID, dir, err)
	}

	idx, err := vectorindex.New(nodes)
	if err != nil {
		return nil, ragerrors.NewIndexLoadError(roadmapID, dir, err)
	}

	manifest, err := readManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, ragerrors.NewIndexLoadError(roadmapID, dir, err)
	}

	return &FileIndex{
		RoadmapID: roadmapID,
		Path:      dir,
		Manifest:  manifest,
		Index:     idx,
	}, nil
}

func readJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), errInvalidJSON)
	}

	return data, nil
}

// parseNodes joins embedding_dict vectors with docstore nodes by node id.
// Docstore entries without a vector (e.g. source documents) are skipped.
func parseNodes(vectorStore, docStore []byte) ([]vectorindex.Node, error) {
	embeddingDict := gjson.GetBytes(vectorStore, "embedding_dict")
	if !embeddingDict.IsObject() {
		return nil, errMissingEmbeddings
	}

	docs := gjson.GetBytes(docStore, "docstore/data")
	if !docs.IsObject() {
		return nil, errMissingDocstore
	}

	var (
		nodes   []vectorindex.Node
		loopErr error
	)

	embeddingDict.ForEach(func(key, value gjson.Result) bool {
		nodeID := key.String()

		if !value.IsArray() {
			loopErr = fmt.Errorf("%w for node %q", errMalformedEmbedding, nodeID)

			return false
		}

		values := value.Array()
		vec := make([]float32, len(values))

		for i, v := range values {
			if v.Type != gjson.Number {
				loopErr = fmt.Errorf("%w for node %q", errMalformedEmbedding, nodeID)

				return false
			}

			vec[i] = float32(v.Float())
		}

		data := docs.Get(gjson.Escape(nodeID) + ".__data__")
		if !data.Exists() {
			loopErr = fmt.Errorf("%w: %q", errOrphanEmbedding, nodeID)

			return false
		}

		metadata, _ := data.Get("metadata").Value().(map[string]any)
		if metadata == nil {
			metadata = map[string]any{}
		}

		nodes = append(nodes, vectorindex.Node{
			ID:        nodeID,
			Text:      data.Get("text").String(),
			Metadata:  metadata,
			Embedding: vec,
		})

		return true
	})

	if loopErr != nil {
		return nil, loopErr
	}

	return nodes, nil
}

// readManifest parses metadata.json. A missing file is not an error.
func readManifest(path string) (*models.IndexManifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		//nolint:nilnil // manifest is optional
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestFile, err)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", manifestFile, errInvalidJSON)
	}

	doc := gjson.ParseBytes(data)
	manifest := &models.IndexManifest{
		Model:         doc.Get("model").String(),
		RoadmapID:     doc.Get("roadmapId").String(),
		DocumentCount: int(doc.Get("documentCount").Int()),
	}

	if ts := doc.Get("generatedAt").String(); ts != "" {
		if generatedAt, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			manifest.GeneratedAt = generatedAt
		}
	}

	return manifest, nil
}
