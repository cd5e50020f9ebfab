// Package vectorindex provides an in-memory nearest-neighbor index over embedding vectors.
// Search is exact (brute force) cosine similarity, which is adequate for per-roadmap
// indexes of a few thousand nodes.
package vectorindex

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/panday-team/panday/pkg/embeddings"
)

var (
	// ErrEmptyQuery is returned when Search is called with a zero-length vector.
	ErrEmptyQuery = errors.New("vectorindex: empty query vector")
	// ErrDimensionMismatch is returned when a vector does not match the index dimensionality.
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")
	// ErrDuplicateNode is returned when two nodes share an id.
	ErrDuplicateNode = errors.New("vectorindex: duplicate node id")
)

// Node is a retrievable unit: its text, its metadata, and its embedding.
type Node struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

// Hit is a search result. Score is the cosine similarity between the query and the node.
type Hit struct {
	Node  *Node
	Score float64
}

// Index is an immutable set of nodes. It is safe for concurrent use.
type Index struct {
	nodes []*Node
	dims  int
}

// New builds an index from nodes. Embeddings are copied and L2-normalized so callers may
// reuse their slices. All embeddings must share one dimensionality.
func New(nodes []Node) (*Index, error) {
	idx := &Index{nodes: make([]*Node, 0, len(nodes))}
	seen := make(map[string]struct{}, len(nodes))

	for i := range nodes {
		n := nodes[i]
		if _, dup := seen[n.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}

		seen[n.ID] = struct{}{}

		if idx.dims == 0 {
			idx.dims = len(n.Embedding)
		}

		if len(n.Embedding) != idx.dims {
			return nil, fmt.Errorf("%w: node %q has %d dimensions, want %d",
				ErrDimensionMismatch, n.ID, len(n.Embedding), idx.dims)
		}

		vec := slices.Clone(n.Embedding)
		embeddings.NormalizeL2(vec)
		n.Embedding = vec

		idx.nodes = append(idx.nodes, &n)
	}

	return idx, nil
}

// Len returns the number of nodes.
func (idx *Index) Len() int {
	return len(idx.nodes)
}

// Dimensions returns the embedding dimensionality, or 0 for an empty index.
func (idx *Index) Dimensions() int {
	return idx.dims
}

// Search returns up to k nodes most similar to query, ordered by descending score.
// Equal scores are ordered by node id. An empty index yields no hits.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}

	if k <= 0 || len(idx.nodes) == 0 {
		return []Hit{}, nil
	}

	if len(query) != idx.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), idx.dims)
	}

	q := slices.Clone(query)
	embeddings.NormalizeL2(q)

	hits := make([]Hit, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		score, err := embeddings.Dot(q, n.Embedding)
		if err != nil {
			return nil, err
		}

		hits = append(hits, Hit{Node: n, Score: score})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}

		return cmp.Compare(a.Node.ID, b.Node.ID)
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, nil
}
