// Package embeddings provides utilities for embedding vectors (L2 normalization, dot products).
package embeddings

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different length are multiplied.
var ErrDimensionMismatch = errors.New("embeddings: dimension mismatch")

// NormalizeL2 scales vector to unit length in place.
// Index vectors are normalized once at load so search only needs dot products.
func NormalizeL2(vector []float32) {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	// All-zero vectors have no direction; leave them as is.
	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// Dot returns the dot product of a and b.
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum, nil
}
