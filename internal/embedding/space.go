// Package embedding provides vector math over text embeddings.
package embedding

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDimension matches text-embedding-ada-002.
const DefaultDimension = 1536

// ErrInvalidEmbedding is returned when a vector does not fit the deployment.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// CosineSimilarity returns dot(a,b) / (|a| * |b|).
//
// Vectors of different length and zero-magnitude vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors just past 1.
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// Validate checks that v is usable in a space of the given dimension.
// A dim of 0 skips the length check.
func Validate(v []float32, dim int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: dimension %d, want %d", ErrInvalidEmbedding, len(v), dim)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component at %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}
