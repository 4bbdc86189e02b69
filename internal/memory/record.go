// Package memory stores free-text memories with their embeddings and
// retrieves the ones most similar to a query vector.
package memory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStorage wraps failures of the underlying record store. A search
	// that cannot reach its store returns this instead of an empty result.
	ErrStorage = errors.New("memory storage unavailable")

	// ErrEmptyContent is returned when storing a record without content.
	ErrEmptyContent = errors.New("memory content is empty")
)

// Record is a stored memory.
type Record struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HasEmbedding reports whether the record can take part in a search.
func (r Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// SimilarityResult pairs a record with its score against a query.
type SimilarityResult struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// RecordStore persists memory records.
type RecordStore interface {
	All(ctx context.Context) ([]Record, error)
	Add(ctx context.Context, rec Record) error
}

// NearestSearcher is implemented by stores that can rank records
// server-side. Results may include non-positive scores and need not be
// ordered; the index normalizes them.
type NearestSearcher interface {
	Nearest(ctx context.Context, query []float32, k int) ([]SimilarityResult, error)
}
