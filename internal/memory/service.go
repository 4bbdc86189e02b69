package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmbedding wraps failures to vectorize content or a query.
var ErrEmbedding = errors.New("memory embedding failed")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scrubber removes secrets before content is persisted.
type Scrubber interface {
	Scrub(content string) string
}

// Service stores and recalls memories from raw text.
type Service struct {
	index    *Index
	embedder Embedder
	scrubber Scrubber
}

// NewService combines an index with an embedder. scrubber may be nil.
func NewService(index *Index, embedder Embedder, scrubber Scrubber) *Service {
	return &Service{index: index, embedder: embedder, scrubber: scrubber}
}

// Remember scrubs, embeds and stores content.
func (s *Service) Remember(ctx context.Context, content string, metadata map[string]string) (Record, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Record{}, ErrEmptyContent
	}
	if s.scrubber != nil {
		content = s.scrubber.Scrub(content)
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return s.index.Store(ctx, content, vec, metadata)
}

// Recall returns up to limit memories similar to query, best first.
func (s *Service) Recall(ctx context.Context, query string, limit int) ([]SimilarityResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyContent
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return s.index.SearchScored(ctx, vec, limit)
}
