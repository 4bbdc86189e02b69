package memory

import (
	"context"
	"sync"
)

// MemStore is an in-process RecordStore.
type MemStore struct {
	mu      sync.RWMutex
	records []Record
}

var _ RecordStore = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// All returns a snapshot of the stored records in insertion order.
func (s *MemStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Add appends rec.
func (s *MemStore) Add(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}
