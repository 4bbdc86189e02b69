// Package vectorstore provides memory.RecordStore backends that rank
// records inside a vector database.
//
// Both backends also implement memory.NearestSearcher, so a memory.Index
// built over them delegates searches instead of scanning.
package vectorstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backends.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

var (
	// ErrInvalidConfig indicates an unusable backend configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore config")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("vectorstore connection failed")

	// ErrInvalidCollectionName indicates a collection name failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrMissingEmbedding is returned when a backend that indexes vectors
	// is asked to store a record without one.
	ErrMissingEmbedding = errors.New("record has no embedding")
)

// DefaultCollection holds the assistant's memories.
const DefaultCollection = "assistant_memories"

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName accepts lowercase letters, digits and underscores.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Reserved metadata keys. User metadata keys starting with "_" are dropped.
const (
	keyCreatedAt = "_created_at"
	keyContent   = "_content"
	keyRecordID  = "_record_id"
)

func userMetadata(m map[string]string) map[string]string {
	var out map[string]string
	for k, v := range m {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(m))
		}
		out[k] = v
	}
	return out
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Store is a record store that also ranks server-side.
type Store interface {
	memory.RecordStore
	memory.NearestSearcher
	Close() error
}

var operationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "assistant",
		Subsystem: "vectorstore",
		Name:      "operation_duration_seconds",
		Help:      "Duration of vector store operations in seconds",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"backend", "operation", "result"},
)

// track times an operation. Use as: defer track(backend, op)(&err).
func track(backend, op string) func(*error) {
	start := time.Now()
	return func(err *error) {
		result := "success"
		if err != nil && *err != nil {
			result = "error"
		}
		operationDuration.WithLabelValues(backend, op, result).Observe(time.Since(start).Seconds())
	}
}
