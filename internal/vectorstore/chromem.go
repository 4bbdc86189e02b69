package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("assistantd.vectorstore.chromem")

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path       string
	Compress   bool
	Collection string
	Dimension  int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore keeps memories in an embedded chromem-go collection.
//
// chromem normalizes vectors on insert, so All returns unit-length
// embeddings. Cosine scores are unaffected.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens or creates the collection.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		cfg.Path = path
		if db, err = chromem.NewPersistentDB(path, cfg.Compress); err != nil {
			return nil, fmt.Errorf("%w: opening chromem at %s: %v", ErrConnectionFailed, path, err)
		}
	}

	// Records always carry their own vectors; a call to this function means
	// a record slipped through without one.
	refuse := func(context.Context, string) ([]float32, error) { return nil, ErrMissingEmbedding }

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, refuse)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store ready",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("records", col.Count()),
	)
	return &ChromemStore{db: db, collection: col, config: cfg, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Add stores rec. Records without an embedding are rejected.
func (s *ChromemStore) Add(ctx context.Context, rec memory.Record) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Add")
	defer span.End()
	defer track(BackendChromem, "add")(&err)

	if !rec.HasEmbedding() {
		return fmt.Errorf("%w: %s", ErrMissingEmbedding, rec.ID)
	}
	if len(rec.Embedding) != s.config.Dimension {
		return fmt.Errorf("%w: embedding has %d dimensions, collection has %d",
			ErrInvalidConfig, len(rec.Embedding), s.config.Dimension)
	}

	meta := userMetadata(rec.Metadata)
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta[keyCreatedAt] = formatTime(rec.CreatedAt)

	// chromem may normalize the slice it is given.
	vec := append([]float32(nil), rec.Embedding...)
	err = s.collection.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Metadata:  meta,
		Embedding: vec,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document %s: %w", rec.ID, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// All returns every record. chromem has no listing call, so this queries
// the whole collection with an arbitrary unit vector.
func (s *ChromemStore) All(ctx context.Context) (recs []memory.Record, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.All")
	defer span.End()
	defer track(BackendChromem, "all")(&err)

	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	probe := make([]float32, s.config.Dimension)
	probe[0] = 1

	results, err := s.collection.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing collection %s: %w", s.config.Collection, err)
	}
	recs = make([]memory.Record, 0, len(results))
	for _, r := range results {
		recs = append(recs, toRecord(r))
	}
	return recs, nil
}

// Nearest returns the k records closest to query.
func (s *ChromemStore) Nearest(ctx context.Context, query []float32, k int) (out []memory.SimilarityResult, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Nearest")
	defer span.End()
	defer track(BackendChromem, "nearest")(&err)
	span.SetAttributes(attribute.Int("k", k))

	n := s.collection.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	// chromem requires nResults <= document count.
	if k > n {
		k = n
	}

	results, err := s.collection.QueryEmbedding(ctx, append([]float32(nil), query...), k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	out = make([]memory.SimilarityResult, 0, len(results))
	for _, r := range results {
		out = append(out, memory.SimilarityResult{Record: toRecord(r), Score: float64(r.Similarity)})
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Close is a no-op; persistent collections are written on every add.
func (s *ChromemStore) Close() error { return nil }

func toRecord(r chromem.Result) memory.Record {
	return memory.Record{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: r.Embedding,
		Metadata:  userMetadata(r.Metadata),
		CreatedAt: parseTime(r.Metadata[keyCreatedAt]),
	}
}
