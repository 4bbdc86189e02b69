package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/embedding"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultLimit is used when a search asks for zero or fewer results.
const DefaultLimit = 10

var tracer = otel.Tracer("assistantd.memory")

// Config holds index configuration.
type Config struct {
	// Dimension is the fixed embedding length of the deployment.
	// Zero disables dimension checks.
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dimension == 0 {
		c.Dimension = embedding.DefaultDimension
	}
}

// Index owns the memory records and answers similarity queries.
type Index struct {
	store   RecordStore
	nearest NearestSearcher
	config  Config
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// NewIndex creates an index over store. If store also implements
// NearestSearcher, searches are delegated to it.
func NewIndex(store RecordStore, cfg Config, logger *zap.Logger, opts ...Option) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("dimension must be >= 0, got %d", cfg.Dimension)
	}

	ix := &Index{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	if ns, ok := store.(NearestSearcher); ok {
		ix.nearest = ns
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Store creates a record with a fresh ID and the current timestamp.
// An empty embedding is accepted by scan-only stores, where such records are
// never search candidates. Stores that search server-side reject it with
// embedding.ErrInvalidEmbedding before any write.
func (ix *Index) Store(ctx context.Context, content string, vec []float32, metadata map[string]string) (Record, error) {
	ctx, span := tracer.Start(ctx, "Index.Store")
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return Record{}, ErrEmptyContent
	}
	if len(vec) == 0 && ix.nearest != nil {
		err := fmt.Errorf("%w: empty vector, the backend indexes embedded records only", embedding.ErrInvalidEmbedding)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Record{}, err
	}
	if len(vec) > 0 {
		if err := embedding.Validate(vec, ix.config.Dimension); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Record{}, err
		}
	}

	rec := Record{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: vec,
		Metadata:  copyMetadata(metadata),
		CreatedAt: ix.now().UTC(),
	}

	if err := ix.store.Add(ctx, rec); err != nil {
		storedTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Record{}, fmt.Errorf("%w: adding record: %w", ErrStorage, err)
	}

	storedTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("record_id", rec.ID))
	span.SetStatus(codes.Ok, "success")

	ix.logger.Debug("stored memory",
		zap.String("id", rec.ID),
		zap.Int("content_len", len(content)),
		zap.Bool("embedded", rec.HasEmbedding()),
	)
	return rec, nil
}

// SearchSimilar returns up to limit records most similar to query,
// most similar first. Records scoring <= 0 are never returned.
func (ix *Index) SearchSimilar(ctx context.Context, query []float32, limit int) ([]Record, error) {
	scored, err := ix.SearchScored(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(scored))
	for i, s := range scored {
		out[i] = s.Record
	}
	return out, nil
}

// SearchScored is SearchSimilar with the scores kept.
func (ix *Index) SearchScored(ctx context.Context, query []float32, limit int) ([]SimilarityResult, error) {
	ctx, span := tracer.Start(ctx, "Index.SearchSimilar")
	defer span.End()

	if limit <= 0 {
		limit = DefaultLimit
	}
	strategy := "scan"
	if ix.nearest != nil {
		strategy = "nearest"
	}
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("strategy", strategy),
	)

	// A query of the wrong length scores 0 against every record, so the
	// answer is empty rather than an error.
	if len(query) == 0 || (ix.config.Dimension > 0 && len(query) != ix.config.Dimension) {
		searchTotal.WithLabelValues(strategy, "mismatch").Inc()
		span.SetAttributes(attribute.Int("results_count", 0))
		ix.logger.Debug("query dimension mismatch",
			zap.Int("query_dimension", len(query)),
			zap.Int("dimension", ix.config.Dimension),
		)
		return []SimilarityResult{}, nil
	}
	if err := embedding.Validate(query, 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := ix.now()
	var (
		results []SimilarityResult
		err     error
	)
	if ix.nearest != nil {
		results, err = ix.nearestWithTies(ctx, query, limit)
	} else {
		results, err = ix.scan(ctx, query)
	}
	searchDuration.WithLabelValues(strategy).Observe(ix.now().Sub(start).Seconds())
	if err != nil {
		searchTotal.WithLabelValues(strategy, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ix.logger.Error("memory search failed", zap.String("strategy", strategy), zap.Error(err))
		return nil, fmt.Errorf("%w: searching records: %w", ErrStorage, err)
	}

	results = Rank(results, limit)
	searchTotal.WithLabelValues(strategy, "success").Inc()
	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// scan scores every record that has an embedding.
func (ix *Index) scan(ctx context.Context, query []float32) ([]SimilarityResult, error) {
	records, err := ix.store.All(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SimilarityResult, 0, len(records))
	for _, rec := range records {
		if !rec.HasEmbedding() {
			continue
		}
		results = append(results, SimilarityResult{
			Record: rec,
			Score:  embedding.CosineSimilarity(query, rec.Embedding),
		})
	}
	searchCandidates.Observe(float64(len(results)))
	return results, nil
}

// nearestWithTies asks the backend for more than limit results and keeps
// widening until the record after position limit scores strictly lower.
// Records tied at the cut then all reach Rank, which breaks ties by ID the
// same way the scan does.
func (ix *Index) nearestWithTies(ctx context.Context, query []float32, limit int) ([]SimilarityResult, error) {
	k := limit + 1
	for {
		results, err := ix.nearest.Nearest(ctx, query, k)
		if err != nil {
			return nil, err
		}
		if len(results) < k {
			return results, nil
		}
		scores := make([]float64, len(results))
		for i, r := range results {
			scores[i] = r.Score
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
		if cut := scores[limit-1]; cut <= 0 || scores[k-1] < cut {
			return results, nil
		}
		k *= 2
	}
}

// Rank drops non-positive scores and records without embeddings, orders the
// rest by score descending with ID as tie-break, and truncates to limit.
func Rank(results []SimilarityResult, limit int) []SimilarityResult {
	kept := make([]SimilarityResult, 0, len(results))
	for _, r := range results {
		if r.Score > 0 && r.Record.HasEmbedding() {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Record.ID < kept[j].Record.ID
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
