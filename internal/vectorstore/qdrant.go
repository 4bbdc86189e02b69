package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("assistantd.vectorstore.qdrant")

const scrollBatch = 256

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int

	MaxRetries     int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore keeps memories in a Qdrant collection over gRPC. Record IDs
// must be UUIDs.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects, checks health and creates the collection with
// cosine distance when it does not exist.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC is using plaintext", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{client: client, config: cfg, logger: logger}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("qdrant store ready",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info("created qdrant collection", zap.String("collection", s.config.Collection))
	return nil
}

// retry runs op with exponential backoff while it fails transiently.
func (s *QdrantStore) retry(ctx context.Context, name string, op func(context.Context) error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		err := op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s: %w", name, err)
		}
		if attempt >= s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		s.logger.Debug("retrying qdrant call", zap.String("op", name), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Add upserts rec. Records without an embedding are rejected.
func (s *QdrantStore) Add(ctx context.Context, rec memory.Record) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Add")
	defer span.End()
	defer track(BackendQdrant, "add")(&err)

	point, err := toPoint(rec, s.config.Dimension)
	if err != nil {
		return err
	}
	wait := true
	err = s.retry(ctx, "upsert", func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Wait:           &wait,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// All scrolls through the whole collection.
func (s *QdrantStore) All(ctx context.Context) (recs []memory.Record, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.All")
	defer span.End()
	defer track(BackendQdrant, "all")(&err)

	var offset *qdrant.PointId
	for {
		var (
			points []*qdrant.RetrievedPoint
			next   *qdrant.PointId
		)
		err = s.retry(ctx, "scroll", func(ctx context.Context) error {
			var err error
			points, next, err = s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.Collection,
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(scrollBatch)),
				WithPayload:    qdrant.NewWithPayload(true),
				WithVectors:    qdrant.NewWithVectors(true),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for _, p := range points {
			recs = append(recs, fromPoint(p.GetId(), p.GetPayload(), p.GetVectors()))
		}
		if next == nil || len(points) < scrollBatch {
			break
		}
		offset = next
	}
	span.SetAttributes(attribute.Int("records", len(recs)))
	return recs, nil
}

// Nearest queries the collection for the k closest points.
func (s *QdrantStore) Nearest(ctx context.Context, query []float32, k int) (out []memory.SimilarityResult, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Nearest")
	defer span.End()
	defer track(BackendQdrant, "nearest")(&err)
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, nil
	}
	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "query", func(ctx context.Context) error {
		var err error
		points, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(query...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out = make([]memory.SimilarityResult, 0, len(points))
	for _, p := range points {
		out = append(out, memory.SimilarityResult{
			Record: fromPoint(p.GetId(), p.GetPayload(), p.GetVectors()),
			Score:  float64(p.GetScore()),
		})
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func toPoint(rec memory.Record, dim int) (*qdrant.PointStruct, error) {
	if !rec.HasEmbedding() {
		return nil, fmt.Errorf("%w: %s", ErrMissingEmbedding, rec.ID)
	}
	if len(rec.Embedding) != dim {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, collection has %d",
			ErrInvalidConfig, len(rec.Embedding), dim)
	}
	if _, err := uuid.Parse(rec.ID); err != nil {
		return nil, fmt.Errorf("%w: record id %q is not a UUID", ErrInvalidConfig, rec.ID)
	}

	payload := make(map[string]*qdrant.Value, len(rec.Metadata)+2)
	for k, v := range userMetadata(rec.Metadata) {
		payload[k] = qdrant.NewValueString(v)
	}
	payload[keyContent] = qdrant.NewValueString(rec.Content)
	payload[keyCreatedAt] = qdrant.NewValueString(formatTime(rec.CreatedAt))

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(rec.ID),
		Vectors: qdrant.NewVectors(rec.Embedding...),
		Payload: payload,
	}, nil
}

func fromPoint(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) memory.Record {
	rec := memory.Record{ID: id.GetUuid()}
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		sv, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case keyContent:
			rec.Content = sv.StringValue
		case keyCreatedAt:
			rec.CreatedAt = parseTime(sv.StringValue)
		default:
			meta[k] = sv.StringValue
		}
	}
	rec.Metadata = userMetadata(meta)
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			rec.Embedding = dense.GetData()
		} else {
			rec.Embedding = vec.GetData()
		}
	}
	return rec
}
