package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/embedding"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var (
	// ErrEmbedding wraps every failure returned by an Embedder.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmptyInput is returned for blank text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig is returned for unusable configuration.
	ErrInvalidConfig = errors.New("invalid embeddings config")
)

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultOpenAIModel = "text-embedding-ada-002"
	defaultGeminiModel = "gemini-embedding-001"
)

// Config selects an embedding backend.
type Config struct {
	Provider  string
	Model     string
	APIKey    string `json:"-"`
	BaseURL   string
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		if c.Provider == ProviderGemini {
			c.Model = defaultGeminiModel
		} else {
			c.Model = defaultOpenAIModel
		}
	}
	if c.Dimension == 0 {
		c.Dimension = embedding.DefaultDimension
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Provider != ProviderOpenAI && c.Provider != ProviderGemini {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s API key required", ErrInvalidConfig, c.Provider)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service validates the backend's vectors against the deployment dimension.
type Service struct {
	backend   Embedder
	provider  string
	dimension int
	logger    *zap.Logger
}

var _ Embedder = (*Service)(nil)

// NewService builds the configured backend.
func NewService(ctx context.Context, cfg Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend Embedder
		err     error
	)
	switch cfg.Provider {
	case ProviderGemini:
		backend, err = newGemini(ctx, cfg)
	default:
		backend, err = newOpenAI(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	logger.Info("embedder initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", cfg.Dimension),
	)
	svc := Wrap(backend, cfg.Dimension, logger)
	svc.provider = cfg.Provider
	return svc, nil
}

// Wrap adds input and dimension checks around an existing backend.
func Wrap(backend Embedder, dimension int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, provider: "custom", dimension: dimension, logger: logger}
}

// Embed returns the vector for text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		embedErrors.WithLabelValues(s.provider, "empty_input").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, ErrEmptyInput)
	}
	start := time.Now()
	vec, err := s.backend.Embed(ctx, text)
	embedDuration.WithLabelValues(s.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		embedErrors.WithLabelValues(s.provider, "backend").Inc()
		s.logger.Warn("embedding request failed", zap.String("provider", s.provider), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if err := embedding.Validate(vec, s.dimension); err != nil {
		embedErrors.WithLabelValues(s.provider, "dimension").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vec, nil
}

type openAIEmbedder struct {
	embedder *embeddings.EmbedderImpl
}

func newOpenAI(cfg Config) (*openAIEmbedder, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, err
	}
	return &openAIEmbedder{embedder: e}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.EmbedQuery(ctx, text)
}

type geminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

func newGemini(ctx context.Context, cfg Config) (*geminiEmbedder, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &geminiEmbedder{client: client, model: cfg.Model, dimension: int32(cfg.Dimension)}, nil
}

func (e *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             "SEMANTIC_SIMILARITY",
			OutputDimensionality: genai.Ptr(e.dimension),
		},
	)
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) == 0 {
		return nil, errors.New("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
