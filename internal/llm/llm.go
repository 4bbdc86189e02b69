// Package llm provides text completion backed by hosted language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrCompletion wraps every failure returned by a Completion.
var ErrCompletion = errors.New("completion failed")

// ErrInvalidConfig is returned for unusable configuration.
var ErrInvalidConfig = errors.New("invalid llm config")

// Completion turns a prompt and an optional system instruction into text.
type Completion interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// CompletionFunc adapts a function to Completion.
type CompletionFunc func(ctx context.Context, prompt, system string) (string, error)

// Complete calls f.
func (f CompletionFunc) Complete(ctx context.Context, prompt, system string) (string, error) {
	return f(ctx, prompt, system)
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultGeminiModel    = "gemini-2.0-flash"

	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
	defaultRateLimit = 50.0 / 60.0 // 50 requests per minute
	defaultBurst     = 5
	defaultBackoff   = time.Second
)

// Config selects and tunes a completion backend.
type Config struct {
	Provider    string
	Model       string
	APIKey      string `json:"-"`
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// RateLimit is requests per second; Burst is the limiter bucket size.
	RateLimit  float64
	Burst      int
	MaxRetries int
	Backoff    time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderAnthropic:
			c.Model = defaultAnthropicModel
		case ProviderGemini:
			c.Model = defaultGeminiModel
		default:
			c.Model = defaultOpenAIModel
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst == 0 {
		c.Burst = defaultBurst
	}
	if c.Backoff == 0 {
		c.Backoff = defaultBackoff
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: %s API key required", ErrInvalidConfig, c.Provider)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must be >= 0", ErrInvalidConfig)
	}
	if c.RateLimit < 0 || c.Burst < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("%w: rate limit, burst and retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// New builds the configured backend wrapped with rate limiting and retries.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Completion, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend Completion
		err     error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		backend = newAnthropic(cfg)
	case ProviderGemini:
		backend, err = newGemini(ctx, cfg)
	default:
		backend, err = newOpenAI(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	logger.Info("llm client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Float64("rate_limit", cfg.RateLimit),
	)
	return NewLimited(backend, cfg, logger.Named("llm")), nil
}
