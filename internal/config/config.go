// Package config loads assistantd configuration from defaults, an optional
// YAML file and ASSISTANT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/embeddings"
	"github.com/fyrsmithlabs/assistantd/internal/events"
	"github.com/fyrsmithlabs/assistantd/internal/llm"
	"github.com/fyrsmithlabs/assistantd/internal/logging"
	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/router"
	"github.com/fyrsmithlabs/assistantd/internal/scheduler"
	"github.com/fyrsmithlabs/assistantd/internal/secrets"
	"github.com/fyrsmithlabs/assistantd/internal/telemetry"
	"github.com/fyrsmithlabs/assistantd/internal/vectorstore"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the complete assistantd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Memory     MemoryConfig     `koanf:"memory"`
	Storage    StorageConfig    `koanf:"storage"`
	Cache      CacheConfig      `koanf:"cache"`
	NATS       events.Config    `koanf:"nats"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
	Scheduler  scheduler.Config `koanf:"scheduler"`
	Secrets    secrets.Config   `koanf:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
	MaxRetries  int      `koanf:"max_retries"`
	Backoff     Duration `koanf:"backoff"`
}

// EmbeddingsConfig configures the embedding backend. An unset APIKey
// falls back to the LLM key when both use the same provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	Dimension int    `koanf:"dimension"`
}

// MemoryConfig selects where memory records live. The sqlite backend
// shares the relational database.
type MemoryConfig struct {
	Backend         string   `koanf:"backend"`
	Collection      string   `koanf:"collection"`
	SearchLimit     int      `koanf:"search_limit"`
	ChromemPath     string   `koanf:"chromem_path"`
	ChromemCompress bool     `koanf:"chromem_compress"`
	QdrantHost      string   `koanf:"qdrant_host"`
	QdrantPort      int      `koanf:"qdrant_port"`
	QdrantAPIKey    Secret   `koanf:"qdrant_api_key"`
	QdrantTLS       bool     `koanf:"qdrant_tls"`
	QdrantTimeout   Duration `koanf:"qdrant_timeout"`
}

// StorageConfig locates the SQLite database. An empty path keeps
// everything in process memory.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// CacheConfig configures the intent classification cache.
type CacheConfig struct {
	Backend       string   `koanf:"backend"`
	TTL           Duration `koanf:"ttl"`
	MaxEntries    int64    `koanf:"max_entries"`
	RedisAddr     string   `koanf:"redis_addr"`
	RedisPassword Secret   `koanf:"redis_password"`
	RedisDB       int      `koanf:"redis_db"`
	KeyPrefix     string   `koanf:"key_prefix"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
		Scheduler: scheduler.Config{Enabled: true},
		Secrets:   secrets.DefaultConfig(),
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}

	c.Embeddings.Provider = strings.ToLower(strings.TrimSpace(c.Embeddings.Provider))
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = embeddings.ProviderOpenAI
	}
	if !c.Embeddings.APIKey.IsSet() && c.Embeddings.Provider == c.llmProvider() {
		c.Embeddings.APIKey = c.LLM.APIKey
	}

	c.Memory.Backend = strings.ToLower(strings.TrimSpace(c.Memory.Backend))
	if c.Memory.Backend == "" {
		c.Memory.Backend = vectorstore.BackendSQLite
	}
	if c.Memory.Collection == "" {
		c.Memory.Collection = vectorstore.DefaultCollection
	}
	if c.Memory.SearchLimit == 0 {
		c.Memory.SearchLimit = 5
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = router.CacheMemory
	}

	c.NATS.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Secrets.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

func (c *Config) llmProvider() string {
	p := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if p == "" {
		return llm.ProviderOpenAI
	}
	return p
}

// Validate checks every section. Credentials are not required here;
// the LLM backend rejects a missing key when it is built.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be 1-65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %w", ErrInvalidConfig, err)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("%w: embeddings.dimension must be >= 0", ErrInvalidConfig)
	}
	switch c.Memory.Backend {
	case vectorstore.BackendSQLite, vectorstore.BackendChromem, vectorstore.BackendQdrant:
	default:
		return fmt.Errorf("%w: unknown memory.backend %q", ErrInvalidConfig, c.Memory.Backend)
	}
	if err := vectorstore.ValidateCollectionName(c.Memory.Collection); err != nil {
		return fmt.Errorf("%w: memory.collection: %w", ErrInvalidConfig, err)
	}
	if c.Memory.SearchLimit < 0 {
		return fmt.Errorf("%w: memory.search_limit must be >= 0", ErrInvalidConfig)
	}
	cache := c.RouterCache()
	if err := cache.Validate(); err != nil {
		return fmt.Errorf("%w: cache: %w", ErrInvalidConfig, err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("%w: scheduler.interval must be positive", ErrInvalidConfig)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LLMBackend converts the llm section for llm.New.
func (c *Config) LLMBackend() llm.Config {
	cfg := llm.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey.Value(),
		BaseURL:     c.LLM.BaseURL,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout.Duration(),
		RateLimit:   c.LLM.RateLimit,
		Burst:       c.LLM.Burst,
		MaxRetries:  c.LLM.MaxRetries,
		Backoff:     c.LLM.Backoff.Duration(),
	}
	cfg.ApplyDefaults()
	return cfg
}

// EmbeddingBackend converts the embeddings section for embeddings.NewService.
func (c *Config) EmbeddingBackend() embeddings.Config {
	cfg := embeddings.Config{
		Provider:  c.Embeddings.Provider,
		Model:     c.Embeddings.Model,
		APIKey:    c.Embeddings.APIKey.Value(),
		BaseURL:   c.Embeddings.BaseURL,
		Dimension: c.Embeddings.Dimension,
	}
	cfg.ApplyDefaults()
	return cfg
}

// MemoryIndex returns the index configuration for the embedding dimension.
func (c *Config) MemoryIndex() memory.Config {
	cfg := memory.Config{Dimension: c.Embeddings.Dimension}
	cfg.ApplyDefaults()
	return cfg
}

// VectorStore converts the memory section for vectorstore.Open.
func (c *Config) VectorStore() vectorstore.Config {
	cfg := vectorstore.Config{
		Backend: c.Memory.Backend,
		Chromem: vectorstore.ChromemConfig{
			Path:       c.Memory.ChromemPath,
			Compress:   c.Memory.ChromemCompress,
			Collection: c.Memory.Collection,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:           c.Memory.QdrantHost,
			Port:           c.Memory.QdrantPort,
			APIKey:         c.Memory.QdrantAPIKey.Value(),
			UseTLS:         c.Memory.QdrantTLS,
			Collection:     c.Memory.Collection,
			RequestTimeout: c.Memory.QdrantTimeout.Duration(),
		},
	}
	cfg.Chromem.ApplyDefaults()
	cfg.Qdrant.ApplyDefaults()
	return cfg
}

// RouterCache converts the cache section for router.NewCache.
func (c *Config) RouterCache() router.CacheConfig {
	cfg := router.CacheConfig{
		Backend:       c.Cache.Backend,
		TTL:           c.Cache.TTL.Duration(),
		MaxEntries:    c.Cache.MaxEntries,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword.Value(),
		RedisDB:       c.Cache.RedisDB,
		KeyPrefix:     c.Cache.KeyPrefix,
	}
	cfg.ApplyDefaults()
	return cfg
}
