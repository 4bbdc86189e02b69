package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a classification stays cached.
const DefaultCacheTTL = time.Hour

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ErrInvalidCacheConfig is returned for an unusable cache configuration.
var ErrInvalidCacheConfig = errors.New("invalid cache config")

// Cache stores recognized labels by input key. Misses and backend errors
// both report ok=false.
type Cache interface {
	Get(ctx context.Context, key string) (agent.Label, bool)
	Set(ctx context.Context, key string, label agent.Label)
	Close() error
}

// CacheKey normalizes input and hashes it.
func CacheKey(input string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(input))))
	return hex.EncodeToString(sum[:])
}

// CacheConfig selects and tunes the classification cache.
type CacheConfig struct {
	Backend string
	TTL     time.Duration

	// MaxEntries bounds the in-process cache.
	MaxEntries int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// ApplyDefaults sets default values for unset fields.
func (c *CacheConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = CacheMemory
	}
	if c.TTL == 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 10000
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "assistant:intent:"
	}
}

// Validate checks the configuration.
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidCacheConfig, c.Backend)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must be >= 0", ErrInvalidCacheConfig)
	}
	if c.Backend == CacheMemory && c.MaxEntries <= 0 {
		return fmt.Errorf("%w: max entries must be > 0", ErrInvalidCacheConfig)
	}
	return nil
}

// NewCache builds the configured cache. A nil Cache with a nil error means
// caching is off, either by configuration or because Redis could not be
// reached at startup.
func NewCache(ctx context.Context, cfg CacheConfig, logger *zap.Logger) (Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case CacheMemory:
		return NewMemoryCache(cfg.MaxEntries, cfg.TTL)
	case CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, classification cache disabled",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = client.Close()
			return nil, nil
		}
		logger.Info("classification cache connected", zap.String("addr", cfg.RedisAddr))
		return NewRedisCache(client, cfg.KeyPrefix, cfg.TTL, logger), nil
	default:
		return nil, nil
	}
}

// MemoryCache is an in-process cache on ristretto.
type MemoryCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache holding roughly maxEntries labels.
func NewMemoryCache(maxEntries int64, ttl time.Duration) (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}
	return &MemoryCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached label for key.
func (m *MemoryCache) Get(_ context.Context, key string) (agent.Label, bool) {
	v, ok := m.cache.Get(key)
	if !ok {
		cacheLookups.WithLabelValues(CacheMemory, "miss").Inc()
		return agent.Unknown, false
	}
	label, ok := v.(agent.Label)
	if !ok {
		return agent.Unknown, false
	}
	cacheLookups.WithLabelValues(CacheMemory, "hit").Inc()
	return label, true
}

// Set caches label under key. Writes are applied asynchronously.
func (m *MemoryCache) Set(_ context.Context, key string, label agent.Label) {
	m.cache.SetWithTTL(key, label, 1, m.ttl)
}

// Wait blocks until pending writes are visible.
func (m *MemoryCache) Wait() { m.cache.Wait() }

// Close releases the cache.
func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}

// RedisCache shares classifications between instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Get returns the cached label for key.
func (r *RedisCache) Get(ctx context.Context, key string) (agent.Label, bool) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("cache get failed", zap.Error(err))
			cacheLookups.WithLabelValues(CacheRedis, "error").Inc()
			return agent.Unknown, false
		}
		cacheLookups.WithLabelValues(CacheRedis, "miss").Inc()
		return agent.Unknown, false
	}
	label := agent.ParseLabel(v)
	if label == agent.Unknown {
		return agent.Unknown, false
	}
	cacheLookups.WithLabelValues(CacheRedis, "hit").Inc()
	return label, true
}

// Set caches label under key. Failures are logged and dropped.
func (r *RedisCache) Set(ctx context.Context, key string, label agent.Label) {
	if err := r.client.Set(ctx, r.prefix+key, label.String(), r.ttl).Err(); err != nil {
		r.logger.Debug("cache set failed", zap.Error(err))
	}
}

// Close closes the client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
