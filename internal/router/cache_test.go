package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyrsmithlabs/assistantd/internal/agent"
	"github.com/fyrsmithlabs/assistantd/internal/router"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c, err := router.NewMemoryCache(100, time.Hour)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", agent.Reminder)
	c.Wait()

	label, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, agent.Reminder, label)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := router.NewRedisCache(client, "test:", time.Hour, nil)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", agent.Memory)
	assert.Equal(t, "memory", mustGet(t, mr, "test:k"))

	label, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, agent.Memory, label)

	mr.FastForward(2 * time.Hour)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "entry expires after the TTL")

	require.NoError(t, mr.Set("test:bad", "router"))
	_, ok = c.Get(ctx, "bad")
	assert.False(t, ok, "unrecognized values are misses")
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	c, err := router.NewCache(ctx, router.CacheConfig{Backend: router.CacheNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = router.NewCache(ctx, router.CacheConfig{}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.IsType(t, &router.MemoryCache{}, c)
	require.NoError(t, c.Close())

	mr := miniredis.RunT(t)
	c, err = router.NewCache(ctx, router.CacheConfig{Backend: router.CacheRedis, RedisAddr: mr.Addr()}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.IsType(t, &router.RedisCache{}, c)
	require.NoError(t, c.Close())

	_, err = router.NewCache(ctx, router.CacheConfig{Backend: "memcached"}, nil)
	assert.ErrorIs(t, err, router.ErrInvalidCacheConfig)
}

func TestNewCache_RedisUnreachableDisablesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := router.NewCache(ctx, router.CacheConfig{Backend: router.CacheRedis, RedisAddr: addr}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
