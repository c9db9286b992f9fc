// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisCache(client, "test", zerolog.Nop())
}

func TestNewRedisClient_ParsesURL(t *testing.T) {
	client, err := NewRedisClient("rediss://:pw@redis.internal:6380/2")
	require.NoError(t, err)
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.NotNil(t, opts.TLSConfig)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)

	_, err = NewRedisClient("http://redis:6379")
	assert.Error(t, err)
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	require.NoError(t, c.Set(ctx, "code", "123456", 5*time.Minute))
	assert.True(t, mr.Exists("test:code"), "keys are namespaced by prefix")

	val, found, err := c.Get(ctx, "code")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "123456", val)

	_, found, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, Stats{Hits: 1, Misses: 1, Sets: 1}, c.Stats())
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	require.NoError(t, c.Set(ctx, "ttl-key", "ttl-value", 100*time.Millisecond))
	_, found, _ := c.Get(ctx, "ttl-key")
	require.True(t, found)

	mr.FastForward(200 * time.Millisecond)

	_, found, _ = c.Get(ctx, "ttl-key")
	assert.False(t, found, "expected value to be expired")
}

func TestRedisCache_Delete(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	require.NoError(t, c.Set(ctx, "delete-key", "v", 5*time.Minute))
	require.NoError(t, c.Delete(ctx, "delete-key"))

	_, found, _ := c.Get(ctx, "delete-key")
	assert.False(t, found)
}

func TestRedisCache_Incr(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	n, err := c.Incr(ctx, "attempts", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Incr(ctx, "attempts", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Minute, mr.TTL("test:attempts"))

	mr.FastForward(2 * time.Minute)
	n, err = c.Incr(ctx, "attempts", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisCache_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)
	mr.SetError("LOADING redis is loading the dataset in memory")

	_, _, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.HealthCheck(ctx))
	assert.Error(t, Ping(ctx, c.client))
}

var _ Cache = (*RedisCache)(nil)
var _ Cache = (*MemoryCache)(nil)
var _ redis.UniversalClient = (*redis.Client)(nil)
