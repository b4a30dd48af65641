package services

import (
	"context"
	"os"
	"testing"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisTestCache(t *testing.T) *RedisHierarchyCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := "catalog:test:" + time.Now().Format("150405.000000") + ":"
	cache := NewRedisHierarchyCache(client, RedisCacheConfig{KeyPrefix: prefix, TTL: time.Minute}, nil)
	t.Cleanup(func() { _ = cache.Clear(context.Background()) })
	return cache
}

func TestRedisHierarchyCache_PutGetInvalidate(t *testing.T) {
	cache := redisTestCache(t)
	ctx := context.Background()

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)

	phones := CacheKey{Kind: CacheKindDescendants, NodeID: "p"}
	kitchen := CacheKey{Kind: CacheKindChildren, NodeID: "k"}
	require.True(t, cache.Put(ctx, phones, []string{"electronics/phones"},
		[]*models.CategoryNode{node("s", "p", "Smartphones", "electronics/phones/smartphones", 2, 0)}, gen))
	require.True(t, cache.Put(ctx, kitchen, []string{"home/kitchen"}, nil, gen))

	got, ok := cache.Get(ctx, phones)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "electronics/phones/smartphones", got[0].MaterializedPath)

	require.NoError(t, cache.Invalidate(ctx, []string{"electronics"}))

	_, ok = cache.Get(ctx, phones)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, kitchen)
	assert.True(t, ok)

	// The old generation can no longer write.
	assert.False(t, cache.Put(ctx, phones, []string{"electronics/phones"}, nil, gen))

	stats := cache.GetStats()
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, gen+1, stats.Generation)
}

func TestRedisHierarchyCache_Clear(t *testing.T) {
	cache := redisTestCache(t)
	ctx := context.Background()

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	key := CacheKey{Kind: CacheKindNode, NodeID: "e"}
	require.True(t, cache.Put(ctx, key, []string{"electronics"}, nil, gen))

	require.NoError(t, cache.Clear(ctx))

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
	assert.NoError(t, cache.Ping(ctx))
}

func TestRedisHierarchyCache_UnreachableFailsClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cache := NewRedisHierarchyCache(client, RedisCacheConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	err := cache.Invalidate(ctx, []string{"electronics"})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeCacheUnavailable, appErr.Code)

	// After a failed invalidation the cache neither serves nor accepts entries.
	_, hit := cache.Get(ctx, CacheKey{Kind: CacheKindNode, NodeID: "e"})
	assert.False(t, hit)
	assert.False(t, cache.Put(ctx, CacheKey{Kind: CacheKindNode, NodeID: "e"}, nil, nil, 0))

	_, err = cache.Generation(ctx)
	assert.Error(t, err)
	assert.Error(t, cache.Ping(ctx))
}
