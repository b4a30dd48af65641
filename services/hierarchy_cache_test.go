package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"catalog-hierarchy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_String(t *testing.T) {
	key := CacheKey{Kind: CacheKindDescendants, NodeID: "e", Param: "2"}
	assert.Equal(t, "descendants:e:2", key.String())
}

func TestInMemoryHierarchyCache_PutAndGet(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)

	key := CacheKey{Kind: CacheKindChildren, NodeID: "e"}
	nodes := []*models.CategoryNode{node("p", "e", "Phones", "electronics/phones", 1, 0)}
	require.True(t, cache.Put(ctx, key, []string{"electronics"}, nodes, gen))

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "p", got[0].ID)

	// Returned nodes are copies.
	got[0].Name = "changed"
	again, _ := cache.Get(ctx, key)
	assert.Equal(t, "Phones", again[0].Name)

	stats := cache.GetStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, 1, stats.Size)
}

func TestInMemoryHierarchyCache_Miss(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()

	_, ok := cache.Get(context.Background(), CacheKey{Kind: CacheKindNode, NodeID: "missing"})
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.GetStats().Misses)
}

func TestInMemoryHierarchyCache_StaleGenerationRejected(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()

	gen, _ := cache.Generation(ctx)
	require.NoError(t, cache.Invalidate(ctx, []string{"home"}))

	key := CacheKey{Kind: CacheKindNode, NodeID: "h"}
	ok := cache.Put(ctx, key, []string{"home"}, []*models.CategoryNode{node("h", "", "Home", "home", 0, 0)}, gen)
	assert.False(t, ok)

	_, hit := cache.Get(ctx, key)
	assert.False(t, hit)
	assert.Equal(t, int64(1), cache.GetStats().RejectedPuts)
}

func TestInMemoryHierarchyCache_InvalidateByScope(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()
	gen, _ := cache.Generation(ctx)

	phones := CacheKey{Kind: CacheKindDescendants, NodeID: "p"}
	electronics := CacheKey{Kind: CacheKindChildren, NodeID: "e"}
	kitchen := CacheKey{Kind: CacheKindAncestors, NodeID: "k"}
	require.True(t, cache.Put(ctx, phones, []string{"electronics/phones"}, nil, gen))
	require.True(t, cache.Put(ctx, electronics, []string{"electronics"}, nil, gen))
	require.True(t, cache.Put(ctx, kitchen, []string{"home", "home/kitchen"}, nil, gen))

	// A change below phones affects the phones subtree and every ancestor scope.
	require.NoError(t, cache.Invalidate(ctx, []string{"electronics/phones/smartphones"}))

	_, ok := cache.Get(ctx, phones)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, electronics)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, kitchen)
	assert.True(t, ok)

	newGen, _ := cache.Generation(ctx)
	assert.Equal(t, gen+1, newGen)
	assert.Equal(t, int64(2), cache.GetStats().Invalidations)
}

func TestInMemoryHierarchyCache_SiblingPrefixIsNotOverlap(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()
	gen, _ := cache.Generation(ctx)

	key := CacheKey{Kind: CacheKindNode, NodeID: "x"}
	require.True(t, cache.Put(ctx, key, []string{"home-office"}, nil, gen))
	require.NoError(t, cache.Invalidate(ctx, []string{"home"}))

	_, ok := cache.Get(ctx, key)
	assert.True(t, ok)
}

func TestInMemoryHierarchyCache_ForestScope(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()
	gen, _ := cache.Generation(ctx)

	roots := CacheKey{Kind: CacheKindChildren}
	require.True(t, cache.Put(ctx, roots, []string{""}, nil, gen))
	require.NoError(t, cache.Invalidate(ctx, []string{"anything/deep"}))

	_, ok := cache.Get(ctx, roots)
	assert.False(t, ok)
}

func TestInMemoryHierarchyCache_Eviction(t *testing.T) {
	cache := NewInMemoryHierarchyCache(3, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()
	gen, _ := cache.Generation(ctx)

	for i := 0; i < 4; i++ {
		require.True(t, cache.Put(ctx, CacheKey{Kind: CacheKindNode, NodeID: fmt.Sprintf("n%d", i)}, []string{"a"}, nil, gen))
		time.Sleep(time.Millisecond)
	}

	stats := cache.GetStats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)
	_, ok := cache.Get(ctx, CacheKey{Kind: CacheKindNode, NodeID: "n0"})
	assert.False(t, ok)
}

func TestInMemoryHierarchyCache_Expiration(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, 20*time.Millisecond, time.Minute)
	defer cache.Stop()
	ctx := context.Background()
	gen, _ := cache.Generation(ctx)

	key := CacheKey{Kind: CacheKindNode, NodeID: "e"}
	require.True(t, cache.Put(ctx, key, []string{"electronics"}, nil, gen))
	time.Sleep(40 * time.Millisecond)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestInMemoryHierarchyCache_Clear(t *testing.T) {
	cache := NewInMemoryHierarchyCache(10, time.Minute, time.Minute)
	defer cache.Stop()
	ctx := context.Background()
	gen, _ := cache.Generation(ctx)

	require.True(t, cache.Put(ctx, CacheKey{Kind: CacheKindNode, NodeID: "e"}, []string{"electronics"}, nil, gen))
	require.NoError(t, cache.Clear(ctx))

	stats := cache.GetStats()
	assert.Zero(t, stats.Size)
	assert.Equal(t, gen+1, stats.Generation)
	assert.False(t, cache.Put(ctx, CacheKey{Kind: CacheKindNode, NodeID: "e"}, nil, nil, gen))
}

func TestScopesOverlap(t *testing.T) {
	assert.True(t, scopesOverlap([]string{"a/b"}, []string{"a"}))
	assert.True(t, scopesOverlap([]string{"a"}, []string{"a/b/c"}))
	assert.True(t, scopesOverlap([]string{"x", "a"}, []string{"a"}))
	assert.False(t, scopesOverlap([]string{"a/b"}, []string{"a/c"}))
	assert.False(t, scopesOverlap(nil, []string{"a"}))
}
