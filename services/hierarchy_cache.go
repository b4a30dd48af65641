package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"
)

// CacheKind names the traversal a cache entry belongs to.
type CacheKind string

const (
	CacheKindNode        CacheKind = "node"
	CacheKindByPath      CacheKind = "by_path"
	CacheKindChildren    CacheKind = "children"
	CacheKindAncestors   CacheKind = "ancestors"
	CacheKindDescendants CacheKind = "descendants"
	CacheKindSiblings    CacheKind = "siblings"
)

// CacheKey identifies one cached traversal result.
type CacheKey struct {
	Kind   CacheKind
	NodeID string
	Param  string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Kind, k.NodeID, k.Param)
}

// HierarchyCache holds traversal results between mutations.
//
// Every entry carries the materialized paths it was derived from (its scope).
// Invalidate removes each entry whose scope overlaps a touched path and bumps
// the generation. A Put made with a generation older than the current one is
// dropped, so a read that raced an invalidation never repopulates stale data.
type HierarchyCache interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, key CacheKey) ([]*models.CategoryNode, bool)
	Put(ctx context.Context, key CacheKey, scopes []string, nodes []*models.CategoryNode, generation uint64) bool
	Invalidate(ctx context.Context, touched []string) error
	Clear(ctx context.Context) error
	GetStats() CacheStats
}

// CacheStats provides cache performance metrics
type CacheStats struct {
	Backend       string    `json:"backend"`
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	HitRate       float64   `json:"hit_rate"`
	Size          int       `json:"size"`
	MaxSize       int       `json:"max_size"`
	Evictions     int64     `json:"evictions"`
	Invalidations int64     `json:"invalidations"`
	RejectedPuts  int64     `json:"rejected_puts"`
	Generation    uint64    `json:"generation"`
	LastCleared   time.Time `json:"last_cleared"`
}

type hierarchyEntry struct {
	scopes    []string
	nodes     []*models.CategoryNode
	expiresAt time.Time
	createdAt time.Time
}

// InMemoryHierarchyCache implements HierarchyCache with a bounded map.
type InMemoryHierarchyCache struct {
	mu         sync.RWMutex
	data       map[CacheKey]*hierarchyEntry
	maxSize    int
	ttl        time.Duration
	generation uint64
	stats      CacheStats
	janitor    *time.Ticker
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewInMemoryHierarchyCache creates a cache holding at most maxSize entries.
func NewInMemoryHierarchyCache(maxSize int, ttl, cleanupInterval time.Duration) *InMemoryHierarchyCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	cache := &InMemoryHierarchyCache{
		data:     make(map[CacheKey]*hierarchyEntry),
		maxSize:  maxSize,
		ttl:      ttl,
		stats:    CacheStats{Backend: "memory", MaxSize: maxSize, LastCleared: time.Now()},
		janitor:  time.NewTicker(cleanupInterval),
		stopChan: make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func (c *InMemoryHierarchyCache) Generation(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation, nil
}

// Get returns copies of the cached nodes.
func (c *InMemoryHierarchyCache) Get(ctx context.Context, key CacheKey) ([]*models.CategoryNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.data[key]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.stats.Misses++
		delete(c.data, key)
		c.stats.Size = len(c.data)
		c.updateHitRate()
		return nil, false
	}

	c.stats.Hits++
	c.updateHitRate()

	return cloneNodes(entry.nodes), true
}

func (c *InMemoryHierarchyCache) Put(ctx context.Context, key CacheKey, scopes []string, nodes []*models.CategoryNode, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.stats.RejectedPuts++
		return false
	}

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.data[key] = &hierarchyEntry{
		scopes:    append([]string(nil), scopes...),
		nodes:     cloneNodes(nodes),
		expiresAt: now.Add(c.ttl),
		createdAt: now,
	}
	c.stats.Size = len(c.data)

	return true
}

// Invalidate drops every entry whose scope overlaps one of the touched paths.
func (c *InMemoryHierarchyCache) Invalidate(ctx context.Context, touched []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	for key, entry := range c.data {
		if scopesOverlap(entry.scopes, touched) {
			delete(c.data, key)
			c.stats.Invalidations++
		}
	}
	c.stats.Size = len(c.data)

	return nil
}

func (c *InMemoryHierarchyCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.data = make(map[CacheKey]*hierarchyEntry)
	c.stats.Size = 0
	c.stats.LastCleared = time.Now()

	return nil
}

func (c *InMemoryHierarchyCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Generation = c.generation
	return stats
}

// Stop stops the cleanup goroutine
func (c *InMemoryHierarchyCache) Stop() {
	c.stopOnce.Do(func() {
		c.janitor.Stop()
		close(c.stopChan)
	})
}

func (c *InMemoryHierarchyCache) evictOldest() {
	var oldestKey CacheKey
	var oldestTime time.Time
	found := false

	for key, entry := range c.data {
		if !found || entry.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createdAt
			found = true
		}
	}

	if found {
		delete(c.data, oldestKey)
		c.stats.Evictions++
	}
}

func (c *InMemoryHierarchyCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *InMemoryHierarchyCache) cleanup() {
	for {
		select {
		case <-c.janitor.C:
			c.removeExpired()
		case <-c.stopChan:
			return
		}
	}
}

func (c *InMemoryHierarchyCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
	c.stats.Size = len(c.data)
}

func scopesOverlap(scopes, touched []string) bool {
	for _, s := range scopes {
		for _, t := range touched {
			if pathcodec.Overlaps(s, t) {
				return true
			}
		}
	}
	return false
}

func cloneNodes(nodes []*models.CategoryNode) []*models.CategoryNode {
	if nodes == nil {
		return nil
	}
	out := make([]*models.CategoryNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
