package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisCacheConfig configures RedisHierarchyCache.
type RedisCacheConfig struct {
	KeyPrefix string
	TTL       time.Duration
	// Breaker trips after this many consecutive failures.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// RedisHierarchyCache shares traversal results between service replicas.
//
// Layout under KeyPrefix: "gen" holds the generation counter, "scopes" is a
// hash of entry key to JSON scope list, and "entry:<key>" holds the nodes.
// Put runs under WATCH on the generation key so it aborts when an
// invalidation lands in between. When an invalidation cannot reach Redis the
// cache stops serving reads until a full flush succeeds.
type RedisHierarchyCache struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker
	prefix  string
	ttl     time.Duration
	logger  Logger

	needsFlush atomic.Bool

	mu    sync.Mutex
	stats CacheStats
}

// NewRedisHierarchyCache wraps an existing client.
func NewRedisHierarchyCache(client redis.UniversalClient, cfg RedisCacheConfig, logger Logger) *RedisHierarchyCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "hierarchy:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	c := &RedisHierarchyCache{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: logger,
		stats:  CacheStats{Backend: "redis", LastCleared: time.Now()},
	}

	threshold := cfg.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hierarchy-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Cache circuit breaker state changed",
				String("breaker", name),
				String("from", from.String()),
				String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr)
		},
	})

	return c
}

func (c *RedisHierarchyCache) genKey() string    { return c.prefix + "gen" }
func (c *RedisHierarchyCache) scopesKey() string { return c.prefix + "scopes" }
func (c *RedisHierarchyCache) entryKey(key string) string {
	return c.prefix + "entry:" + key
}

func (c *RedisHierarchyCache) Generation(ctx context.Context) (uint64, error) {
	if err := c.flushIfNeeded(ctx); err != nil {
		return 0, err
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		gen, err := c.client.Get(ctx, c.genKey()).Uint64()
		if errors.Is(err, redis.Nil) {
			return uint64(0), nil
		}
		return gen, err
	})
	if err != nil {
		return 0, c.unavailable(err)
	}
	return res.(uint64), nil
}

func (c *RedisHierarchyCache) Get(ctx context.Context, key CacheKey) ([]*models.CategoryNode, bool) {
	if c.needsFlush.Load() {
		c.recordLookup(false)
		return nil, false
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, c.entryKey(key.String())).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("Cache read failed", String("key", key.String()), String("error", err.Error()))
		}
		c.recordLookup(false)
		return nil, false
	}

	var nodes []*models.CategoryNode
	if err := json.Unmarshal(res.([]byte), &nodes); err != nil {
		c.recordLookup(false)
		return nil, false
	}

	c.recordLookup(true)
	return nodes, true
}

func (c *RedisHierarchyCache) Put(ctx context.Context, key CacheKey, scopes []string, nodes []*models.CategoryNode, generation uint64) bool {
	if c.needsFlush.Load() {
		return false
	}

	payload, err := json.Marshal(nodes)
	if err != nil {
		return false
	}
	scopeJSON, err := json.Marshal(scopes)
	if err != nil {
		return false
	}

	k := key.String()
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, c.genKey()).Uint64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != generation {
				return redis.TxFailedErr
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, c.entryKey(k), payload, c.ttl)
				pipe.HSet(ctx, c.scopesKey(), k, scopeJSON)
				return nil
			})
			return err
		}, c.genKey())
	})

	if err != nil {
		c.mu.Lock()
		c.stats.RejectedPuts++
		c.mu.Unlock()
		return false
	}
	return true
}

// Invalidate bumps the generation before scanning the scope index so that a
// Put racing with it either fails its WATCH or is already visible in the index.
func (c *RedisHierarchyCache) Invalidate(ctx context.Context, touched []string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
			return nil, err
		}

		index, err := c.client.HGetAll(ctx, c.scopesKey()).Result()
		if err != nil {
			return nil, err
		}

		var stale []string
		for k, raw := range index {
			var scopes []string
			if err := json.Unmarshal([]byte(raw), &scopes); err != nil || scopesOverlap(scopes, touched) {
				stale = append(stale, k)
			}
		}
		if len(stale) == 0 {
			return nil, nil
		}

		entryKeys := make([]string, len(stale))
		for i, k := range stale {
			entryKeys[i] = c.entryKey(k)
		}
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, entryKeys...)
			pipe.HDel(ctx, c.scopesKey(), stale...)
			return nil
		})
		if err == nil {
			c.mu.Lock()
			c.stats.Invalidations += int64(len(stale))
			c.mu.Unlock()
		}
		return nil, err
	})

	if err != nil {
		c.needsFlush.Store(true)
		c.logger.Error("Cache invalidation failed, reads disabled until flush", err,
			Int("touched", len(touched)))
		return c.unavailable(err)
	}
	return nil
}

// Clear removes every entry and the scope index.
func (c *RedisHierarchyCache) Clear(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.clear(ctx)
	})
	if err != nil {
		c.needsFlush.Store(true)
		return c.unavailable(err)
	}

	c.needsFlush.Store(false)
	c.mu.Lock()
	c.stats.LastCleared = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *RedisHierarchyCache) clear(ctx context.Context) error {
	keys, err := c.client.HKeys(ctx, c.scopesKey()).Result()
	if err != nil {
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey())
		for _, k := range keys {
			pipe.Del(ctx, c.entryKey(k))
		}
		pipe.Del(ctx, c.scopesKey())
		return nil
	})
	return err
}

func (c *RedisHierarchyCache) flushIfNeeded(ctx context.Context) error {
	if !c.needsFlush.Load() {
		return nil
	}
	if err := c.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info("Cache flushed after failed invalidation")
	return nil
}

func (c *RedisHierarchyCache) GetStats() CacheStats {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n, err := c.client.HLen(ctx, c.scopesKey()).Result(); err == nil {
		stats.Size = int(n)
	}
	if gen, err := c.client.Get(ctx, c.genKey()).Uint64(); err == nil {
		stats.Generation = gen
	}
	return stats
}

// Ping reports whether Redis is reachable; used by the health service.
func (c *RedisHierarchyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisHierarchyCache) recordLookup(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	total := c.stats.Hits + c.stats.Misses
	c.stats.HitRate = float64(c.stats.Hits) / float64(total)
}

func (c *RedisHierarchyCache) unavailable(err error) error {
	return apperrors.NewExternalServiceError(apperrors.ErrCodeCacheUnavailable, "Hierarchy cache unavailable", err)
}
