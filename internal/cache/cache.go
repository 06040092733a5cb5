// Package cache provides a Redis-backed key/value cache with a best-effort
// in-memory fallback used when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lamontai/lamontai/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores JSON-serialized values in Redis under a common key prefix.
// When the Redis client is nil or an operation fails, it falls back to an
// in-process map so reads after writes still work within one instance.
type Cache struct {
	client     redis.UniversalClient
	logger     *zap.Logger
	defaultTTL time.Duration
	keyPrefix  string

	mu  sync.RWMutex
	mem map[string]memItem

	hits   int64
	misses int64
	errors int64
}

type memItem struct {
	data      []byte
	expiresAt time.Time
}

// Stats reports cache counters since startup
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// New creates a cache. client may be nil to run memory-only.
func New(client redis.UniversalClient, logger *zap.Logger, defaultTTL time.Duration) *Cache {
	if defaultTTL == 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{
		client:     client,
		logger:     logger.Named("cache"),
		defaultTTL: defaultTTL,
		keyPrefix:  "lamontai:cache:",
		mem:        make(map[string]memItem),
	}
}

// Get retrieves a value into dest. Returns false when the key is absent.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	redisKey := c.keyPrefix + key

	if c.client != nil {
		data, err := c.client.Get(ctx, redisKey).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(data, dest); err != nil {
				atomic.AddInt64(&c.errors, 1)
				metrics.CacheOps.WithLabelValues("redis", "error").Inc()
				return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
			}
			atomic.AddInt64(&c.hits, 1)
			metrics.CacheOps.WithLabelValues("redis", "hit").Inc()
			return true, nil
		case err == redis.Nil:
			atomic.AddInt64(&c.misses, 1)
			metrics.CacheOps.WithLabelValues("redis", "miss").Inc()
			return false, nil
		default:
			atomic.AddInt64(&c.errors, 1)
			metrics.CacheOps.WithLabelValues("redis", "error").Inc()
			c.logger.Warn("Redis get failed, falling back to memory", zap.String("key", key), zap.Error(err))
		}
	}

	c.mu.RLock()
	item, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(item.expiresAt) {
		if ok {
			c.mu.Lock()
			delete(c.mem, key)
			c.mu.Unlock()
		}
		atomic.AddInt64(&c.misses, 1)
		metrics.CacheOps.WithLabelValues("memory", "miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(item.data, dest); err != nil {
		atomic.AddInt64(&c.errors, 1)
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	atomic.AddInt64(&c.hits, 1)
	metrics.CacheOps.WithLabelValues("memory", "hit").Inc()
	return true, nil
}

// Set stores a value under key with the given TTL (0 means the default TTL)
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		return fmt.Errorf("failed to marshal value for cache: %w", err)
	}

	if c.client != nil {
		if err := c.client.Set(ctx, c.keyPrefix+key, data, ttl).Err(); err == nil {
			return nil
		} else {
			atomic.AddInt64(&c.errors, 1)
			metrics.CacheOps.WithLabelValues("redis", "error").Inc()
			c.logger.Warn("Redis set failed, falling back to memory", zap.String("key", key), zap.Error(err))
		}
	}

	c.mu.Lock()
	c.mem[key] = memItem{data: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes a key from both layers
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	if c.client != nil {
		if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
			atomic.AddInt64(&c.errors, 1)
			return fmt.Errorf("failed to delete from cache: %w", err)
		}
	}
	return nil
}

// Stats returns counters since startup
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Errors: atomic.LoadInt64(&c.errors),
	}
}
