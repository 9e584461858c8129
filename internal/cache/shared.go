package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// sharedPoolSize caps connections to the shared cache.
const sharedPoolSize = 20

// scanBatch is the COUNT hint for pattern scans.
const scanBatch = 100

// SharedCache is the TTL-bounded key/value tier backed by Redis. Every
// operation degrades to a no-op (or a miss) when the backend is down or
// unconfigured, incrementing an error counter; callers never fail because
// the cache is unavailable. A nil *SharedCache behaves as a disabled cache.
type SharedCache struct {
	client   *redis.Client
	errCount atomic.Int64
}

// NewSharedCache connects to the shared cache at redisURL
// (redis://host:port/db form).
func NewSharedCache(redisURL string) (*SharedCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse shared cache url: %w", err)
	}
	opts.PoolSize = sharedPoolSize
	return &SharedCache{client: redis.NewClient(opts)}, nil
}

// Get fetches a raw value. Misses and backend errors both report !ok.
func (c *SharedCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.errCount.Add(1)
		}
		return nil, false
	}
	return val, true
}

// Set stores a value under key with a per-key TTL (SETEX).
func (c *SharedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		c.errCount.Add(1)
	}
}

// Delete removes the given keys.
func (c *SharedCache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.errCount.Add(1)
	}
}

// FlushPattern deletes every key matching a glob pattern via iterative
// SCAN + DEL and returns the number deleted.
func (c *SharedCache) FlushPattern(ctx context.Context, pattern string) int {
	if c == nil || c.client == nil {
		return 0
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			c.errCount.Add(1)
			return deleted
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.errCount.Add(1)
				return deleted
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// Ping checks backend reachability.
func (c *SharedCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("shared cache not configured")
	}
	return c.client.Ping(ctx).Err()
}

// ErrorCount reports how many operations degraded due to backend errors.
func (c *SharedCache) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errCount.Load()
}

// Close releases the connection pool.
func (c *SharedCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
