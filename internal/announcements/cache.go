// Package announcements computes the "nearly sold out" announcement and keeps
// it in a cache under a fixed key.
package announcements

import (
	"context"
	"errors"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CacheKey is the fixed cache key of the current announcement.
const CacheKey = "RECENT_ANNOUNCEMENTS"

// Cache stores the current announcement. Entries never expire.
type Cache interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, message string) error
	Clear(ctx context.Context) error
}

// RedisCache keeps the announcement in Redis so every server sees the worker's value.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context) (string, bool, error) {
	v, err := c.client.Get(ctx, CacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, message string) error {
	if err := c.client.Set(ctx, CacheKey, message, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, CacheKey).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// MemoryCache keeps the announcement in process. It serves single-node runs
// without Redis.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (c *MemoryCache) Get(context.Context) (string, bool, error) {
	v, ok := c.cache.Get(CacheKey)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, message string) error {
	c.cache.Set(CacheKey, message, gocache.NoExpiration)
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.cache.Delete(CacheKey)
	return nil
}
