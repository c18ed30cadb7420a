// Package rediscache provides a Redis-backed cache so multiple processes
// can share tool outputs. The `<tool>:<digest>` key namespace from the
// cache package is prefixed with "scout:cache:" inside Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "scout:cache:"

// Cache implements cache.Cache on top of a Redis client.
type Cache struct {
	client *redis.Client
}

// Open connects to Redis using a redis:// URL and pings it.
func Open(ctx context.Context, redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("rediscache: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client (used by tests).
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the value for key if present; expiry is handled by Redis.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	b, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	return b, true, nil
}

// Put stores value under key with the given ttl.
func (c *Cache) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, keyPrefix+key, []byte(value), ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: put %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error { return c.client.Close() }
