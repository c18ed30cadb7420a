// Package memcache provides the in-process cache backend: a sharded
// expiring map with lazy expiry and an optional background sweep.
package memcache

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type entry struct {
	value     json.RawMessage
	expiresAt time.Time
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// Cache is a sharded in-memory TTL cache. Mutation is single-key only, so
// per-shard locks suffice; a read-then-write race on the same key resolves
// last-writer-wins.
type Cache struct {
	shards [shardCount]*shard
	now    func() time.Time

	stop chan struct{}
	once sync.Once
}

// Option configures the Cache at construction time.
type Option func(*Cache)

// WithClock overrides the time source (tests simulate TTL expiry with it).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepInterval starts a background janitor that removes expired
// entries at the given interval. Disabled when interval <= 0.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			go c.janitor(interval)
		}
	}
}

// New constructs an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{now: time.Now, stop: make(chan struct{})}
	for i := range c.shards {
		c.shards[i] = &shard{m: map[string]entry{}}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if present and unexpired. Expired entries
// read as absent and are removed.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a fresh Put may have replaced it.
		if cur, still := s.m[key]; still && !c.now().Before(cur.expiresAt) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Put stores value under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s := c.shardFor(key)
	s.mu.Lock()
	s.m[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Sweep removes all expired entries and reports how many were evicted.
func (c *Cache) Sweep() int {
	now := c.now()
	evicted := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.m {
			if !now.Before(e.expiresAt) {
				delete(s.m, k)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Close stops the background janitor, if any.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}
