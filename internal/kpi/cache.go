package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCacheTTL bounds how long a computed KPI is served from cache.
const DefaultCacheTTL = 12 * time.Hour

// Entry is a cached payload and the moment it was stored.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store persists cache entries. Implementations must be safe for concurrent use
// and must never hand out a partially written entry.
type Store interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context) error
}

// CacheRecorder observes cache lookups per key prefix.
type CacheRecorder interface {
	CacheHit(prefix string)
	CacheMiss(prefix string)
}

// Cache is a TTL cache in front of KPI computations. Concurrent misses on the same
// key may both run the producer; the last write wins.
type Cache struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	recorder CacheRecorder
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRecorder reports hits and misses to r.
func WithRecorder(r CacheRecorder) CacheOption {
	return func(c *Cache) { c.recorder = r }
}

// NewCache builds a cache on top of store. A non-positive ttl selects DefaultCacheTTL.
func NewCache(store Store, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateKey derives a deterministic key from prefix and params. Struct fields
// serialise in declaration order and map keys sorted, so structurally equal params
// always yield the same key.
func GenerateKey(prefix string, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("kpi cache: key: %w", err)
	}
	return prefix + ":" + string(raw), nil
}

// Get decodes the entry stored under key into dest. It reports false when the
// key is absent or the entry outlived the TTL; expired entries are evicted.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	entry, ok, err := c.store.Load(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		c.miss(key)
		return false, nil
	}
	if c.now().Sub(entry.Timestamp) > c.ttl {
		c.miss(key)
		if err := c.store.Delete(ctx, key); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return false, fmt.Errorf("kpi cache: decode %s: %w", key, err)
	}
	c.hit(key)
	return true, nil
}

// Set stores value under key, overwriting any previous entry and resetting its age.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kpi cache: encode %s: %w", key, err)
	}
	return c.store.Save(ctx, key, Entry{Data: raw, Timestamp: c.now()}, c.ttl)
}

// WithCache serves dest from cache or fills it from producer and stores the result.
func (c *Cache) WithCache(ctx context.Context, key string, dest any, producer func(context.Context) (any, error)) error {
	if producer == nil {
		return errors.New("kpi cache: producer required")
	}
	if c != nil {
		ok, err := c.Get(ctx, key, dest)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	value, err := producer(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil {
		if err := c.store.Save(ctx, key, Entry{Data: raw, Timestamp: c.now()}, c.ttl); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Purge drops every entry, typically after the materialized views were refreshed.
func (c *Cache) Purge(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.store.Purge(ctx)
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

func (c *Cache) hit(key string) {
	if c.recorder != nil {
		c.recorder.CacheHit(keyPrefix(key))
	}
}

func (c *Cache) miss(key string) {
	if c.recorder != nil {
		c.recorder.CacheMiss(keyPrefix(key))
	}
}

// keyPrefix strips the serialised params from a key generated by GenerateKey.
func keyPrefix(key string) string {
	if i := strings.Index(key, ":{"); i >= 0 {
		return key[:i]
	}
	return key
}
