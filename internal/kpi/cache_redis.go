package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisNamespace  = "pharmastats:kpi"
	redisVersionKey = redisNamespace + ":version"
)

// RedisStore shares cache entries between server instances. Keys are namespaced by
// a version counter so Purge is a single INCR; stale generations age out on their TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Version returns the current key generation, initialising it when missing.
func (s *RedisStore) Version(ctx context.Context) (int64, error) {
	ver, err := s.client.Get(ctx, redisVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := s.client.SetNX(ctx, redisVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return s.client.Get(ctx, redisVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (s *RedisStore) physicalKey(ctx context.Context, key string) (string, error) {
	ver, err := s.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", redisNamespace, ver, key), nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	pk, err := s.physicalKey(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}
	payload, err := s.client.Get(ctx, pk).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("kpi cache: redis entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Save writes the entry with a server-side expiry matching the cache TTL.
func (s *RedisStore) Save(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	pk, err := s.physicalKey(ctx, key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, pk, payload, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pk, err := s.physicalKey(ctx, key)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, pk).Err()
}

// Purge moves every instance to a fresh key generation.
func (s *RedisStore) Purge(ctx context.Context) error {
	return s.client.Incr(ctx, redisVersionKey).Err()
}
