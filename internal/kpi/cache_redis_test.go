package kpi

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	cache := NewCache(store, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "kpi:sales:{}", SalesTotals{MontantHT: 10}))
	var got SalesTotals
	ok, err := cache.Get(ctx, "kpi:sales:{}", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, got.MontantHT)

	ttl := mr.TTL("pharmastats:kpi:1:kpi:sales:{}")
	assert.Equal(t, time.Hour, ttl)
}

func TestRedisStoreExpiresServerSide(t *testing.T) {
	store, mr := newRedisStore(t)
	cache := NewCache(store, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", 1))
	mr.FastForward(2 * time.Minute)

	var got int
	ok, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStorePurgeBumpsVersion(t *testing.T) {
	store, _ := newRedisStore(t)
	cache := NewCache(store, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", 1))
	before, err := store.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Purge(ctx))
	after, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	var got int
	ok, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
