package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmastats/pharmastats/internal/observability"
)

func TestNewKPICacheMemory(t *testing.T) {
	cache, err := NewKPICache(&Config{KPICacheBackend: CacheBackendMemory, KPICacheTTL: 12 * time.Hour}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, cache.TTL())
}

func TestNewKPICacheRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{KPICacheBackend: CacheBackendRedis, KPICacheTTL: time.Hour}
	cache, err := NewKPICache(cfg, client, observability.NewMetrics())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "kpi:sales:abc", map[string]float64{"montant_ttc": 10}))
	var got map[string]float64
	hit, err := cache.Get(ctx, "kpi:sales:abc", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 10.0, got["montant_ttc"])
}

func TestNewKPICacheRedisRequiresClient(t *testing.T) {
	_, err := NewKPICache(&Config{KPICacheBackend: CacheBackendRedis, KPICacheTTL: time.Hour}, nil, nil)
	assert.Error(t, err)
}
