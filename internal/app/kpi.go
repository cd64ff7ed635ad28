package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/pharmastats/pharmastats/internal/kpi"
)

// NewKPICache builds the KPI query cache on the configured backend. The redis
// client is only required for the redis backend.
func NewKPICache(cfg *Config, client *redis.Client, recorder kpi.CacheRecorder) (*kpi.Cache, error) {
	var store kpi.Store
	switch cfg.KPICacheBackend {
	case CacheBackendRedis:
		if client == nil {
			return nil, errRedisRequired
		}
		store = kpi.NewRedisStore(client)
	default:
		store = kpi.NewMemoryStore()
	}
	opts := []kpi.CacheOption{}
	if recorder != nil {
		opts = append(opts, kpi.WithRecorder(recorder))
	}
	return kpi.NewCache(store, cfg.KPICacheTTL, opts...), nil
}
