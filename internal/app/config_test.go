package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, CacheBackendMemory, cfg.KPICacheBackend)
	assert.False(t, cfg.SharedCache())
	assert.False(t, cfg.AdminEnabled)
	assert.Equal(t, 12*time.Hour, cfg.KPICacheTTL)
	assert.Equal(t, []string{"mv_product_stats_daily", "mv_latest_product_prices"}, cfg.KPIMaterializedViews)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("KPI_CACHE_BACKEND", "redis")
	t.Setenv("KPI_CACHE_TTL", "1h")
	t.Setenv("KPI_MATERIALIZED_VIEWS", "mv_a,mv_b,mv_c")
	t.Setenv("ADMIN_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, CacheBackendRedis, cfg.KPICacheBackend)
	assert.True(t, cfg.SharedCache())
	assert.True(t, cfg.AdminEnabled)
	assert.Equal(t, time.Hour, cfg.KPICacheTTL)
	assert.Len(t, cfg.KPIMaterializedViews, 3)
}

func TestConfigValidate(t *testing.T) {
	base := Config{KPICacheBackend: CacheBackendMemory, KPICacheTTL: time.Hour, KPIMaterializedViews: []string{"mv"}}
	require.NoError(t, base.Validate())

	bad := base
	bad.KPICacheBackend = "memcached"
	assert.ErrorContains(t, bad.Validate(), "KPI_CACHE_BACKEND")

	bad = base
	bad.KPICacheTTL = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.KPIMaterializedViews = nil
	assert.Error(t, bad.Validate())
}

func TestLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":"v"`)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
