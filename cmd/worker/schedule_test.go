package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmastats/pharmastats/internal/app"
	"github.com/pharmastats/pharmastats/jobs"
)

func scheduleConfig(backend string) *app.Config {
	return &app.Config{
		KPICacheBackend:   backend,
		KPIRefreshCron:    "0 3 * * *",
		KPIWarmupCron:     "30 3 * * *",
		KPIRefreshTimeout: 15 * time.Minute,
	}
}

func taskTypes(handlers []jobs.TaskHandler, cron []jobs.CronRegistration) ([]string, []string) {
	var h, c []string
	for _, th := range handlers {
		h = append(h, th.Type)
	}
	for _, reg := range cron {
		c = append(c, reg.Task.Type())
	}
	return h, c
}

func TestScheduleWithSharedCache(t *testing.T) {
	handlers, cron, err := schedule(scheduleConfig(app.CacheBackendRedis), &jobs.ViewsRefreshJob{}, &jobs.CacheWarmupJob{})
	require.NoError(t, err)

	h, c := taskTypes(handlers, cron)
	assert.Equal(t, []string{jobs.TaskViewsRefresh, jobs.TaskCacheWarmup}, h)
	assert.Equal(t, []string{jobs.TaskViewsRefresh, jobs.TaskCacheWarmup}, c)
	assert.Equal(t, "30 3 * * *", cron[1].Spec)
}

func TestScheduleSkipsWarmupWithMemoryCache(t *testing.T) {
	handlers, cron, err := schedule(scheduleConfig(app.CacheBackendMemory), &jobs.ViewsRefreshJob{}, &jobs.CacheWarmupJob{})
	require.NoError(t, err)

	h, c := taskTypes(handlers, cron)
	assert.Equal(t, []string{jobs.TaskViewsRefresh}, h)
	assert.Equal(t, []string{jobs.TaskViewsRefresh}, c)
	require.Len(t, cron[0].Options, 1)
}
