package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"

	"github.com/pharmastats/pharmastats/internal/app"
	"github.com/pharmastats/pharmastats/jobs"
)

type countingEnqueuer struct{ warmups int }

func (c *countingEnqueuer) EnqueueViewsRefresh(context.Context, jobs.ViewsRefreshPayload) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "refresh", Queue: jobs.QueueDefault}, nil
}

func (c *countingEnqueuer) EnqueueCacheWarmup(context.Context, string) (*asynq.TaskInfo, error) {
	c.warmups++
	return &asynq.TaskInfo{ID: "warmup", Queue: jobs.QueueDefault}, nil
}

func postWarmup(cfg *app.Config, enq jobs.Enqueuer) int {
	r := chi.NewRouter()
	r.Route("/api/admin", jobs.NewHandler(enq, nil, nil, adminOptions(cfg)...).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/admin/warmup", nil))
	return rr.Code
}

func TestWarmupRejectedWithMemoryCache(t *testing.T) {
	enq := &countingEnqueuer{}
	code := postWarmup(&app.Config{KPICacheBackend: app.CacheBackendMemory}, enq)
	assert.Equal(t, http.StatusConflict, code)
	assert.Zero(t, enq.warmups)
}

func TestWarmupAcceptedWithRedisCache(t *testing.T) {
	enq := &countingEnqueuer{}
	code := postWarmup(&app.Config{KPICacheBackend: app.CacheBackendRedis}, enq)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, 1, enq.warmups)
}
