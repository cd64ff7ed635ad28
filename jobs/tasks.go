package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskViewsRefresh refreshes the KPI materialized views, then purges the KPI cache.
	TaskViewsRefresh = "kpi:views_refresh"
	// TaskCacheWarmup precomputes the default dashboard KPIs.
	TaskCacheWarmup = "kpi:cache_warmup"
)

// Warmup scopes.
const (
	ScopeMonth   = "month"
	ScopeRolling = "rolling"
)

// ViewsRefreshPayload selects the views to refresh; empty means the configured set.
type ViewsRefreshPayload struct {
	Views       []string  `json:"views,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewViewsRefreshTask constructs a refresh task.
func NewViewsRefreshTask(payload ViewsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskViewsRefresh, data,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
	), nil
}

// newTaskID returns the id given to manually enqueued tasks so they can be
// followed through the queue inspector.
func newTaskID() string {
	return uuid.NewString()
}

// CacheWarmupPayload describes which dashboard windows to precompute.
type CacheWarmupPayload struct {
	// Scope is ScopeMonth (current month to date) or ScopeRolling (last 30 days).
	Scope string `json:"scope"`
}

// NewCacheWarmupTask constructs a warmup task.
func NewCacheWarmupTask(scope string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheWarmupPayload{Scope: scope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data, asynq.MaxRetry(3)), nil
}
