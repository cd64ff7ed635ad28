package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pharmastats/pharmastats/internal/jobs"
	"github.com/pharmastats/pharmastats/internal/kpi"
)

// WarmupService is the subset of the KPI service precomputed by the warmup.
type WarmupService interface {
	GetPurchases(ctx context.Context, req kpi.FilterRequest) (kpi.PurchasesResult, error)
	GetSales(ctx context.Context, req kpi.FilterRequest) (kpi.SalesResult, error)
	GetMargin(ctx context.Context, req kpi.FilterRequest) (kpi.MarginResult, error)
	GetStock(ctx context.Context, req kpi.FilterRequest) (kpi.StockResult, error)
	GetNetworkHealth(ctx context.Context, req kpi.FilterRequest) (kpi.NetworkHealthResult, error)
}

// CacheWarmupJob pre-populates the KPI cache with the unfiltered network
// dashboard so the first visitor after a refresh does not pay for it.
type CacheWarmupJob struct {
	Service WarmupService
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(service WarmupService, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{
		Service: service,
		Timeout: 2 * time.Minute,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cache warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Scope == "" {
		payload.Scope = ScopeMonth
	}
	req, err := WarmupRequest(payload.Scope, j.now())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskCacheWarmup)
	logger := j.logger().With(slog.String("scope", payload.Scope),
		slog.String("start", req.DateRange.Start), slog.String("end", req.DateRange.End))
	logger.Info("starting cache warmup")
	started := time.Now()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	if err := j.warm(ctx, req); err != nil {
		logger.Error("cache warmup", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed cache warmup", slog.Duration("duration", time.Since(started)))
	return tracker.End(nil)
}

func (j *CacheWarmupJob) warm(ctx context.Context, req kpi.FilterRequest) error {
	if _, err := j.Service.GetPurchases(ctx, req); err != nil {
		return fmt.Errorf("purchases: %w", err)
	}
	if _, err := j.Service.GetSales(ctx, req); err != nil {
		return fmt.Errorf("sales: %w", err)
	}
	if _, err := j.Service.GetMargin(ctx, req); err != nil {
		return fmt.Errorf("margin: %w", err)
	}
	if _, err := j.Service.GetStock(ctx, req); err != nil {
		return fmt.Errorf("stock: %w", err)
	}
	if _, err := j.Service.GetNetworkHealth(ctx, req); err != nil {
		return fmt.Errorf("network health: %w", err)
	}
	return nil
}

// WarmupRequest builds the unfiltered request for a warmup scope. Month covers
// the first of the month through today; rolling covers the last 30 days.
func WarmupRequest(scope string, now time.Time) (kpi.FilterRequest, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var start time.Time
	switch scope {
	case ScopeMonth:
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	case ScopeRolling:
		start = today.AddDate(0, 0, -29)
	default:
		return kpi.FilterRequest{}, fmt.Errorf("cache warmup: unknown scope %q", scope)
	}
	return kpi.FilterRequest{
		DateRange: kpi.DateRange{
			Start: start.Format(time.DateOnly),
			End:   today.Format(time.DateOnly),
		},
	}, nil
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCacheWarmup))
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
