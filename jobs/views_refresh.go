package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	jobmetrics "github.com/pharmastats/pharmastats/internal/jobs"
	"github.com/pharmastats/pharmastats/internal/platform/db"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

var errUnknownView = errors.New("views refresh: unknown view")

// CachePurger invalidates cached KPI results; *kpi.Service satisfies it.
type CachePurger interface {
	Purge(ctx context.Context) error
}

// ViewsRefreshJob refreshes the materialized views backing the KPI queries and
// purges the KPI cache once every view is fresh.
type ViewsRefreshJob struct {
	DB      db.Beginner
	Views   []string
	Purger  CachePurger
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes views refresh tasks.
func (j *ViewsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ViewsRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("views refresh: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if err := j.Run(ctx, payload); err != nil {
		if errors.Is(err, errUnknownView) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// Run refreshes the requested views, or every configured view when none are
// requested, then purges the KPI cache.
func (j *ViewsRefreshJob) Run(ctx context.Context, payload ViewsRefreshPayload) error {
	if j == nil || j.DB == nil {
		return errors.New("views refresh: handler not configured")
	}
	views, err := j.selectViews(payload.Views)
	if err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskViewsRefresh)
	logger := j.logger()
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	logger.Info("starting views refresh", slog.Any("views", views))

	for _, view := range views {
		if err := j.refresh(ctx, view); err != nil {
			logger.Error("refresh view", slog.String("view", view), slog.Any("error", err))
			return tracker.End(err)
		}
	}
	if j.Purger != nil {
		if err := j.Purger.Purge(ctx); err != nil {
			logger.Error("purge kpi cache", slog.Any("error", err))
			return tracker.End(err)
		}
	}
	logger.Info("completed views refresh", slog.Int("views", len(views)))
	return tracker.End(nil)
}

func (j *ViewsRefreshJob) refresh(ctx context.Context, view string) error {
	start := time.Now()
	stmt := "REFRESH MATERIALIZED VIEW CONCURRENTLY " + pgx.Identifier{view}.Sanitize()
	err := db.WithTx(ctx, j.DB, j.Timeout, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt)
		return err
	})
	if err != nil {
		return fmt.Errorf("views refresh: %s: %w", view, err)
	}
	j.metrics().ObserveViewRefresh(view, time.Since(start))
	return nil
}

// selectViews restricts a requested subset to the configured views.
func (j *ViewsRefreshJob) selectViews(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return j.Views, nil
	}
	allowed := make(map[string]struct{}, len(j.Views))
	for _, v := range j.Views {
		allowed[v] = struct{}{}
	}
	for _, v := range requested {
		if _, ok := allowed[v]; !ok {
			return nil, fmt.Errorf("%w %q", errUnknownView, v)
		}
	}
	return requested, nil
}

func (j *ViewsRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskViewsRefresh))
	}
	return slog.Default().With(slog.String("job", TaskViewsRefresh))
}

func (j *ViewsRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
