package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/pharmastats/pharmastats/internal/jobs"
)

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.statements = append(t.db.statements, sql)
	if t.db.failOn != "" && sql == t.db.failOn {
		return pgconn.CommandTag{}, errors.New("relation does not exist")
	}
	return pgconn.NewCommandTag("REFRESH MATERIALIZED VIEW"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct {
	mu         sync.Mutex
	statements []string
	commits    int
	failOn     string
}

func (d *fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{db: d}, nil
}

type countingPurger struct {
	calls int
	err   error
}

func (p *countingPurger) Purge(context.Context) error {
	p.calls++
	return p.err
}

func refreshTask(t *testing.T, payload ViewsRefreshPayload) *asynq.Task {
	t.Helper()
	task, err := NewViewsRefreshTask(payload)
	require.NoError(t, err)
	return task
}

func newRefreshJob(db *fakeDB, purger CachePurger) *ViewsRefreshJob {
	return &ViewsRefreshJob{
		DB:      db,
		Views:   []string{"mv_product_stats_daily", "mv_latest_product_prices"},
		Purger:  purger,
		Timeout: 10 * time.Minute,
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
}

func TestViewsRefreshRefreshesEveryViewThenPurges(t *testing.T) {
	db := &fakeDB{}
	purger := &countingPurger{}
	job := newRefreshJob(db, purger)

	require.NoError(t, job.Handle(context.Background(), refreshTask(t, ViewsRefreshPayload{})))

	assert.Equal(t, []string{
		"SET LOCAL statement_timeout = 600000",
		`REFRESH MATERIALIZED VIEW CONCURRENTLY "mv_product_stats_daily"`,
		"SET LOCAL statement_timeout = 600000",
		`REFRESH MATERIALIZED VIEW CONCURRENTLY "mv_latest_product_prices"`,
	}, db.statements)
	assert.Equal(t, 2, db.commits)
	assert.Equal(t, 1, purger.calls)
}

func TestViewsRefreshSubset(t *testing.T) {
	db := &fakeDB{}
	job := newRefreshJob(db, &countingPurger{})
	job.Timeout = 0

	task := refreshTask(t, ViewsRefreshPayload{Views: []string{"mv_latest_product_prices"}, RequestedBy: "ops"})
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []string{`REFRESH MATERIALIZED VIEW CONCURRENTLY "mv_latest_product_prices"`}, db.statements)
}

func TestViewsRefreshRejectsUnknownView(t *testing.T) {
	db := &fakeDB{}
	job := newRefreshJob(db, &countingPurger{})

	task := refreshTask(t, ViewsRefreshPayload{Views: []string{"pg_authid; DROP TABLE x"}})
	err := job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, db.statements)
}

func TestViewsRefreshFailureKeepsCache(t *testing.T) {
	db := &fakeDB{failOn: `REFRESH MATERIALIZED VIEW CONCURRENTLY "mv_product_stats_daily"`}
	purger := &countingPurger{}
	job := newRefreshJob(db, purger)

	err := job.Handle(context.Background(), refreshTask(t, ViewsRefreshPayload{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mv_product_stats_daily")
	assert.Zero(t, purger.calls)
	assert.Zero(t, db.commits)
}

func TestViewsRefreshPurgeError(t *testing.T) {
	purger := &countingPurger{err: errors.New("redis down")}
	job := newRefreshJob(&fakeDB{}, purger)
	assert.Error(t, job.Handle(context.Background(), refreshTask(t, ViewsRefreshPayload{})))
}

func TestViewsRefreshMalformedPayloadSkipsRetry(t *testing.T) {
	job := newRefreshJob(&fakeDB{}, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskViewsRefresh, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestViewsRefreshPayloadRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	task := refreshTask(t, ViewsRefreshPayload{RequestedBy: "cron", RequestedAt: at})
	assert.Equal(t, TaskViewsRefresh, task.Type())

	var decoded ViewsRefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "cron", decoded.RequestedBy)
	assert.True(t, at.Equal(decoded.RequestedAt))
}
