package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	assert.NoError(t, m.Track("kpi:views_refresh").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("kpi:views_refresh").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("kpi:views_refresh", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("kpi:views_refresh", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("kpi:views_refresh")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("kpi:views_refresh")), 0.0)
}

func TestObserveViewRefresh(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveViewRefresh("mv_product_stats_daily", 3*time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(m.viewsRefresh))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.ObserveViewRefresh("v", time.Second)
}
