// Command refreshviews refreshes the KPI materialized views once, outside the
// worker schedule. Pass view names as arguments to refresh a subset.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pharmastats/pharmastats/internal/app"
	"github.com/pharmastats/pharmastats/internal/kpi"
	"github.com/pharmastats/pharmastats/internal/platform/cache"
	"github.com/pharmastats/pharmastats/internal/platform/db"
	"github.com/pharmastats/pharmastats/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 2, ApplicationName: "pharmastats-refreshviews"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	job := &jobs.ViewsRefreshJob{
		DB:      pool,
		Views:   cfg.KPIMaterializedViews,
		Timeout: cfg.KPIRefreshTimeout,
		Logger:  logger,
	}
	if cfg.KPICacheBackend == app.CacheBackendRedis {
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		job.Purger = kpi.NewRedisStore(client)
	}

	if err := job.Run(ctx, jobs.ViewsRefreshPayload{Views: os.Args[1:], RequestedBy: "cli"}); err != nil {
		logger.Error("refresh views", slog.Any("error", err))
		os.Exit(1)
	}
}
