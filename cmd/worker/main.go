package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pharmastats/pharmastats/internal/app"
	jobmetrics "github.com/pharmastats/pharmastats/internal/jobs"
	"github.com/pharmastats/pharmastats/internal/kpi"
	"github.com/pharmastats/pharmastats/internal/platform/cache"
	"github.com/pharmastats/pharmastats/internal/platform/db"
	"github.com/pharmastats/pharmastats/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		ApplicationName: "pharmastats-worker",
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	if !cfg.SharedCache() {
		logger.Warn("memory cache backend: API caches expire by TTL only, refresh purge stays local and warmup is disabled")
	}
	kpiCache, err := app.NewKPICache(cfg, redisClient, nil)
	if err != nil {
		logger.Error("init kpi cache", slog.Any("error", err))
		os.Exit(1)
	}
	repo := kpi.NewSQLRepository(db.NewSource(pool), logger, cfg.KPIQueryTimeout)
	service := kpi.NewService(repo, kpiCache, logger)

	metrics := jobmetrics.NewMetrics(nil)
	refreshJob := &jobs.ViewsRefreshJob{
		DB:      pool,
		Views:   cfg.KPIMaterializedViews,
		Purger:  service,
		Timeout: cfg.KPIRefreshTimeout,
		Logger:  logger,
		Metrics: metrics,
	}
	warmupJob := jobs.NewCacheWarmupJob(service, logger, metrics)

	handlers, cron, err := schedule(cfg, refreshJob, warmupJob)
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Any("views", cfg.KPIMaterializedViews))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// schedule lists the task handlers and cron entries. Warmup is only wired when
// the cache is shared with the API; a process-local cache would warm nothing.
func schedule(cfg *app.Config, refresh *jobs.ViewsRefreshJob, warmup *jobs.CacheWarmupJob) ([]jobs.TaskHandler, []jobs.CronRegistration, error) {
	refreshTask, err := jobs.NewViewsRefreshTask(jobs.ViewsRefreshPayload{RequestedBy: "cron"})
	if err != nil {
		return nil, nil, err
	}
	handlers := []jobs.TaskHandler{{Type: jobs.TaskViewsRefresh, Handler: refresh.Handle}}
	cron := []jobs.CronRegistration{{
		Spec:    cfg.KPIRefreshCron,
		Task:    refreshTask,
		Options: []asynq.Option{asynq.Timeout(cfg.KPIRefreshTimeout + time.Minute)},
	}}
	if !cfg.SharedCache() {
		return handlers, cron, nil
	}

	warmupTask, err := jobs.NewCacheWarmupTask(jobs.ScopeMonth)
	if err != nil {
		return nil, nil, err
	}
	handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskCacheWarmup, Handler: warmup.Handle})
	cron = append(cron, jobs.CronRegistration{Spec: cfg.KPIWarmupCron, Task: warmupTask})
	return handlers, cron, nil
}
