package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pharmastats/pharmastats/internal/app"
	"github.com/pharmastats/pharmastats/internal/kpi"
	kpihttp "github.com/pharmastats/pharmastats/internal/kpi/http"
	"github.com/pharmastats/pharmastats/internal/observability"
	"github.com/pharmastats/pharmastats/internal/platform/cache"
	"github.com/pharmastats/pharmastats/internal/platform/db"
	"github.com/pharmastats/pharmastats/jobs"
)

var version = "dev"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("pharmastats", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "pharmastats-api",
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		SampleRatio:    cfg.TracingSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		ApplicationName: "pharmastats-api",
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		if cfg.KPICacheBackend == app.CacheBackendRedis {
			return err
		}
		logger.Warn("redis unavailable, admin endpoints disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	kpiCache, err := app.NewKPICache(cfg, redisClient, metrics)
	if err != nil {
		return err
	}
	repo := kpi.NewSQLRepository(db.NewSource(pool), logger, cfg.KPIQueryTimeout)
	service := kpi.NewService(repo, kpiCache, logger)
	kpiHandler := kpihttp.NewHandler(logger, service, cfg.KPIQueryTimeout)

	readiness := map[string]app.ReadinessCheck{
		"postgres": pool.Ping,
	}

	var adminHandler *jobs.Handler
	if redisClient != nil {
		readiness["redis"] = redisPing(redisClient)
	}
	if cfg.AdminEnabled && redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		adminHandler = jobs.NewHandler(client, inspector, logger, adminOptions(cfg)...)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Metrics:      metrics,
		KPIHandler:   kpiHandler,
		AdminHandler: adminHandler,
		Readiness:    readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("version", version),
			slog.String("cache_backend", cfg.KPICacheBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

// adminOptions turns warmup off when the worker cannot reach this process's cache.
func adminOptions(cfg *app.Config) []jobs.HandlerOption {
	if cfg.SharedCache() {
		return nil
	}
	return []jobs.HandlerOption{jobs.WithoutWarmup("KPI_CACHE_BACKEND=" + cfg.KPICacheBackend + " keeps entries per process; warmup needs redis")}
}

func redisPing(client *redis.Client) app.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
