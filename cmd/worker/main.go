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

	"github.com/ecofacility/facility-erp/internal/app"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/closing"
	jobmetrics "github.com/ecofacility/facility-erp/internal/jobs"
	"github.com/ecofacility/facility-erp/internal/notifications"
	"github.com/ecofacility/facility-erp/internal/observability"
	"github.com/ecofacility/facility-erp/internal/platform/cache"
	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/pricing"
	"github.com/ecofacility/facility-erp/internal/revenue"
	"github.com/ecofacility/facility-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker needs Redis for the queue itself, so a failed ping is fatal here.
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

	metrics := observability.NewMetrics()

	revenueCache := revenue.NewCache(redisClient, cfg.DashboardCacheTTL).
		WithObserver(metrics.CacheObserver("dashboard"))
	businesses := business.NewRepository(pool)
	pricingService := pricing.NewService(pricing.NewRepository(pool), revenueCache, logger)
	revenueService := revenue.NewService(businesses, pricingService, revenue.NewRepository(pool), revenueCache, logger)
	closingService := closing.NewService(closing.NewRepository(pool), revenueService, revenueCache, logger)
	notificationService := notifications.NewService(
		notifications.NewRepository(pool),
		notifications.NewCache(redisClient, cfg.NotificationCacheTTL),
		logger,
	)

	handlers := &jobs.Jobs{
		Closings:      closingService,
		Notifications: notificationService,
		Dashboards:    revenueService,
		Logger:        logger,
		Metrics:       jobmetrics.NewMetrics(metrics.Registerer()),
	}

	schedule, err := jobs.Schedule()
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers:  handlers.Handlers(),
		Cron:      schedule,

		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: 30 * time.Second,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started", slog.Int("cron_entries", len(schedule)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
