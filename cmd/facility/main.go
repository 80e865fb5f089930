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

	"cloud.google.com/go/storage"
	"github.com/hibiken/asynq"
	"google.golang.org/api/option"

	"github.com/ecofacility/facility-erp/internal/app"
	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/closing"
	"github.com/ecofacility/facility-erp/internal/documents"
	"github.com/ecofacility/facility-erp/internal/notifications"
	"github.com/ecofacility/facility-erp/internal/observability"
	"github.com/ecofacility/facility-erp/internal/photos"
	"github.com/ecofacility/facility-erp/internal/platform/cache"
	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/pricing"
	"github.com/ecofacility/facility-erp/internal/revenue"
	revenuehttp "github.com/ecofacility/facility-erp/internal/revenue/http"
	"github.com/ecofacility/facility-erp/jobs"
	"github.com/ecofacility/facility-erp/report"
)

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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: 5 * time.Minute})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		// Caches degrade to direct loads without Redis.
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(pool), tokens)
	guard := auth.Middleware{Service: authService, Logger: logger}
	authHandler := auth.NewHandler(logger, authService, guard)

	var revenueCache *revenue.Cache
	if redisClient != nil {
		revenueCache = revenue.NewCache(redisClient, cfg.DashboardCacheTTL).
			WithObserver(metrics.CacheObserver("dashboard"))
		if err := revenueCache.ListenForInvalidation(ctx); err != nil {
			logger.Warn("subscribe dashboard invalidation", slog.Any("error", err))
		}
	}

	var pricingInvalidator pricing.Invalidator
	var closingInvalidator closing.Invalidator
	if revenueCache != nil {
		pricingInvalidator = revenueCache
		closingInvalidator = revenueCache
	}

	businesses := business.NewRepository(pool)
	pricingService := pricing.NewService(pricing.NewRepository(pool), pricingInvalidator, logger)
	revenueService := revenue.NewService(businesses, pricingService, revenue.NewRepository(pool), revenueCache, logger)
	closingService := closing.NewService(closing.NewRepository(pool), revenueService, closingInvalidator, logger)

	notificationCache := notifications.NewCache(redisClient, cfg.NotificationCacheTTL).
		WithObserver(metrics.CacheObserver("notifications"))
	if err := notificationCache.Listen(ctx); err != nil {
		logger.Warn("subscribe notification invalidation", slog.Any("error", err))
	}
	notificationService := notifications.NewService(notifications.NewRepository(pool), notificationCache, logger)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	documentService := documents.NewService(businesses, pricingService, pdfClient, logger)

	var photoHandler *photos.Handler
	if cfg.GCSBucket != "" {
		var opts []option.ClientOption
		if cfg.GCSCredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GCSCredentialsJSON)))
		}
		gcs, err := storage.NewClient(ctx, opts...)
		if err != nil {
			logger.Error("init cloud storage", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = gcs.Close() }()
		photoService := photos.NewService(businesses, photos.NewRepository(pool), photos.NewGCSStore(gcs, cfg.GCSBucket), logger)
		photoHandler = photos.NewHandler(logger, photoService, guard)
	} else {
		logger.Warn("GCS_BUCKET not set, photo endpoints disabled")
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = inspector.Close() }()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             metrics,
		AuthHandler:         authHandler,
		RevenueHandler:      revenuehttp.NewHandler(logger, revenueService, guard),
		PricingHandler:      pricing.NewHandler(logger, pricingService, guard),
		ClosingHandler:      closing.NewHandler(logger, closingService, guard),
		NotificationHandler: notifications.NewHandler(logger, notificationService, guard),
		DocumentHandler:     documents.NewHandler(logger, documentService, guard),
		PhotoHandler:        photoHandler,
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
