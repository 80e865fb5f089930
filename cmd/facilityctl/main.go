package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecofacility/facility-erp/cmd/facilityctl/cli"
	"github.com/ecofacility/facility-erp/internal/app"
	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/closing"
	"github.com/ecofacility/facility-erp/internal/platform/cache"
	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/pricing"
	"github.com/ecofacility/facility-erp/internal/revenue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var (
		poolOnce sync.Once
		pool     *pgxpool.Pool
		poolErr  error
	)
	openPool := func(ctx context.Context) (*pgxpool.Pool, error) {
		poolOnce.Do(func() {
			pool, poolErr = db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
		})
		return pool, poolErr
	}
	defer func() {
		if pool != nil {
			pool.Close()
		}
	}()

	env := cli.Env{
		Jobs: func() (*cli.JobsCLI, error) {
			return cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}), nil
		},
		Closings: func(ctx context.Context) (cli.ClosingComputer, error) {
			p, err := openPool(ctx)
			if err != nil {
				return nil, err
			}
			// A nil cache skips the dashboard version bump when Redis is down.
			var dashboards *revenue.Cache
			if client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}); err == nil {
				dashboards = revenue.NewCache(client, cfg.DashboardCacheTTL)
			} else {
				logger.Warn("redis unavailable, dashboards not invalidated", slog.Any("error", err))
			}
			pricingService := pricing.NewService(pricing.NewRepository(p), dashboards, logger)
			revenueService := revenue.NewService(business.NewRepository(p), pricingService, revenue.NewRepository(p), dashboards, logger)
			return closing.NewService(closing.NewRepository(p), revenueService, dashboards, logger), nil
		},
		Tokens: func(ctx context.Context) (cli.TokenIssuer, error) {
			p, err := openPool(ctx)
			if err != nil {
				return nil, err
			}
			tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
			if err != nil {
				return nil, err
			}
			return auth.NewService(auth.NewRepository(p), tokens), nil
		},
	}

	if err := cli.NewRootCommand(env).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
