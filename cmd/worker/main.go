// Package main provides the worker application entry point.
//
// The binary runs the operational shell of a queue worker: the health and
// metrics HTTP surface plus the periodic recovery sweeper. Task execution
// itself is embedded by orchestrator processes through the usecase package;
// this process owns the instance identity they report under.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/esurv/flowqueue/internal/adapter/httpserver"
	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/adapter/repo/postgres"
	"github.com/esurv/flowqueue/internal/app"
	"github.com/esurv/flowqueue/internal/config"
	"github.com/esurv/flowqueue/internal/domain"
	"github.com/esurv/flowqueue/internal/health"
	"github.com/esurv/flowqueue/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv), slog.Bool("distributed_enabled", cfg.DistributedEnabled))

	pool, err := postgres.NewPool(ctx, cfg.DBURL, postgres.PoolSettings{
		MaxConns:        cfg.DBMaxConns,
		MaxConnIdleTime: cfg.DBConnIdleTime,
	})
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	queueRepo := postgres.NewQueueRepo(pool)
	recoveryRepo := postgres.NewRecoveryRepo(pool)

	worker := usecase.NewWorker(queueRepo, usecase.WorkerConfig{
		BatchSize:      cfg.BatchSize,
		MaxBatchSize:   cfg.MaxBatchSize,
		MaxRetries:     cfg.MaxRetries,
		CleanupTimeout: cfg.CleanupTimeout(),
		Enabled:        cfg.DistributedEnabled,
		Retry: domain.RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			MinWait:     cfg.RetryMinWait,
			MaxWait:     cfg.RetryMaxWait,
			Jitter:      cfg.RetryJitter,
		},
	})
	slog.Info("worker identity assigned", slog.String("instance_id", worker.InstanceID()))

	statusRepo := postgres.NewStatusRepo(pool, worker.InstanceID())

	monitor := health.NewMonitor(health.NewPoolChecker(pool), statusRepo, worker.InstanceID(), health.MonitorConfig{})
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		monitor.AddSecondary("redis", health.NewRedisChecker(client))
	}

	flows, err := config.LoadFlowRegistry(cfg.FlowsFile)
	if err != nil {
		slog.Error("flow registry load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if len(flows.Flows) > 0 {
		slog.Info("flow registry loaded", slog.Any("flows", flows.Names()))
	}

	sweeper := app.NewRecoverySweeper(recoveryRepo, flows.Names(), cfg.SweepInterval, cfg.CleanupTimeout(), cfg.MaxRetries)
	go sweeper.Run(ctx)

	router := app.BuildRouter(cfg, httpserver.NewServer(monitor))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
	go func() {
		slog.Info("health server listening", slog.Int("port", cfg.HealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown failed", slog.Any("error", err))
	}
}
