package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockrecon/internal/app"
	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/lots"
	"github.com/odyssey-erp/stockrecon/internal/observability"
	"github.com/odyssey-erp/stockrecon/internal/platform/cache"
	"github.com/odyssey-erp/stockrecon/internal/platform/db"
	"github.com/odyssey-erp/stockrecon/internal/reconcile"
	"github.com/odyssey-erp/stockrecon/internal/reports"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
	"github.com/odyssey-erp/stockrecon/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, current inventory cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	services, err := app.NewServices(cfg, dbpool, redisClient, jobMetrics, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             dbpool,
		LedgerHandler:    inventory.NewHandler(logger, services.Ledger),
		SnapshotHandler:  snapshot.NewHandler(logger, services.Snapshots),
		LotsHandler:      lots.NewHandler(logger, services.Lots),
		BaselineHandler:  baseline.NewHandler(logger, services.Baselines),
		ReconcileHandler: reconcile.NewHandler(logger, services.Reconcile),
		ReportsHandler:   reports.NewHandler(logger, services.Reports, services.Pipeline),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("lock_backend", cfg.LockBackend))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
}
