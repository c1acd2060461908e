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

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockrecon/internal/app"
	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/observability"
	"github.com/odyssey-erp/stockrecon/internal/platform/cache"
	"github.com/odyssey-erp/stockrecon/internal/platform/db"
	"github.com/odyssey-erp/stockrecon/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	services, err := app.NewServices(cfg, pool, redisClient, jobMetrics, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	reportJob := jobs.NewReportJob(services.Pipeline, logger)
	validateJob := jobs.NewValidateJob(services.Reconcile, logger, jobMetrics)

	schedule := jobs.Schedule{
		Daily:    cfg.CronDaily,
		Weekly:   cfg.CronWeekly,
		Monthly:  cfg.CronMonthly,
		Validate: cfg.CronValidate,
	}
	cron, err := schedule.Registrations()
	if err != nil {
		logger.Error("build cron schedule", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReportDaily, Handler: reportJob.Handle},
			{Type: jobs.TaskReportWeekly, Handler: reportJob.Handle},
			{Type: jobs.TaskReportMonthly, Handler: reportJob.Handle},
			{Type: jobs.TaskBaselineValidate, Handler: validateJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	mux := chi.NewRouter()
	mux.Handle("/metrics", metrics.Handler())
	mux.Route("/jobs", jobs.NewHandler(inspector, nil, logger).MountRoutes)
	server := &http.Server{Addr: cfg.WorkerAddr, Handler: mux, ReadTimeout: cfg.AppReadTimeout}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerAddr), slog.Int("cron_entries", len(cron)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker metrics shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
