package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/catalog"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/lots"
	"github.com/odyssey-erp/stockrecon/internal/platform/cache"
	"github.com/odyssey-erp/stockrecon/internal/reconcile"
	"github.com/odyssey-erp/stockrecon/internal/reports"
	"github.com/odyssey-erp/stockrecon/internal/rolling"
	"github.com/odyssey-erp/stockrecon/internal/runlock"
	"github.com/odyssey-erp/stockrecon/internal/shared"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
)

const currentCacheTTL = 10 * time.Minute

// Services holds the domain services shared by the API server and worker.
type Services struct {
	Catalog   *catalog.Catalog
	Ledger    *inventory.Service
	Baselines *baseline.Registry
	Snapshots *snapshot.Service
	Lots      *lots.Service
	Rolling   *rolling.Service
	Reconcile *reconcile.Service
	Reports   *reports.Service
	Pipeline  *reports.Pipeline
}

// NewServices builds every service over the given stores. A nil redis
// client disables the current-inventory cache; the lock backend must then
// be postgres.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *jobmetrics.Metrics, logger *slog.Logger) (*Services, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	ledger := inventory.NewService(inventory.NewRepository(pool), logger)
	reconciler := reconcile.NewService(baseline.NewRepository(pool), ledger, cfg.DriftTolerance, metrics, logger)
	registry := baseline.NewRegistry(baseline.NewRepository(pool), reconciler, shared.NewEventLog(pool), logger)

	var currentCache *cache.JSONCache
	if redisClient != nil {
		currentCache = cache.NewJSONCache(redisClient, "inventory", currentCacheTTL)
	}
	snapshots := snapshot.NewService(baseline.NewRepository(pool), ledger, snapshot.NewRepository(pool), currentCache, metrics, logger).
		WithDescriber(reports.ViewDescriber{Catalog: cat})
	roll := rolling.NewService(rolling.NewRepository(pool), ledger, rolling.Settings{
		LookbackWeeks: cat.Rolling.LookbackWeeks,
		MinWeeks:      cat.Rolling.MinWeeks,
	}, logger)

	reportStore := reports.NewRepository(pool)
	reportService := reports.NewService(reportStore, ledger, snapshots, roll, cat, reports.Settings{
		WindowDays:     cfg.ReportWindowDays,
		MonthlyTimeout: cfg.ReportMonthlyTimeout,
	}, logger)

	locker, err := newLocker(cfg, pool, redisClient)
	if err != nil {
		return nil, err
	}
	pipeline, err := reports.NewPipeline(reportService.Steps(), reports.DefaultDependencies(), reportStore, locker, metrics, logger)
	if err != nil {
		return nil, err
	}
	pipeline.WithTimeout(cfg.RunTimeout())

	return &Services{
		Catalog:   cat,
		Ledger:    ledger,
		Baselines: registry,
		Snapshots: snapshots,
		Lots:      lots.NewService(ledger, logger),
		Rolling:   roll,
		Reconcile: reconciler,
		Reports:   reportService,
		Pipeline:  pipeline,
	}, nil
}

func newLocker(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client) (runlock.Locker, error) {
	switch cfg.LockBackend {
	case LockBackendPostgres:
		return runlock.NewPostgresLocker(pool, cfg.LockTTL), nil
	case LockBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("lock backend %s requires REDIS_ADDR", LockBackendRedis)
		}
		return runlock.NewRedisLocker(redisClient, cfg.LockTTL), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
}
