package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/lots"
	"github.com/odyssey-erp/stockrecon/internal/observability"
	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
	"github.com/odyssey-erp/stockrecon/internal/reconcile"
	"github.com/odyssey-erp/stockrecon/internal/reports"
	"github.com/odyssey-erp/stockrecon/internal/snapshot"
	"github.com/odyssey-erp/stockrecon/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pool             Pinger
	LedgerHandler    *inventory.Handler
	SnapshotHandler  *snapshot.Handler
	LotsHandler      *lots.Handler
	BaselineHandler  *baseline.Handler
	ReconcileHandler *reconcile.Handler
	ReportsHandler   *reports.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the API middleware stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool == nil {
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := params.Pool.Ping(ctx); err != nil {
			params.Logger.Warn("readiness check failed", slog.Any("error", err))
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	r.Route("/inventory", func(r chi.Router) {
		if params.SnapshotHandler != nil {
			params.SnapshotHandler.MountRoutes(r)
		}
		if params.LotsHandler != nil {
			params.LotsHandler.MountRoutes(r)
		}
	})
	r.Route("/baselines", func(r chi.Router) {
		if params.ReconcileHandler != nil {
			params.ReconcileHandler.MountRoutes(r)
		}
		if params.BaselineHandler != nil {
			params.BaselineHandler.MountRoutes(r)
		}
	})
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
