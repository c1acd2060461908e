package snapshot

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Handler exposes the current view and on-demand snapshots.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler constructs the snapshot handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers snapshot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/current", h.handleCurrent)
	r.Get("/snapshots", h.handleSnapshots)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Current(r.Context())
	if err != nil {
		h.logger.Error("current inventory", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if levels == nil {
		levels = []Level{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"inventory": levels})
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	filter, err := inventory.ParseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	today := shared.DateOf(h.now())
	if filter.To.IsZero() {
		filter.To = today
	}
	if filter.From.IsZero() {
		filter.From = filter.To
	}
	rng, err := shared.NewDateRange(filter.From, filter.To)
	if err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	res, err := h.service.Compute(r.Context(), filter.SKUs, rng)
	if err != nil {
		h.logger.Error("compute snapshots", slog.String("range", rng.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if len(res.Snapshots) == 0 && len(res.Failures) > 0 && errors.Is(res.Failures[0].Err, ErrMissingBaseline) {
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnprocessable, res.Failures[0].Err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"from":      rng.From.Format(shared.DateLayout),
		"to":        rng.To.Format(shared.DateLayout),
		"snapshots": nonNil(res.Snapshots),
		"failures":  nonNil(res.Failures),
		"alerts":    nonNil(res.Alerts),
		"movements": res.Movements,
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
