package lots

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
)

// Handler exposes the lot-remaining report.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers lot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots", h.handleRemaining)
}

func (h *Handler) handleRemaining(w http.ResponseWriter, r *http.Request) {
	filter, err := inventory.ParseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf := filter.To
	if asOf.IsZero() {
		asOf = h.now()
	}
	rep, err := h.service.Remaining(r.Context(), filter.SKUs, asOf)
	if err != nil {
		h.logger.Error("lot report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if rep.Balances == nil {
		rep.Balances = []Balance{}
	}
	if rep.Failures == nil {
		rep.Failures = []ShipmentFailure{}
	}
	if rep.Attributions == nil {
		rep.Attributions = []Attribution{}
	}
	httpx.JSON(w, http.StatusOK, rep)
}
