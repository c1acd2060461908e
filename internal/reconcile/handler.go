package reconcile

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/inventory"
	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
)

// Handler exposes on-demand validation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers validation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/validate", h.handleValidate)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	filter, err := inventory.ParseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.ValidateAll(r.Context(), filter.SKUs)
	if err != nil {
		h.logger.Error("validate baselines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
