package baseline

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Handler exposes the baseline registry.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// MountRoutes registers baseline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleIntroduce)
	r.Post("/{id}/amend", h.handleAmend)
	r.Get("/events", h.handleEvents)
}

type introduceRequest struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	AsOf     string `json:"as_of"`
	Quantity int64  `json:"quantity"`
}

func (h *Handler) handleIntroduce(w http.ResponseWriter, r *http.Request) {
	var req introduceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := shared.ParseDate(req.AsOf)
	if err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	b, err := h.registry.Introduce(r.Context(), Input{Name: req.Name, SKU: req.SKU, AsOf: asOf, Quantity: req.Quantity})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.registry.Amend(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var skus []string
	if sku := r.URL.Query().Get("sku"); sku != "" {
		skus = []string{sku}
	}
	list, err := h.registry.List(r.Context(), skus)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []Baseline{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"baselines": list})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.registry.Events(r.Context(), r.URL.Query().Get("sku"), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if events == nil {
		events = []shared.ReconciliationEvent{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var drift interface{ Quantities() (int64, int64) }
	switch {
	case errors.As(err, &drift), errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotLineageHead):
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrSKURequired), errors.Is(err, ErrAsOfRequired), errors.Is(err, ErrReasonRequired):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	case errors.Is(err, ErrNoTrustedAnchor):
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnprocessable, err))
	default:
		h.logger.Error("baseline request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
