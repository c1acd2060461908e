package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Handler wires HTTP endpoints for the ledger store.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.handleAppendTransactions)
	r.Get("/transactions", h.handleListTransactions)
	r.Post("/shipments", h.handleRecordShipments)
	r.Get("/shipments", h.handleListShipments)
}

type transactionRow struct {
	Date      string `json:"date"`
	SKU       string `json:"sku"`
	Quantity  int64  `json:"quantity"`
	Type      string `json:"type"`
	Lot       string `json:"lot"`
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

type shipmentRow struct {
	ShipDate       string `json:"ship_date"`
	OrderReference string `json:"order_reference"`
	SKU            string `json:"sku"`
	Lot            string `json:"lot"`
	Quantity       int64  `json:"quantity"`
	Packages       int    `json:"packages"`
}

func (h *Handler) handleAppendTransactions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transactions []transactionRow `json:"transactions"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inputs := make([]TransactionInput, 0, len(body.Transactions))
	var rejected []RowError
	for i, row := range body.Transactions {
		date, err := shared.ParseDate(row.Date)
		if err != nil {
			rejected = append(rejected, RowError{Row: i, Err: err})
			continue
		}
		inputs = append(inputs, TransactionInput{
			Date:      date,
			SKU:       row.SKU,
			Quantity:  row.Quantity,
			Type:      row.Type,
			Lot:       row.Lot,
			Reference: row.Reference,
			Note:      row.Note,
		})
	}
	if len(rejected) > 0 {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, &BatchError{Rows: rejected}))
		return
	}
	result, err := h.service.AppendTransactions(r.Context(), inputs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, statusFor(result), result)
}

func (h *Handler) handleRecordShipments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Shipments []shipmentRow `json:"shipments"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items := make([]ShipmentLineItem, 0, len(body.Shipments))
	var rejected []RowError
	for i, row := range body.Shipments {
		date, err := shared.ParseDate(row.ShipDate)
		if err != nil {
			rejected = append(rejected, RowError{Row: i, Err: err})
			continue
		}
		items = append(items, ShipmentLineItem{
			ShipDate:       date,
			OrderReference: row.OrderReference,
			SKU:            row.SKU,
			Lot:            row.Lot,
			Quantity:       row.Quantity,
			Packages:       row.Packages,
		})
	}
	if len(rejected) > 0 {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, &BatchError{Rows: rejected}))
		return
	}
	result, err := h.service.RecordShipments(r.Context(), items)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, statusFor(result), result)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txs, err := h.service.Transactions(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if txs == nil {
		txs = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) handleListShipments(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Shipments(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []ShipmentLineItem{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": items})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrConflictingEntry) {
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
		return
	}
	if IsRejection(err) {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.RespondError(w, httpx.Classify(httpx.ErrRequestTimeout, err))
		return
	}
	h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func statusFor(result AppendResult) int {
	if result.Inserted > 0 {
		return http.StatusCreated
	}
	return http.StatusOK
}

// ParseFilter reads sku, from and to query parameters. Multiple SKUs may be
// comma separated or repeated.
func ParseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	for _, raw := range q["sku"] {
		for _, sku := range strings.Split(raw, ",") {
			if sku = NormalizeSKU(sku); sku != "" {
				filter.SKUs = append(filter.SKUs, sku)
			}
		}
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from")); err != nil {
		return Filter{}, httpx.Classify(httpx.ErrValidation, err)
	}
	if filter.To, err = optionalDate(q.Get("to")); err != nil {
		return Filter{}, httpx.Classify(httpx.ErrValidation, err)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return Filter{}, httpx.Classify(httpx.ErrValidation, shared.ErrInvalidRange)
	}
	return filter, nil
}

func optionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return shared.ParseDate(raw)
}
