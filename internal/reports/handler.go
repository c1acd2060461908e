package reports

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockrecon/internal/platform/httpx"
	"github.com/odyssey-erp/stockrecon/internal/runlock"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Handler exposes report generation, run history and exports.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	pipeline *Pipeline
	now      func() time.Time
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service, pipeline *Pipeline) *Handler {
	return &Handler{logger: logger, service: service, pipeline: pipeline, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/runs", h.handleRuns)
	r.Post("/{kind}", h.handleGenerate)
	r.Get("/{kind}/{period}", h.handleArtifact)
	r.Get("/monthly/{period}/export.xlsx", h.handleMonthlyXLSX)
	r.Get("/monthly/{period}/export.csv", h.handleMonthlyCSV)
	r.Get("/weekly/{period}/export.csv", h.handleWeeklyCSV)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	asOf := shared.DateOf(h.now())
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		if asOf, err = shared.ParseDate(raw); err != nil {
			httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
			return
		}
	}
	run, err := h.pipeline.Run(r.Context(), kind, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload, err := h.service.Artifact(r.Context(), kind, run.PeriodKey)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"run": run, "report": payload})
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	var kind Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := ParseKind(raw)
		if err != nil {
			httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
			return
		}
		kind = k
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.Runs(r.Context(), kind, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
		return
	}
	payload, err := h.service.Artifact(r.Context(), kind, chi.URLParam(r, "period"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) handleMonthlyXLSX(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	report, err := h.service.MonthlyReport(r.Context(), period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	body, err := MonthlyXLSX(report)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "charges-"+period+".xlsx", body)
}

func (h *Handler) handleMonthlyCSV(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	report, err := h.service.MonthlyReport(r.Context(), period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := MonthlyCSV(&buf, report); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Attachment(w, "text/csv; charset=utf-8", "charges-"+period+".csv", buf.Bytes())
}

func (h *Handler) handleWeeklyCSV(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	report, err := h.service.WeeklyReport(r.Context(), period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := WeeklyCSV(&buf, report); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.Attachment(w, "text/csv; charset=utf-8", "weekly-"+period+".csv", buf.Bytes())
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runlock.ErrConcurrentRun):
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
	case errors.Is(err, ErrUnknownKind):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	case errors.Is(err, ErrNotGenerated), errors.Is(err, ErrDependencyBusy):
		w.Header().Set("Retry-After", "60")
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotGenerated, err))
	default:
		h.logger.Error("reports request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
