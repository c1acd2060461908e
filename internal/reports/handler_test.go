package reports

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestRouter(t *testing.T) (http.Handler, fixture, *Pipeline) {
	t.Helper()
	f := newFixture(t)
	p, err := NewPipeline(f.service.Steps(), DefaultDependencies(), f.store, newLocker(t), nil, nil)
	require.NoError(t, err)
	h := NewHandler(slog.Default(), f.service, p)
	h.now = func() time.Time { return day(time.October, 31).Add(18 * time.Hour) }
	r := chi.NewRouter()
	r.Route("/reports", h.MountRoutes)
	return r, f, p
}

func TestHandlerGenerateMonthly(t *testing.T) {
	router, f, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/monthly", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Run    Run           `json:"run"`
		Report MonthlyReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, StatusSucceeded, body.Run.Status)
	require.Equal(t, "490.60", body.Report.Total.StringFixed(2))
	require.Equal(t, []Status{StatusSucceeded}, f.store.statuses(KindDaily))
	require.Equal(t, []Status{StatusSucceeded}, f.store.statuses(KindWeekly))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/runs?kind=monthly", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"period_key":"2025-10"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/monthly/2025-10/export.csv", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\r\n")
	require.Len(t, lines, 33)
	require.Equal(t, "Date,Orders,Packages,Pallets,Charge", lines[0])
	require.Equal(t, "2025-10-01,0,0,29,18.85", lines[1])
	require.Equal(t, "Total 2025-10,3,6,740,490.60", lines[32])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/monthly/2025-10/export.xlsx", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	book, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	total, err := book.GetCellValue(monthlySheet, "D33")
	require.NoError(t, err)
	require.Equal(t, "740", total)
}

func TestHandlerNotGenerated(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/monthly/2025-09", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "60", rr.Header().Get("Retry-After"))
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports/weekly/2025-W44/export.csv", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlerValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/quarterly", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/daily?as_of=31-10-2025", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerConcurrentRunIsConflict(t *testing.T) {
	f := newFixture(t)
	locker := newLocker(t)
	p, err := NewPipeline(f.service.Steps(), DefaultDependencies(), f.store, locker, nil, nil)
	require.NoError(t, err)
	h := NewHandler(slog.Default(), f.service, p)
	r := chi.NewRouter()
	r.Route("/reports", h.MountRoutes)

	lease, err := locker.Acquire(context.Background(), string(KindDaily))
	require.NoError(t, err)
	defer func() { _ = lease.Release(context.Background()) }()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/daily?as_of=2025-10-31", nil))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "already running")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reports/weekly?as_of=2025-10-31", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "60", rr.Header().Get("Retry-After"))
	require.Contains(t, rr.Body.String(), "dependency is being generated")
}
