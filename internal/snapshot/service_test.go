package snapshot

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockrecon/internal/baseline"
	"github.com/odyssey-erp/stockrecon/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockrecon/internal/jobs"
	"github.com/odyssey-erp/stockrecon/internal/platform/cache"
	"github.com/odyssey-erp/stockrecon/internal/shared"
)

type fakeBaselines []baseline.Baseline

func (f fakeBaselines) List(context.Context, []string) ([]baseline.Baseline, error) {
	return f, nil
}

type fakeLedger []inventory.Transaction

func (f fakeLedger) Transactions(_ context.Context, filter inventory.Filter) ([]inventory.Transaction, error) {
	var out []inventory.Transaction
	for _, t := range f {
		if !filter.To.IsZero() && t.Date.After(filter.To) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type memoryStore struct {
	snaps    []Snapshot
	levels   map[string]Level
	reads    int
	replaced int
}

func (m *memoryStore) Replace(_ context.Context, _ shared.DateRange, snaps []Snapshot, levels []Level) error {
	m.snaps = append([]Snapshot(nil), snaps...)
	if m.levels == nil {
		m.levels = map[string]Level{}
	}
	for _, l := range levels {
		l.RollingAverage = m.levels[l.SKU].RollingAverage
		m.levels[l.SKU] = l
	}
	m.replaced++
	return nil
}

func (m *memoryStore) Annotate(_ context.Context, forecasts []Forecast, at time.Time) error {
	for _, f := range forecasts {
		l, ok := m.levels[f.SKU]
		if !ok {
			continue
		}
		l.RollingAverage, l.AlertLevel, l.UpdatedAt = f.RollingAverage, f.AlertLevel, at
		m.levels[f.SKU] = l
	}
	return nil
}

func (m *memoryStore) Current(context.Context) ([]Level, error) {
	m.reads++
	var out []Level
	for _, l := range m.levels {
		out = append(out, l)
	}
	return out, nil
}

func newTestService(t *testing.T, store *memoryStore) *Service {
	t.Helper()
	baselines, txs := scenarioLedger()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	return NewService(fakeBaselines(baselines), fakeLedger(txs), store, cache.NewJSONCache(client, "inventory", time.Minute), metrics, logger)
}

type tableDescriber map[string]string

func (d tableDescriber) Describe(sku string, qty int64) (string, string) {
	if qty < 1500 {
		return d[sku], "low"
	}
	return d[sku], "normal"
}

func TestServicePersistRefreshesCurrentView(t *testing.T) {
	store := &memoryStore{}
	svc := newTestService(t, store).WithDescriber(tableDescriber{"17612": "Parcel tape 48mm"})
	clock := time.Date(2025, time.November, 1, 6, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	res, err := svc.Compute(ctx, nil, shared.TrailingRange(day(time.October, 31), 32))
	require.NoError(t, err)
	levels, err := svc.Persist(ctx, res)
	require.NoError(t, err)
	require.Equal(t, []Level{{
		SKU:         "17612",
		ProductName: "Parcel tape 48mm",
		AsOf:        day(time.October, 31),
		Quantity:    1237,
		AlertLevel:  "low",
		UpdatedAt:   clock,
	}}, levels)
	require.Len(t, store.snaps, 32)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1237), current[0].Quantity)
	require.Nil(t, current[0].RollingAverage)
	_, err = svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.reads)

	avg := 700.0
	clock = clock.Add(time.Hour)
	require.NoError(t, svc.Annotate(ctx, []Forecast{{SKU: "17612", RollingAverage: &avg, AlertLevel: "low"}, {SKU: "17904", AlertLevel: "critical"}}))
	current, err = svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, store.reads)
	require.Len(t, current, 1)
	require.Equal(t, 700.0, *current[0].RollingAverage)
	require.Equal(t, clock, current[0].UpdatedAt)

	_, err = svc.Persist(ctx, res)
	require.NoError(t, err)
	current, err = svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, store.reads)
	require.NotNil(t, current[0].RollingAverage)
	require.Equal(t, 700.0, *current[0].RollingAverage)
}

func TestHandlerCurrentServesViewFields(t *testing.T) {
	store := &memoryStore{}
	svc := newTestService(t, store).WithDescriber(tableDescriber{"17612": "Parcel tape 48mm"})
	svc.now = func() time.Time { return time.Date(2025, time.November, 1, 6, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	res, err := svc.Compute(ctx, nil, shared.TrailingRange(day(time.October, 31), 32))
	require.NoError(t, err)
	_, err = svc.Persist(ctx, res)
	require.NoError(t, err)

	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/inventory", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"inventory":[{
		"sku":"17612",
		"product_name":"Parcel tape 48mm",
		"as_of":"2025-10-31T00:00:00Z",
		"current_quantity":1237,
		"rolling_average":null,
		"alert_level":"low",
		"last_updated":"2025-11-01T06:00:00Z"
	}]}`, rec.Body.String())
}

func TestHandlerSnapshots(t *testing.T) {
	svc := newTestService(t, &memoryStore{})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/inventory", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/snapshots?sku=17612&from=2025-10-30&to=2025-10-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `{"date":"2025-10-31","sku":"17612","bod":1251,"eod":1237}`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/snapshots?from=2025-09-01&to=2025-09-02", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
