package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockrecon/internal/observability"
	_ "github.com/odyssey-erp/stockrecon/testing"
)

func validConfig() *Config {
	return &Config{
		AppEnv:               "development",
		AppRequestTimeout:    time.Second,
		LockBackend:          LockBackendRedis,
		LockTTL:              2 * time.Minute,
		ReportWindowDays:     32,
		ReportMonthlyTimeout: time.Minute,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.LockBackend = "etcd"
	require.ErrorContains(t, cfg.Validate(), "lock backend")

	cfg = validConfig()
	cfg.ReportWindowDays = 0
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DriftTolerance = -1
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.LockTTL = 10 * time.Minute
	require.Equal(t, 9*time.Minute, cfg.RunTimeout())
	cfg.ReportMonthlyTimeout = 9 * time.Minute
	require.ErrorContains(t, cfg.Validate(), "run timeout")
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LOCK_BACKEND", LockBackendPostgres)
	t.Setenv("REPORT_WINDOW_DAYS", "14")
	t.Setenv("CRON_REPORT_DAILY", "0 1 * * *")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, LockBackendPostgres, cfg.LockBackend)
	require.Equal(t, 14, cfg.ReportWindowDays)
	require.Equal(t, "0 1 * * *", cfg.CronDaily)

	t.Setenv("LOCK_BACKEND", "zookeeper")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	require.True(t, InTestMode())

	for raw, want := range map[string]bool{"1": true, " true ": true, "0": false, "off": false, "": false} {
		t.Setenv(TestModeEnv, raw)
		require.Equal(t, want, InTestMode(), raw)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := validConfig()
	cfg.LogFormat = "json"
	newLogger(cfg, &buf).Info("hello", slog.String("sku", "17612"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "stockrecon", entry["service"])
	require.Equal(t, "development", entry["env"])
	require.Equal(t, "17612", entry["sku"])
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestRouterHealthAndReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := []struct {
		name   string
		pinger Pinger
		want   int
	}{
		{name: "ready", pinger: stubPinger{}, want: http.StatusOK},
		{name: "database down", pinger: stubPinger{err: errors.New("dial tcp: refused")}, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(RouterParams{Logger: logger, Config: validConfig(), Pool: tc.pinger, Metrics: observability.NewMetrics()})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.Equal(t, tc.want, rec.Code)

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			require.Contains(t, rec.Body.String(), "stockrecon_http_requests_total")
		})
	}
}
