package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("report_daily").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("report_daily").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("report_daily", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("report_daily", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("report_daily")))
}

func TestSignalsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddNegativeInventory("17612", 3)
	m.AddNegativeInventory("17612", 0)
	m.AddDrift("17612")
	m.AddConflict("report_monthly")

	require.Equal(t, 3.0, testutil.ToFloat64(m.negative.WithLabelValues("17612")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.drift.WithLabelValues("17612")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("report_monthly")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddDrift("x")
	m.AddConflict("x")
	require.NoError(t, m.Track("x").End(nil))
}
