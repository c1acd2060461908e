package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for report runs and reconciliation
// signals.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	negative  *prometheus.CounterVec
	drift     *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddConflict counts a run refused because another held the lock.
func (m *Metrics) AddConflict(job string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(job).Inc()
}

// AddNegativeInventory counts days that closed below zero for sku.
func (m *Metrics) AddNegativeInventory(sku string, days int) {
	if m == nil || days <= 0 {
		return
	}
	m.negative.WithLabelValues(sku).Add(float64(days))
}

// AddDrift counts a baseline found not derivable from its predecessor.
func (m *Metrics) AddDrift(sku string) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(sku).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockrecon_jobs_total",
		Help: "Total report and validation runs partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockrecon_jobs_failures_total",
		Help: "Total failed runs.",
	}, []string{"job"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockrecon_jobs_conflicts_total",
		Help: "Runs refused because the same report type was already running.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockrecon_job_duration_seconds",
		Help:    "Duration in seconds of report runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	negative := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockrecon_negative_inventory_days_total",
		Help: "Snapshot days that closed with negative inventory.",
	}, []string{"sku"})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockrecon_baseline_drift_total",
		Help: "Baselines found not derivable from the ledger.",
	}, []string{"sku"})
	registerer.MustRegister(runs, failures, conflicts, duration, negative, drift)
	return &Metrics{runs: runs, failures: failures, conflicts: conflicts, duration: duration, negative: negative, drift: drift}
}
