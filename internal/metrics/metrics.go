// Package metrics exposes import run counters in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/courseimport/internal/core"
)

const namespace = "courseimport"

// Metrics records batch and run outcomes. It implements core.Observer.
type Metrics struct {
	reg prometheus.Gatherer

	records       *prometheus.CounterVec
	recordErrors  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec

	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	orphaned       prometheus.Counter
	droppedRows    prometheus.Counter
	lastRunSuccess prometheus.Gauge
}

var _ core.Observer = (*Metrics)(nil)

// New registers the import metrics with a fresh registry that also carries
// the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the import metrics with reg and serves them
// from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: g,
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records handled by the upsert engine, by table and action.",
		}, []string{"table", "action"}),
		recordErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Records that failed to write, by table.",
		}, []string{"table"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of one upsert batch.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"table"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Judged import runs, by policy and result.",
		}, []string{"policy", "success", "dry_run"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full import run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		orphaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_lessons_total",
			Help:      "Lessons attached to the placeholder course.",
		}),
		droppedRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_rows_total",
			Help:      "Source rows dropped for lacking a transcription.",
		}),
		lastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "Whether the most recent judged run succeeded (1/0).",
		}),
	}
}

// ObserveBatch counts the records of one upsert batch.
func (m *Metrics) ObserveBatch(table string, res core.BatchResult) {
	for action, n := range res.Actions {
		m.records.WithLabelValues(table, string(action)).Add(float64(n))
	}
	if res.Skipped > 0 {
		m.records.WithLabelValues(table, "skipped").Add(float64(res.Skipped))
	}
	if n := len(res.Errors); n > 0 {
		m.recordErrors.WithLabelValues(table).Add(float64(n))
	}
	m.batchDuration.WithLabelValues(table).Observe(res.Duration.Seconds())
}

// ObserveOutcome records a judged run.
func (m *Metrics) ObserveOutcome(o core.Outcome) {
	m.runs.WithLabelValues(o.Policy, strconv.FormatBool(o.Success), strconv.FormatBool(o.Stats.DryRun)).Inc()
	m.runDuration.Observe(o.Stats.DurationSeconds)
	m.orphaned.Add(float64(o.Stats.OrphanedLessons))
	m.droppedRows.Add(float64(o.Stats.DroppedRows))
	if o.Success {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
