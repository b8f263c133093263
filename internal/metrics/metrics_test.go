package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/courseimport/internal/core"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

func TestObserveBatch(t *testing.T) {
	m := newTestMetrics()
	m.ObserveBatch("lessons", core.BatchResult{
		Processed: 3,
		Skipped:   1,
		Errors:    []string{"a", "b"},
		Actions:   map[core.Action]int{core.ActionInserted: 2, core.ActionReused: 1},
		Duration:  2 * time.Second,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("lessons", "inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("lessons", "reused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("lessons", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordErrors.WithLabelValues("lessons")))
}

func TestObserveOutcome(t *testing.T) {
	m := newTestMetrics()
	m.ObserveOutcome(core.Outcome{
		Policy:  "threshold",
		Success: false,
		Stats:   core.Stats{OrphanedLessons: 4, DroppedRows: 2, DurationSeconds: 1.5},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("threshold", "false", "false")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.orphaned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.droppedRows))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastRunSuccess))

	m.ObserveOutcome(core.Outcome{Policy: "threshold", Success: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lastRunSuccess))
}

func TestHandler(t *testing.T) {
	m := newTestMetrics()
	m.ObserveOutcome(core.Outcome{Policy: "zero-errors", Success: true})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `courseimport_runs_total{dry_run="false",policy="zero-errors",success="true"} 1`)
}
