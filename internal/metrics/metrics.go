// Package metrics records per-run loader metrics in a private Prometheus
// registry and can push them to a Pushgateway at the end of a run.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"

	pushTimeout = 10 * time.Second
)

// Recorder holds the loader's collectors.
type Recorder struct {
	reg          *prometheus.Registry
	tasks        *prometheus.CounterVec // loader_tasks_total
	rows         *prometheus.CounterVec // loader_rows_written_total
	taskDuration *prometheus.SummaryVec // loader_task_duration_seconds
	records      *prometheus.CounterVec // loader_records_total
}

// New registers the loader collectors in a fresh registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_tasks_total",
			Help: "Write tasks finished, by table and status.",
		}, []string{"table", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_rows_written_total",
			Help: "Rows reported as inserted by the store, by table.",
		}, []string{"table"}),
		taskDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "loader_task_duration_seconds",
			Help:       "Wall time of one write task, by table and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"table", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_records_total",
			Help: "Input records read, by kind (catalog, rating_events, entities).",
		}, []string{"kind"}),
	}
	r.reg.MustRegister(r.tasks, r.rows, r.taskDuration, r.records)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// TaskDone records one finished write task. rows is only counted on success.
func (r *Recorder) TaskDone(table string, rows int64, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusFailed
	} else {
		r.rows.WithLabelValues(table).Add(float64(rows))
	}
	r.tasks.WithLabelValues(table, status).Inc()
	r.taskDuration.WithLabelValues(table, status).Observe(d.Seconds())
}

// Records adds n input records of the given kind.
func (r *Recorder) Records(kind string, n int) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(kind).Add(float64(n))
}

// Push sends the registry to the Pushgateway at url, grouped by job and
// run_id. An empty url is a no-op.
func (r *Recorder) Push(url, job, runID string) error {
	if r == nil || url == "" {
		return nil
	}
	p := push.New(url, job).
		Gatherer(r.reg).
		Client(&http.Client{Timeout: pushTimeout})
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	return errors.Wrapf(p.Push(), "push metrics to %s", url)
}
