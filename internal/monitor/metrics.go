package monitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/t77yq/task-roster/internal/scheduler"
	"github.com/t77yq/task-roster/internal/storage"
)

// Metrics holds the roster's Prometheus collectors
type Metrics struct {
	// Engine metrics
	OccurrencesGeneratedTotal prometheus.Counter
	GenerationsTotal          *prometheus.CounterVec
	AssignmentsCreatedTotal   prometheus.Counter
	AssignmentsCompletedTotal prometheus.Counter
	OperationErrors           *prometheus.CounterVec

	// Extender metrics
	ExtenderRuns          *prometheus.CounterVec
	ExtenderDuration      prometheus.Histogram
	ExtenderTasksExtended prometheus.Counter
	ExtenderTasksFailed   prometheus.Counter
	ExtenderLastRun       prometheus.Gauge

	// Host metrics, sampled by MetricsCollector
	HostCPUPercent    prometheus.Gauge
	HostMemoryPercent prometheus.Gauge
	ProcessRSSBytes   prometheus.Gauge
}

var _ scheduler.Recorder = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		OccurrencesGeneratedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "roster_occurrences_generated_total",
			Help: "Total number of occurrences persisted by generation",
		}),
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roster_generations_total",
				Help: "Total number of generation passes by outcome (produced, empty, skipped)",
			},
			[]string{"outcome"},
		),
		AssignmentsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "roster_assignments_created_total",
			Help: "Total number of assignments created",
		}),
		AssignmentsCompletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "roster_assignments_completed_total",
			Help: "Total number of assignments completed",
		}),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roster_operation_errors_total",
				Help: "Total number of failed engine operations",
			},
			[]string{"operation", "kind"},
		),

		ExtenderRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roster_extender_runs_total",
				Help: "Total number of horizon extender runs",
			},
			[]string{"status"},
		),
		ExtenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "roster_extender_duration_seconds",
			Help:    "Horizon extender run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		ExtenderTasksExtended: factory.NewCounter(prometheus.CounterOpts{
			Name: "roster_extender_tasks_extended_total",
			Help: "Total number of tasks extended by the horizon extender",
		}),
		ExtenderTasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "roster_extender_tasks_failed_total",
			Help: "Total number of tasks the horizon extender failed to extend",
		}),
		ExtenderLastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roster_extender_last_run_timestamp_seconds",
			Help: "Unix time the horizon extender last finished",
		}),

		HostCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roster_host_cpu_percent",
			Help: "Host CPU utilisation in percent",
		}),
		HostMemoryPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roster_host_memory_percent",
			Help: "Host memory utilisation in percent",
		}),
		ProcessRSSBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "roster_process_rss_bytes",
			Help: "Resident set size of the roster process",
		}),
	}
}

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// Handler returns an HTTP handler for a specific registry
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// OccurrencesGenerated implements scheduler.Recorder
func (m *Metrics) OccurrencesGenerated(n int) {
	if n == 0 {
		m.GenerationsTotal.WithLabelValues("empty").Inc()
		return
	}
	m.GenerationsTotal.WithLabelValues("produced").Inc()
	m.OccurrencesGeneratedTotal.Add(float64(n))
}

// GenerationSkipped implements scheduler.Recorder
func (m *Metrics) GenerationSkipped() {
	m.GenerationsTotal.WithLabelValues("skipped").Inc()
}

// AssignmentsCreated implements scheduler.Recorder
func (m *Metrics) AssignmentsCreated(n int) {
	m.AssignmentsCreatedTotal.Add(float64(n))
}

// AssignmentCompleted implements scheduler.Recorder
func (m *Metrics) AssignmentCompleted() {
	m.AssignmentsCompletedTotal.Inc()
}

// OperationFailed implements scheduler.Recorder
func (m *Metrics) OperationFailed(op string, err error) {
	m.OperationErrors.WithLabelValues(op, errorKind(err)).Inc()
}

// ExtenderRun implements scheduler.Recorder
func (m *Metrics) ExtenderRun(status storage.RunStatus, d time.Duration, extended, failed int) {
	m.ExtenderRuns.WithLabelValues(string(status)).Inc()
	m.ExtenderDuration.Observe(d.Seconds())
	m.ExtenderTasksExtended.Add(float64(extended))
	m.ExtenderTasksFailed.Add(float64(failed))
	m.ExtenderLastRun.SetToCurrentTime()
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{scheduler.ErrInvalidRule, "invalid_rule"},
	{scheduler.ErrTaskNotFound, "task_not_found"},
	{scheduler.ErrNotRecurring, "not_recurring"},
	{scheduler.ErrUnknownUser, "unknown_user"},
	{scheduler.ErrNoUsers, "no_users"},
	{scheduler.ErrAlreadyAssigned, "already_assigned"},
	{scheduler.ErrNoPendingOccurrences, "no_pending_occurrences"},
	{scheduler.ErrAssignmentNotFound, "assignment_not_found"},
	{scheduler.ErrInvalidTask, "invalid_task"},
	{scheduler.ErrInvalidParameter, "invalid_parameter"},
	{scheduler.ErrTransactionTimeout, "timeout"},
	{scheduler.ErrConflict, "conflict"},
}

// errorKind keeps the label set bounded
func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
