// Package metrics exposes the Prometheus counters and histograms the
// orchestrator publishes on its /metrics endpoint: run lifecycle, node
// execution, and per-tool task counts and durations. Every recorder
// method is nil-safe so a Metrics built with collection disabled can be
// threaded through the engine and service without an extra nil check
// at every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's Prometheus collectors on a private
// registry, so process-wide default-registry state never leaks into
// tests that construct more than one Metrics instance.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsActive    prometheus.Gauge

	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec

	taskExecutions *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec

	checkpointsSaved *prometheus.CounterVec

	breakerTrips *prometheus.CounterVec
	breakerState *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics with all collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "run",
		Name:      "started_total",
		Help:      "Total number of workflow runs started",
	}, []string{"workflow_kind"})

	m.runsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "run",
		Name:      "completed_total",
		Help:      "Total number of workflow runs reaching a terminal status",
	}, []string{"workflow_kind", "status"})

	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "run",
		Name:      "duration_seconds",
		Help:      "Workflow run wall-clock duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
	}, []string{"workflow_kind"})

	m.runsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "run",
		Name:      "active",
		Help:      "Number of runs currently in RUNNING status",
	})

	m.nodeExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "node",
		Name:      "executions_total",
		Help:      "Total number of graph node executions",
	}, []string{"node", "status"})

	m.nodeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "node",
		Name:      "duration_seconds",
		Help:      "Graph node execution duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5min
	}, []string{"node"})

	m.taskExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "task",
		Name:      "executions_total",
		Help:      "Total number of tool adapter task executions",
	}, []string{"tool_id", "status"})

	m.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "task",
		Name:      "duration_seconds",
		Help:      "Tool adapter task execution duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
	}, []string{"tool_id"})

	m.checkpointsSaved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "checkpoint",
		Name:      "saved_total",
		Help:      "Total number of checkpoints persisted",
	}, []string{"node"})

	m.breakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "breaker",
		Name:      "trips_total",
		Help:      "Total number of times a tool's circuit breaker tripped open",
	}, []string{"tool_id"})

	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current circuit breaker state per tool (0=closed, 1=half_open, 2=open)",
	}, []string{"tool_id"})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests served",
	}, []string{"method", "route", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		m.runsStarted, m.runsCompleted, m.runDuration, m.runsActive,
		m.nodeExecutions, m.nodeDuration,
		m.taskExecutions, m.taskDuration,
		m.checkpointsSaved,
		m.breakerTrips, m.breakerState,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// RecordRunStarted increments the started counter and the active gauge.
func (m *Metrics) RecordRunStarted(workflowKind string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(workflowKind).Inc()
	m.runsActive.Inc()
}

// RecordRunCompleted decrements the active gauge and records the
// terminal status and total duration of a run.
func (m *Metrics) RecordRunCompleted(workflowKind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runsCompleted.WithLabelValues(workflowKind, status).Inc()
	m.runDuration.WithLabelValues(workflowKind).Observe(duration.Seconds())
}

// RecordNodeExecution records one graph node's outcome and duration.
func (m *Metrics) RecordNodeExecution(node, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.nodeExecutions.WithLabelValues(node, status).Inc()
	m.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// RecordTaskExecution records one tool adapter call's outcome and
// duration.
func (m *Metrics) RecordTaskExecution(toolID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskExecutions.WithLabelValues(toolID, status).Inc()
	m.taskDuration.WithLabelValues(toolID).Observe(duration.Seconds())
}

// RecordCheckpointSaved records a checkpoint persisted for node.
func (m *Metrics) RecordCheckpointSaved(node string) {
	if m == nil {
		return
	}
	m.checkpointsSaved.WithLabelValues(node).Inc()
}

// RecordBreakerTrip records a circuit breaker tripping open for toolID.
func (m *Metrics) RecordBreakerTrip(toolID string) {
	if m == nil {
		return
	}
	m.breakerTrips.WithLabelValues(toolID).Inc()
}

// SetBreakerState records a circuit breaker's current state as a gauge
// (0=closed, 1=half_open, 2=open) so dashboards can alert on sustained
// open state without diffing counters.
func (m *Metrics) SetBreakerState(toolID string, stateValue float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(toolID).Set(stateValue)
}

// RecordHTTPRequest records one HTTP request's outcome and duration.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests that want to
// scrape collected samples directly.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
