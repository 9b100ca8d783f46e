package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the sandbox. All Record methods are
// no-ops when metrics are disabled.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  prometheus.Gauge

	// Pipeline metrics
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lintIssues    *prometheus.CounterVec

	// Patch metrics
	patchResults      *prometheus.CounterVec
	forwardRecoveries prometheus.Counter
	changedPaths      *prometheus.CounterVec

	// Sink, event and error metrics
	sinkDeliveries *prometheus.CounterVec
	events         *prometheus.CounterVec
	errorsByCode   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of sandbox operations by outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of sandbox operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_operations",
				Help:      "Number of operations currently running",
			},
		),

		stageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_runs_total",
				Help:      "Total number of validation stage runs by outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of validation stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		lintIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lint_issues_total",
				Help:      "Total number of lint issues reported by severity",
			},
			[]string{"severity"},
		),

		patchResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patch_results_total",
				Help:      "Total number of per-path patch applications by result",
			},
			[]string{"result"},
		),
		forwardRecoveries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patch_forward_recoveries_total",
				Help:      "Total number of patch lines located by forward search",
			},
		),
		changedPaths: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changed_paths_total",
				Help:      "Total number of paths changed by the patch or the formatter",
			},
			[]string{"kind"},
		),

		sinkDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_sink_deliveries_total",
				Help:      "Total number of change notifications by outcome",
			},
			[]string{"outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of published events by type and level",
			},
			[]string{"type", "level"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.activeOperations,
		m.stageRuns,
		m.stageDuration,
		m.lintIssues,
		m.patchResults,
		m.forwardRecoveries,
		m.changedPaths,
		m.sinkDeliveries,
		m.events,
		m.errorsByCode,
	)

	return m, nil
}

// Registry exposes the private registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Operation Metrics

// RecordOperationStarted bumps the active operations gauge.
func (m *Metrics) RecordOperationStarted() {
	if m == nil || m.activeOperations == nil {
		return
	}
	m.activeOperations.Inc()
}

// RecordOperationCompleted records a finished operation.
func (m *Metrics) RecordOperationCompleted(operation, status string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.activeOperations.Dec()
}

// Pipeline Metrics

// RecordStage records one validation stage run.
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	if m == nil || m.stageRuns == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, outcome).Inc()
	if outcome != "skipped" {
		m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// RecordLintIssue counts a lint finding.
func (m *Metrics) RecordLintIssue(severity string) {
	if m == nil || m.lintIssues == nil {
		return
	}
	if severity == "" {
		severity = "unknown"
	}
	m.lintIssues.WithLabelValues(severity).Inc()
}

// Patch Metrics

// RecordPatchResult counts a per-path patch result (changed, unchanged,
// mismatch) and its forward recoveries.
func (m *Metrics) RecordPatchResult(result string, forwardRecoveries int) {
	if m == nil || m.patchResults == nil {
		return
	}
	m.patchResults.WithLabelValues(result).Inc()
	if forwardRecoveries > 0 {
		m.forwardRecoveries.Add(float64(forwardRecoveries))
	}
}

// RecordChangedPaths counts changed paths by kind (patch, fmt).
func (m *Metrics) RecordChangedPaths(kind string, n int) {
	if m == nil || m.changedPaths == nil || n <= 0 {
		return
	}
	m.changedPaths.WithLabelValues(kind).Add(float64(n))
}

// RecordSinkDelivery counts a change notification outcome.
func (m *Metrics) RecordSinkDelivery(outcome string) {
	if m == nil || m.sinkDeliveries == nil {
		return
	}
	m.sinkDeliveries.WithLabelValues(outcome).Inc()
}

// RecordEvent counts a published event. It is an EventSubscriber.
func (m *Metrics) RecordEvent(event Event) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(event.Type, event.Level).Inc()
}

// Error Metrics

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByCode == nil {
		return
	}
	m.errorsByCode.WithLabelValues(errorClass, errorCode).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Server returns an HTTP server exposing the metrics endpoint, or nil when
// metrics are disabled. The caller owns ListenAndServe and Shutdown.
func (m *Metrics) Server() *http.Server {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	return &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
