package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for regledger.
type Metrics struct {
	config MetricsConfig

	// Transaction metrics
	txnsStarted   prometheus.Counter
	txnsCompleted *prometheus.CounterVec
	txnAttempts   prometheus.Histogram
	txnDuration   *prometheus.HistogramVec
	occConflicts  *prometheus.CounterVec

	// Session metrics
	activeSessions prometheus.Gauge
	sessionWait    prometheus.Histogram

	// Workflow metrics
	workflowOutcomes *prometheus.CounterVec

	// Scan metrics
	tableScans  *prometheus.CounterVec
	scannedDocs *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		txnsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_started_total",
				Help:      "Total number of transaction attempts started",
			},
		),
		txnsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_completed_total",
				Help:      "Total number of units of work completed, by result",
			},
			[]string{"result"},
		),
		txnAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_attempts",
				Help:      "Number of attempts a unit of work needed",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
			},
		),
		txnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of units of work including retries, in seconds",
				Buckets:   buckets,
			},
			[]string{"result"},
		),
		occConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "occ_conflicts_total",
				Help:      "Total number of optimistic concurrency conflicts at commit",
			},
			[]string{"table"},
		),

		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of checked-out sessions",
			},
		),
		sessionWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_wait_seconds",
				Help:      "Time spent waiting for a session, in seconds",
				Buckets:   buckets,
			},
		),

		workflowOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_outcomes_total",
				Help:      "Total number of registration workflow runs, by outcome",
			},
			[]string{"workflow", "outcome"},
		),

		tableScans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "table_scans_total",
				Help:      "Total number of full table scans",
			},
			[]string{"table"},
		),
		scannedDocs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scanned_documents_total",
				Help:      "Total number of documents returned by table scans",
			},
			[]string{"table"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.txnsStarted,
		m.txnsCompleted,
		m.txnAttempts,
		m.txnDuration,
		m.occConflicts,
		m.activeSessions,
		m.sessionWait,
		m.workflowOutcomes,
		m.tableScans,
		m.scannedDocs,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// Registry returns the registry the metrics are registered with, or nil
// when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Transaction Metrics

// RecordTransactionStarted counts one transaction attempt.
func (m *Metrics) RecordTransactionStarted() {
	if m.txnsStarted == nil {
		return
	}
	m.txnsStarted.Inc()
}

// RecordTransactionCompleted records the result of a unit of work, the
// number of attempts it took and its total duration.
func (m *Metrics) RecordTransactionCompleted(result string, attempts int, duration time.Duration) {
	if m.txnsCompleted == nil {
		return
	}
	m.txnsCompleted.WithLabelValues(result).Inc()
	m.txnAttempts.Observe(float64(attempts))
	m.txnDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordConflict counts an optimistic concurrency conflict.
func (m *Metrics) RecordConflict(table string) {
	if m.occConflicts == nil {
		return
	}
	m.occConflicts.WithLabelValues(table).Inc()
}

// Session Metrics

// RecordSessionAcquired records a checked-out session and how long the
// caller waited for it.
func (m *Metrics) RecordSessionAcquired(wait time.Duration) {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionWait.Observe(wait.Seconds())
}

// RecordSessionReleased records a returned session.
func (m *Metrics) RecordSessionReleased() {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Dec()
}

// Workflow Metrics

// RecordWorkflowOutcome counts a workflow run by outcome.
func (m *Metrics) RecordWorkflowOutcome(workflow, outcome string) {
	if m.workflowOutcomes == nil {
		return
	}
	m.workflowOutcomes.WithLabelValues(workflow, outcome).Inc()
}

// Scan Metrics

// RecordTableScan records a full table scan and the documents it returned.
func (m *Metrics) RecordTableScan(table string, documents int) {
	if m.tableScans == nil {
		return
	}
	m.tableScans.WithLabelValues(table).Inc()
	m.scannedDocs.WithLabelValues(table).Add(float64(documents))
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
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
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It is a no-op
// when metrics are disabled or no listen address is configured. Serve
// errors are reported to onError.
func (m *Metrics) StartMetricsServer(onError func(error)) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
