// Package metrics provides Prometheus metrics for the refbox sync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the refbox service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Event Distribution Metrics
	eventsPublished *prometheus.CounterVec
	subscriberCount prometheus.Gauge
	subscriberDrops *prometheus.CounterVec
	replayServed    *prometheus.CounterVec
	replayMisses    *prometheus.CounterVec
	resyncs         *prometheus.CounterVec

	// Workflow Metrics
	transitions      *prometheus.CounterVec
	transitionErrors *prometheus.CounterVec

	// Scoring Metrics
	scoringLatency prometheus.Histogram
	scoringErrors  prometheus.Counter

	// Store Metrics
	storeConflicts prometheus.Counter

	// Field Metrics
	pendingTimers prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorsByComponent *prometheus.CounterVec

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "refbox",
		subsystem:        "sync",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	// Event Distribution Metrics
	m.eventsPublished = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_published_total",
			Help:      "Total number of versioned events published, by resource type",
		},
		[]string{"resource"},
	)

	m.subscriberCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscriber_count",
		Help:      "Current number of active event subscriptions",
	})

	m.subscriberDrops = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "subscriber_drops_total",
			Help:      "Total number of slow subscribers dropped with a resync signal",
		},
		[]string{"resource"},
	)

	m.replayServed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "replay_served_total",
			Help:      "Total number of subscriptions served from the replay ring",
		},
		[]string{"resource"},
	)

	m.replayMisses = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "replay_misses_total",
			Help:      "Total number of subscriptions the replay ring could not cover",
		},
		[]string{"resource"},
	)

	m.resyncs = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "resyncs_total",
			Help:      "Total number of full snapshot resyncs performed by replicas",
		},
		[]string{"resource"},
	)

	// Workflow Metrics
	m.transitions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "transitions_total",
			Help:      "Total number of accepted workflow transitions, by resource and target status",
		},
		[]string{"resource", "status"},
	)

	m.transitionErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "transition_errors_total",
			Help:      "Total number of rejected workflow transitions, by resource",
		},
		[]string{"resource"},
	)

	// Scoring Metrics
	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_latency_milliseconds",
		Help:      "Histogram of scoresheet scoring latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.scoringErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_errors_total",
		Help:      "Total number of scoresheet validation errors",
	})

	// Store Metrics
	m.storeConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_conflicts_total",
		Help:      "Total number of optimistic concurrency conflicts",
	})

	// Field Metrics
	m.pendingTimers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_timers",
		Help:      "Number of armed match cue timers",
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "Current memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "Histogram of garbage collection pause times in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// RecordEventPublished increments the published events counter.
func RecordEventPublished(resource string) {
	globalManager.eventsPublished.WithLabelValues(resource).Inc()
}

// UpdateSubscriberCount sets the current subscription count.
func UpdateSubscriberCount(count int) {
	globalManager.subscriberCount.Set(float64(count))
}

// RecordSubscriberDropped increments the dropped subscriber counter.
func RecordSubscriberDropped(resource string) {
	globalManager.subscriberDrops.WithLabelValues(resource).Inc()
}

// RecordReplayServed increments the replay hit counter.
func RecordReplayServed(resource string) {
	globalManager.replayServed.WithLabelValues(resource).Inc()
}

// RecordReplayMiss increments the replay miss counter.
func RecordReplayMiss(resource string) {
	globalManager.replayMisses.WithLabelValues(resource).Inc()
}

// RecordResync increments the snapshot resync counter.
func RecordResync(resource string) {
	globalManager.resyncs.WithLabelValues(resource).Inc()
}

// RecordTransition records an accepted workflow transition.
func RecordTransition(resource, status string) {
	globalManager.transitions.WithLabelValues(resource, status).Inc()
}

// RecordTransitionError records a rejected workflow transition.
func RecordTransitionError(resource string) {
	globalManager.transitionErrors.WithLabelValues(resource).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// RecordStoreConflict increments the concurrency conflict counter.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// UpdatePendingTimers sets the number of armed match cue timers.
func UpdatePendingTimers(count int) {
	globalManager.pendingTimers.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the current memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records a garbage collection pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
