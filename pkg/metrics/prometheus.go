// Package metrics provides Prometheus metrics for broutes route invocations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
	defaultNamespace       = "broutes"
	defaultSubsystem       = "client"
)

// defaultBuckets spans 1ms to about 16s; every histogram records milliseconds.
func defaultBuckets() []float64 {
	return prometheus.ExponentialBuckets(1, 2, 15)
}

// Manager manages all Prometheus metrics for route invocations.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Route request metrics
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	requestErrors     *prometheus.CounterVec
	requestsInFlight  prometheus.Gauge
	validationFailure *prometheus.CounterVec

	// Transport metrics
	rateLimitWait       prometheus.Histogram
	breakerState        *prometheus.GaugeVec
	breakerTrips        *prometheus.CounterVec
	transportCloneTotal prometheus.Counter

	// Queue metrics
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerJobsPerSecond     prometheus.Gauge

	// Job metrics
	jobsProcessed *prometheus.CounterVec
	jobsDuplicate prometheus.Counter

	// Error metrics
	errorRateByComponent *prometheus.CounterVec

	// HTTP metrics for the ops server
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var (
	globalManager *Manager     //nolint:gochecknoglobals // intentional global for singleton metrics manager
	globalMu      sync.RWMutex //nolint:gochecknoglobals // guards globalManager swaps in tests
)

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNamespace,
		subsystem:        defaultSubsystem,
		histogramBuckets: defaultBuckets(),
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

// SetGlobal replaces the manager used by the package-level recorders and
// returns the previous one.
func SetGlobal(m *Manager) *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := globalManager
	if m != nil {
		globalManager = m
	}
	return prev
}

func current() *Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if !globalManager.enabled {
		return nil
	}
	return globalManager
}

// Enabled reports whether the manager records anything.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval returns the gauge refresh interval used by background updaters.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Route request metrics
	m.requests = auto.NewCounterVec(
		m.counterOpts("route_requests_total", "Total number of route requests by route, method and status code"),
		[]string{"route", "method", "status_code"},
	)
	m.requestDuration = auto.NewHistogramVec(
		m.histogramOpts("route_request_duration_milliseconds", "Route request duration in milliseconds"),
		[]string{"route", "method"},
	)
	m.requestErrors = auto.NewCounterVec(
		m.counterOpts("route_request_errors_total", "Route requests that failed before a response was received"),
		[]string{"route", "method", "error_type"},
	)
	m.requestsInFlight = auto.NewGauge(m.gaugeOpts("route_requests_in_flight", "Route requests currently in flight"))
	m.validationFailure = auto.NewCounterVec(
		m.counterOpts("route_validation_failures_total", "Responses rejected by a validator"),
		[]string{"route", "validator"},
	)

	// Transport metrics
	m.rateLimitWait = auto.NewHistogram(m.histogramOpts("ratelimit_wait_milliseconds", "Time spent waiting on the outbound rate limiter"))
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("circuit_breaker_state", "Circuit breaker state (1 for the active state)"),
		[]string{"name", "state"},
	)
	m.breakerTrips = auto.NewCounterVec(
		m.counterOpts("circuit_breaker_trips_total", "Circuit breaker transitions to open"),
		[]string{"name", "reason"},
	)
	m.transportCloneTotal = auto.NewCounter(m.counterOpts("transport_clones_total", "Per-request transports built for TLS or proxy overrides"))

	// Queue metrics
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum job queue capacity"))
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the job queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of rejected enqueues"))

	// Worker metrics
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of active workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds"))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of failed jobs"))
	m.workerJobsPerSecond = auto.NewGauge(m.gaugeOpts("worker_jobs_per_second", "Average jobs processed per second by the pool"))

	// Job metrics
	m.jobsProcessed = auto.NewCounterVec(
		m.counterOpts("jobs_processed_total", "Jobs processed by outcome"),
		[]string{"outcome"},
	)
	m.jobsDuplicate = auto.NewCounter(m.counterOpts("jobs_duplicate_total", "Jobs skipped because their id was already seen"))

	// Error metrics
	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)

	// Ops server HTTP metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Ops server requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "Ops server request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// Route request metrics.

// RecordRouteRequest counts a completed route request.
func RecordRouteRequest(route, method, statusCode string) {
	if m := current(); m != nil {
		m.requests.WithLabelValues(route, method, statusCode).Inc()
	}
}

// RecordRouteRequestDuration records route request duration in milliseconds.
func RecordRouteRequestDuration(route, method string, durationMs float64) {
	if m := current(); m != nil {
		m.requestDuration.WithLabelValues(route, method).Observe(durationMs)
	}
}

// RecordRouteError counts a route request that failed without a response.
func RecordRouteError(route, method, errorType string) {
	if m := current(); m != nil {
		m.requestErrors.WithLabelValues(route, method, errorType).Inc()
	}
}

// AddRequestsInFlight adjusts the in-flight gauge by delta.
func AddRequestsInFlight(delta int) {
	if m := current(); m != nil {
		m.requestsInFlight.Add(float64(delta))
	}
}

// RecordValidationFailure counts a response rejected by a validator.
func RecordValidationFailure(route, validator string) {
	if m := current(); m != nil {
		m.validationFailure.WithLabelValues(route, validator).Inc()
	}
}

// Transport metrics.

// RecordRateLimitWait records time spent in the outbound limiter.
func RecordRateLimitWait(waitMs float64) {
	if m := current(); m != nil {
		m.rateLimitWait.Observe(waitMs)
	}
}

// SetCircuitBreakerState marks state as the active state for the named breaker.
func SetCircuitBreakerState(name, state string) {
	m := current()
	if m == nil {
		return
	}
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.breakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(name, reason string) {
	if m := current(); m != nil {
		m.breakerTrips.WithLabelValues(name, reason).Inc()
	}
}

// RecordTransportClone counts a per-request transport clone.
func RecordTransportClone() {
	if m := current(); m != nil {
		m.transportCloneTotal.Inc()
	}
}

// Queue metrics.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if m := current(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if m := current(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if m := current(); m != nil {
		m.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if m := current(); m != nil {
		m.queueEnqueueRate.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if m := current(); m != nil {
		m.queueDequeueRate.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if m := current(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

// Worker metrics.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if m := current(); m != nil {
		m.workerActiveCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := current(); m != nil {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if m := current(); m != nil {
		m.workerErrorRate.Inc()
	}
}

// UpdateWorkerJobsPerSecond sets the pool throughput gauge.
func UpdateWorkerJobsPerSecond(rate float64) {
	if m := current(); m != nil {
		m.workerJobsPerSecond.Set(rate)
	}
}

// Job metrics.

// RecordJobProcessed counts a finished job by outcome ("succeeded" or "failed").
func RecordJobProcessed(outcome string) {
	if m := current(); m != nil {
		m.jobsProcessed.WithLabelValues(outcome).Inc()
	}
}

// RecordJobDuplicate counts a job skipped by dedupe.
func RecordJobDuplicate() {
	if m := current(); m != nil {
		m.jobsDuplicate.Inc()
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := current(); m != nil {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// Ops server metrics.

// RecordHTTPRequest records an ops server request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := current(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records ops server request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := current(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := current(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if m := current(); m != nil {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
