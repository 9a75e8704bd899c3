// Package metrics provides Prometheus metrics for the live event service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Live event orchestration
	lineupTransitions *prometheus.CounterVec
	actionResults     *prometheus.CounterVec
	reveals           *prometheus.CounterVec
	activeEvents      prometheus.Gauge

	// Votes and scores
	votesAccepted  prometheus.Counter
	votesDuplicate prometheus.Counter
	juryScores     *prometheus.CounterVec
	socialShares   prometheus.Counter
	rankingLatency prometheus.Histogram

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Change feed and client sync
	feedPublished    *prometheus.CounterVec
	feedDropped      *prometheus.CounterVec
	feedSubscribers  prometheus.Gauge
	syncApplied      *prometheus.CounterVec
	syncSkipped      *prometheus.CounterVec
	syncFetchErrors  *prometheus.CounterVec
	websocketClients prometheus.Gauge

	// Notification fan-out
	notifications        *prometheus.CounterVec
	notificationsDropped prometheus.Counter

	// Queues and workers
	queueCapacity           *prometheus.GaugeVec
	queueDepth              *prometheus.GaugeVec
	queueEnqueued           *prometheus.CounterVec
	queueDequeued           *prometheus.CounterVec
	queueEnqueueErrors      *prometheus.CounterVec
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors on the
// configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "chante",
		subsystem:        "live",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// SetEnabled turns recording through the package helpers on or off.
func SetEnabled(on bool) {
	globalManager.enabled.Store(on)
}

func enabled() bool {
	return globalManager.enabled.Load()
}

// SetRefreshInterval changes the period of the gauge refresh loops.
// Non-positive values are ignored.
func SetRefreshInterval(d time.Duration) {
	if d > 0 {
		globalManager.refreshInterval.Store(int64(d))
	}
}

// RefreshInterval is the period of the gauge refresh loops.
func RefreshInterval() time.Duration {
	return time.Duration(globalManager.refreshInterval.Load())
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.lineupTransitions = m.counterVec("lineup_transitions_total", "Lineup state transitions applied by the sequencer", "kind")
	m.actionResults = m.counterVec("control_room_actions_total", "Control room action outcomes", "action", "outcome")
	m.reveals = m.counterVec("winner_reveals_total", "Winner reveal protocol operations", "kind")
	m.activeEvents = m.gauge("active_events", "Live events not yet completed")

	m.votesAccepted = m.counter("public_votes_accepted_total", "Public votes stored")
	m.votesDuplicate = m.counter("public_votes_duplicate_total", "Public votes rejected by the one-vote-per-device rule")
	m.juryScores = m.counterVec("jury_scores_total", "Jury score submissions", "kind")
	m.socialShares = m.counter("social_shares_total", "Social share events recorded")
	m.rankingLatency = m.histogram("ranking_latency_milliseconds", "Time to compute a weighted ranking", m.histogramBuckets)

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Event state store operation latency", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Event state store failures", "op")

	m.feedPublished = m.counterVec("feed_published_total", "Row change notifications published", "table")
	m.feedDropped = m.counterVec("feed_dropped_total", "Row change notifications dropped for slow subscribers", "table")
	m.feedSubscribers = m.gauge("feed_subscribers", "Open change feed subscriptions")
	m.syncApplied = m.counterVec("sync_applied_total", "Read model updates that changed state", "watcher", "channel")
	m.syncSkipped = m.counterVec("sync_skipped_total", "Read model updates discarded as unchanged", "watcher", "channel")
	m.syncFetchErrors = m.counterVec("sync_fetch_errors_total", "Silent read failures in the client sync layer", "watcher")
	m.websocketClients = m.gauge("websocket_clients", "Connected websocket clients")

	m.notifications = m.counterVec("notifications_total", "Push notification deliveries by outcome", "outcome")
	m.notificationsDropped = m.counter("notifications_dropped_total", "Notifications dropped because the dispatch queue was full")

	m.queueCapacity = m.gaugeVec("queue_capacity", "Maximum queue capacity", "queue")
	m.queueDepth = m.gaugeVec("queue_depth", "Current queue depth", "queue")
	m.queueEnqueued = m.counterVec("queue_enqueue_total", "Messages enqueued", "queue")
	m.queueDequeued = m.counterVec("queue_dequeue_total", "Messages dequeued", "queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Enqueue failures", "queue", "reason")
	m.workerActiveCount = m.gauge("worker_active_count", "Notification workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Notification worker processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Notification worker errors")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Live event orchestration.

// RecordLineupTransition counts a sequencer transition (advance, absent, replay, reorder, insert).
func RecordLineupTransition(kind string) {
	if !enabled() {
		return
	}
	globalManager.lineupTransitions.WithLabelValues(kind).Inc()
}

// RecordActionResult counts a control room action outcome ("success" or an error kind).
func RecordActionResult(action, outcome string) {
	if !enabled() {
		return
	}
	globalManager.actionResults.WithLabelValues(action, outcome).Inc()
}

// RecordReveal counts reveal protocol operations ("reveal", "repeat", "reset").
func RecordReveal(kind string) {
	if !enabled() {
		return
	}
	globalManager.reveals.WithLabelValues(kind).Inc()
}

// UpdateActiveEvents sets the number of non-completed events.
func UpdateActiveEvents(n int) {
	if !enabled() {
		return
	}
	globalManager.activeEvents.Set(float64(n))
}

// Votes and scores.

// RecordVoteAccepted increments the stored public vote counter.
func RecordVoteAccepted() {
	if !enabled() {
		return
	}
	globalManager.votesAccepted.Inc()
}

// RecordVoteDuplicate increments the duplicate public vote counter.
func RecordVoteDuplicate() {
	if !enabled() {
		return
	}
	globalManager.votesDuplicate.Inc()
}

// RecordJuryScore counts a jury submission ("created", "updated", "reset").
func RecordJuryScore(kind string) {
	if !enabled() {
		return
	}
	globalManager.juryScores.WithLabelValues(kind).Inc()
}

// RecordSocialShare increments the social share counter.
func RecordSocialShare() {
	if !enabled() {
		return
	}
	globalManager.socialShares.Inc()
}

// RecordRankingLatency records ranking computation latency in milliseconds.
func RecordRankingLatency(latencyMs float64) {
	if !enabled() {
		return
	}
	globalManager.rankingLatency.Observe(latencyMs)
}

// Store.

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	if !enabled() {
		return
	}
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a store failure.
func RecordStoreError(op string) {
	if !enabled() {
		return
	}
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// Change feed and sync.

// RecordFeedPublished counts a published row change.
func RecordFeedPublished(table string) {
	if !enabled() {
		return
	}
	globalManager.feedPublished.WithLabelValues(table).Inc()
}

// RecordFeedDropped counts a row change a subscriber could not take.
func RecordFeedDropped(table string) {
	if !enabled() {
		return
	}
	globalManager.feedDropped.WithLabelValues(table).Inc()
}

// UpdateFeedSubscribers sets the number of open subscriptions.
func UpdateFeedSubscribers(n int) {
	if !enabled() {
		return
	}
	globalManager.feedSubscribers.Set(float64(n))
}

// RecordSyncApplied counts a read model update that changed state.
func RecordSyncApplied(watcher, channel string) {
	if !enabled() {
		return
	}
	globalManager.syncApplied.WithLabelValues(watcher, channel).Inc()
}

// RecordSyncSkipped counts a read model update that was structurally equal to the last one.
func RecordSyncSkipped(watcher, channel string) {
	if !enabled() {
		return
	}
	globalManager.syncSkipped.WithLabelValues(watcher, channel).Inc()
}

// RecordSyncFetchError counts a silent read failure.
func RecordSyncFetchError(watcher string) {
	if !enabled() {
		return
	}
	globalManager.syncFetchErrors.WithLabelValues(watcher).Inc()
}

// UpdateWebsocketClients sets the number of connected websocket clients.
func UpdateWebsocketClients(n int) {
	if !enabled() {
		return
	}
	globalManager.websocketClients.Set(float64(n))
}

// Notifications.

// RecordNotifications adds n deliveries with the given outcome (sent, failed, expired).
func RecordNotifications(outcome string, n int) {
	if n <= 0 || !enabled() {
		return
	}
	globalManager.notifications.WithLabelValues(outcome).Add(float64(n))
}

// RecordNotificationDropped counts a notification that never reached a worker.
func RecordNotificationDropped() {
	if !enabled() {
		return
	}
	globalManager.notificationsDropped.Inc()
}

// Queues and workers.

// UpdateQueueCapacity sets the capacity of a named queue.
func UpdateQueueCapacity(queue string, capacity int) {
	if !enabled() {
		return
	}
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// UpdateQueueDepth sets the depth of a named queue.
func UpdateQueueDepth(queue string, depth int) {
	if !enabled() {
		return
	}
	globalManager.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue(queue string) {
	if !enabled() {
		return
	}
	globalManager.queueEnqueued.WithLabelValues(queue).Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue(queue string) {
	if !enabled() {
		return
	}
	globalManager.queueDequeued.WithLabelValues(queue).Inc()
}

// RecordQueueEnqueueError counts an enqueue failure with its reason.
func RecordQueueEnqueueError(queue, reason string) {
	if !enabled() {
		return
	}
	globalManager.queueEnqueueErrors.WithLabelValues(queue, reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	if !enabled() {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !enabled() {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !enabled() {
		return
	}
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !enabled() {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !enabled() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !enabled() {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry every collector above is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
