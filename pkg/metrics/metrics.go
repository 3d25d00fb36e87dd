package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. All Record/Set methods are
// safe to call on a nil *Metrics, which lets tests and tools run without a registry.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka / outbox metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
	OutboxPending        prometheus.Gauge
	OutboxRetries        *prometheus.CounterVec

	// MongoDB metrics
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Opname business metrics
	SessionsCreated    *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
	ScansRecorded      *prometheus.CounterVec
	BulkBatchSize      prometheus.Histogram
	LockRejections     *prometheus.CounterVec
	SnapshotSize       prometheus.Histogram

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "opname",
	}
}

// New creates a Metrics instance on its own registry.
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)
	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished events seen by the last outbox poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_retries_total", Help: "Outbox publish retries"},
		[]string{"service", "event_type"},
	)

	m.MongoDBOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB operations"},
		[]string{"service", "collection", "operation", "status"},
	)
	m.MongoDBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "collection", "operation"},
	)

	m.SessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "sessions_created_total", Help: "Reconciliation sessions created"},
		[]string{"service", "session_type"},
	)
	m.SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "session_transitions_total", Help: "Session status transitions"},
		[]string{"service", "to_status"},
	)
	m.ScansRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "scans_total", Help: "Scan observations by outcome"},
		[]string{"service", "mode", "outcome"},
	)
	m.BulkBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "bulk_scan_batch_lines",
		Help:        "Lines per bulk scan batch",
		Buckets:     []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.LockRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "lock_rejections_total", Help: "Rejected lock attempts by reason"},
		[]string{"service", "reason"},
	)
	m.SnapshotSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   ns,
		Name:        "snapshot_items",
		Help:        "Snapshot items per created session",
		Buckets:     prometheus.ExponentialBuckets(10, 4, 7),
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)
	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.OutboxRetries,
		m.MongoDBOperations,
		m.MongoDBOperationDuration,
		m.SessionsCreated,
		m.SessionTransitions,
		m.ScansRecorded,
		m.BulkBatchSize,
		m.LockRejections,
		m.SnapshotSize,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

func (m *Metrics) RecordOutboxRetry(eventType string) {
	if m == nil {
		return
	}
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, status(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordSessionCreated records a new session and the size of its snapshot
func (m *Metrics) RecordSessionCreated(sessionType string, snapshotItems int) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(m.serviceName, sessionType).Inc()
	m.SnapshotSize.Observe(float64(snapshotItems))
}

func (m *Metrics) RecordTransition(toStatus string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(m.serviceName, toStatus).Inc()
}

// RecordScan counts one classified scan line; mode is "single" or "bulk".
func (m *Metrics) RecordScan(mode, outcome string) {
	if m == nil {
		return
	}
	m.ScansRecorded.WithLabelValues(m.serviceName, mode, outcome).Inc()
}

func (m *Metrics) RecordBulkBatch(lines int) {
	if m == nil {
		return
	}
	m.BulkBatchSize.Observe(float64(lines))
}

func (m *Metrics) RecordLockRejection(reason string) {
	if m == nil {
		return
	}
	m.LockRejections.WithLabelValues(m.serviceName, reason).Inc()
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
