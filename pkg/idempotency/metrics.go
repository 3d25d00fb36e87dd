package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts idempotency outcomes. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
}

// NewMetrics registers the idempotency collectors on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idempotency",
			Name:      "requests_total",
			Help:      "Keyed requests by outcome (hit, miss, mismatch, concurrent)",
		}, []string{"service", "method", "outcome"}),
		storageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "idempotency",
			Name:      "storage_errors_total",
			Help:      "Idempotency storage failures by operation",
		}, []string{"service", "operation"}),
	}
}

func (m *Metrics) record(service, method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(service, method, outcome).Inc()
}

func (m *Metrics) recordStorageError(service, operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(service, operation).Inc()
}
