package metrics

import "github.com/prometheus/client_golang/prometheus"

// StorageMetrics holds Prometheus metrics for the durable tag store.
type StorageMetrics struct {
	Operations          *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
}

// NewStorageMetrics creates and registers storage metrics on the given registry.
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	m := &StorageMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage operations, by backend, operation and status.",
		}, []string{"backend", "operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage operations in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"backend", "operation"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"component"}),
	}

	reg.MustRegister(m.Operations, m.OperationDuration, m.CircuitBreakerState)
	return m
}

// Observe records one storage operation.
func (m *StorageMetrics) Observe(backend, operation string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(backend, operation, status).Inc()
	m.OperationDuration.WithLabelValues(backend, operation).Observe(seconds)
}
