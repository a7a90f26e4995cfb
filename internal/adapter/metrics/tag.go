package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reset outcomes used as the "result" label.
const (
	ResetOK           = "ok"
	ResetTooSoon      = "too_soon"
	ResetStorageError = "storage_error"
)

// TagMetrics holds Prometheus metrics for the tag coordinator.
type TagMetrics struct {
	Resets              *prometheus.CounterVec
	Broadcasts          prometheus.Counter
	Subscribers         prometheus.Gauge
	SubscriberEvictions prometheus.Counter
}

// NewTagMetrics creates and registers coordinator metrics on the given registry.
func NewTagMetrics(reg prometheus.Registerer) *TagMetrics {
	m := &TagMetrics{
		Resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "resets_total",
			Help:      "Total number of reset attempts, by result.",
		}, []string{"result"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "broadcasts_total",
			Help:      "Total number of state broadcasts fanned out to subscribers.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "subscribers",
			Help:      "Number of currently registered subscribers.",
		}),
		SubscriberEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tag",
			Name:      "subscriber_evictions_total",
			Help:      "Total number of subscribers removed after a failed send.",
		}),
	}

	reg.MustRegister(m.Resets, m.Broadcasts, m.Subscribers, m.SubscriberEvictions)
	return m
}
