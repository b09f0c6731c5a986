package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatcherMetrics holds Prometheus metrics for asynchronous log delivery.
type DispatcherMetrics struct {
	Forwarded      prometheus.Counter
	Failures       prometheus.Counter
	BreakerDropped prometheus.Counter
	BreakerState   prometheus.Gauge
}

// NewDispatcherMetrics creates dispatcher metrics under namespace, registered
// on reg. A nil reg creates unregistered collectors.
func NewDispatcherMetrics(reg prometheus.Registerer, namespace string) *DispatcherMetrics {
	factory := promauto.With(reg)
	return &DispatcherMetrics{
		Forwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_dispatch_forwarded_total",
			Help:      "Total number of log records delivered to the sink",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_dispatch_failures_total",
			Help:      "Total number of log records the sink failed, panicked or timed out on",
		}),
		BreakerDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_dispatch_circuit_breaker_dropped_total",
			Help:      "Total number of log records discarded while the circuit breaker was open",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_dispatch_circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// SetBreakerState sets the circuit breaker state gauge.
func (m *DispatcherMetrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
