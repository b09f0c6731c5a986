// Package metrics is the metrics collaborator held by the telemetry facade.
// Counters, histograms and gauges are created on first use by name and
// registered on a registry owned by the instance.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/model"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "femtoclaw"

// Metrics holds named Prometheus metrics for the application.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry
	rejected  prometheus.Counter

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
	gauges     map[string]prometheus.Gauge
}

// New creates a metrics instance with its own registry, pre-populated with
// the Go runtime and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metrics_rejected_total",
		Help:      "Total number of metric updates rejected for an invalid or conflicting name",
	})
	registry.MustRegister(rejected)

	return &Metrics{
		namespace:  namespace,
		registry:   registry,
		rejected:   rejected,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
		gauges:     make(map[string]prometheus.Gauge),
	}
}

// IncrementCounter increments the named counter by 1.
func (m *Metrics) IncrementCounter(name string) {
	c, ok := lookup(m, m.counters, name, func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
		})
	})
	if ok {
		c.Inc()
	}
}

// RecordHistogram observes value on the named histogram.
func (m *Metrics) RecordHistogram(name string, value float64) {
	h, ok := lookup(m, m.histograms, name, func() prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
			Buckets:   prometheus.DefBuckets,
		})
	})
	if ok {
		h.Observe(value)
	}
}

// SetGauge sets the named gauge to value.
func (m *Metrics) SetGauge(name string, value float64) {
	g, ok := lookup(m, m.gauges, name, func() prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      name,
		})
	})
	if ok {
		g.Set(value)
	}
}

// Registry exposes the underlying registry so sibling components can
// register their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Namespace returns the metric name prefix.
func (m *Metrics) Namespace() string {
	return m.namespace
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// lookup returns the cached collector for name, creating and registering it on
// first use. Names that are not valid legacy Prometheus names, and names already
// taken by another kind, are counted and the update is skipped. The registry
// itself accepts any UTF-8 name, so the legacy check is done here.
func lookup[C prometheus.Collector](m *Metrics, cache map[string]C, name string, build func() C) (C, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := cache[name]; ok {
		return c, true
	}
	if !validName(m.namespace, name) {
		m.rejected.Inc()
		var zero C
		return zero, false
	}
	c := build()
	if err := m.registry.Register(c); err != nil {
		m.rejected.Inc()
		var zero C
		return zero, false
	}
	cache[name] = c
	return c, true
}

// validName requires name to stand on its own as a legacy metric name, so a
// leading digit is refused even though the namespace prefix would hide it.
func validName(namespace, name string) bool {
	return model.LegacyValidation.IsValidMetricName(name) &&
		model.LegacyValidation.IsValidMetricName(prometheus.BuildFQName(namespace, "", name))
}
