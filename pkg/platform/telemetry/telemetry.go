// Package telemetry is the single entry point other subsystems use to record
// events and audit entries. It composes the audit log, the event stream and the
// logger/metrics collaborators; it keeps no buffers of its own.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"

	"femtoclaw/pkg/platform/audit"
	"femtoclaw/pkg/platform/events"
	"femtoclaw/pkg/platform/logging"
	"femtoclaw/pkg/platform/metrics"
	"femtoclaw/pkg/requestcontext"
)

// Telemetry owns one audit log and one event stream. Two instances never share
// buffers.
type Telemetry struct {
	audit      *audit.Log
	events     *events.Stream
	dispatcher *logging.Dispatcher
	metrics    *metrics.Metrics
}

type options struct {
	auditCapacity int
	eventCapacity int
	sink          logging.Logger
	metrics       *metrics.Metrics
	dispatchOpts  []logging.DispatcherOption
}

// Option configures a Telemetry instance.
type Option func(*options)

// WithAuditCapacity sets how many audit entries are retained.
func WithAuditCapacity(n int) Option {
	return func(o *options) { o.auditCapacity = n }
}

// WithEventCapacity sets how many events are retained.
func WithEventCapacity(n int) Option {
	return func(o *options) { o.eventCapacity = n }
}

// WithSink sets the logger that forwarded events are delivered to. Defaults to
// slog.Default().
func WithSink(sink logging.Logger) Option {
	return func(o *options) { o.sink = sink }
}

// WithMetrics sets the metrics collaborator. Defaults to a fresh instance.
// An instance registers its collectors on m, so m must not be shared between
// Telemetry instances.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDispatcherOptions tunes the non-blocking forwarder in front of the sink.
func WithDispatcherOptions(opts ...logging.DispatcherOption) Option {
	return func(o *options) { o.dispatchOpts = append(o.dispatchOpts, opts...) }
}

// New builds a Telemetry with empty, independently sized buffers.
func New(opts ...Option) *Telemetry {
	o := options{
		auditCapacity: audit.DefaultCapacity,
		eventCapacity: events.DefaultCapacity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.sink == nil {
		o.sink = logging.NewSlogLogger(slog.Default())
	}
	if o.metrics == nil {
		o.metrics = metrics.New(metrics.DefaultNamespace)
	}

	reg := o.metrics.Registry()
	dispatchOpts := append([]logging.DispatcherOption{
		logging.WithRegisterer(reg),
		logging.WithNamespace(o.metrics.Namespace()),
	}, o.dispatchOpts...)

	t := &Telemetry{
		audit:      audit.NewLog(o.auditCapacity),
		events:     events.NewStream(o.eventCapacity),
		dispatcher: logging.NewDispatcher(o.sink, dispatchOpts...),
		metrics:    o.metrics,
	}
	t.registerBufferMetrics(reg, o.metrics.Namespace())
	return t
}

func (t *Telemetry) registerBufferMetrics(reg prometheus.Registerer, namespace string) {
	factory := promauto.With(reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_entries_dropped_total",
		Help:      "Total number of audit entries evicted because the audit log was full",
	}, func() float64 { return float64(t.audit.Dropped()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Total number of events evicted because the event stream was full",
	}, func() float64 { return float64(t.events.Dropped()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_forward_failures_total",
		Help:      "Total number of events the logger rejected when forwarded",
	}, func() float64 { return float64(t.events.ForwardFailures()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_entries",
		Help:      "Current number of retained audit entries",
	}, func() float64 { return float64(t.audit.Len()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events",
		Help:      "Current number of retained events",
	}, func() float64 { return float64(t.events.Len()) })
}

// Audit returns the audit log.
func (t *Telemetry) Audit() *audit.Log { return t.audit }

// Events returns the event stream.
func (t *Telemetry) Events() *events.Stream { return t.events }

// Logger returns the non-blocking logger that forwarded events go through.
func (t *Telemetry) Logger() logging.Logger { return t.dispatcher }

// Metrics returns the metrics collaborator.
func (t *Telemetry) Metrics() *metrics.Metrics { return t.metrics }

// Emit buffers the event, attaching the trace ID carried by ctx when the
// event has none.
func (t *Telemetry) Emit(ctx context.Context, event events.Event) {
	t.events.Emit(withContextTrace(ctx, event))
}

// EmitAndLog buffers the event and forwards it to the logger without blocking.
func (t *Telemetry) EmitAndLog(ctx context.Context, event events.Event) {
	t.events.EmitAndForward(ctx, withContextTrace(ctx, event), t.dispatcher)
}

// StartTrace returns a context carrying a trace ID and the ID itself. An
// OpenTelemetry span in ctx donates its trace ID; otherwise a fresh one is
// generated.
func (t *Telemetry) StartTrace(ctx context.Context) (context.Context, uuid.UUID) {
	traceID := t.events.NewTraceID()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = uuid.UUID(sc.TraceID())
	}
	return requestcontext.WithTraceID(ctx, traceID), traceID
}

// Close drains pending forwarded records. Buffers stay readable.
func (t *Telemetry) Close(ctx context.Context) error {
	return t.dispatcher.Close(ctx)
}

func withContextTrace(ctx context.Context, event events.Event) events.Event {
	if event.TraceID.Valid {
		return event
	}
	if traceID, ok := requestcontext.TraceID(ctx); ok {
		return event.WithTraceID(traceID)
	}
	return event
}
