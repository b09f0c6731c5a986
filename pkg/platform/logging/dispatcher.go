package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"femtoclaw/pkg/platform/ringbuffer"
	"femtoclaw/pkg/platform/sentinel"
	"femtoclaw/pkg/requestcontext"
)

const (
	defaultQueueSize = 1024
	defaultBatchSize = 64
	defaultTimeout   = 2 * time.Second

	// DefaultNamespace prefixes the dispatcher metric names.
	DefaultNamespace = "femtoclaw"
)

// Dispatcher is a Logger that never blocks its caller. Log enqueues the record
// into a bounded drop-oldest queue and a single worker delivers it to the sink
// with a per-record timeout. Sink failures are counted, never returned to the
// caller of Log.
type Dispatcher struct {
	sink      Logger
	queue     *ringbuffer.RingBuffer[Record]
	breaker   *CircuitBreaker
	metrics   *DispatcherMetrics
	errLogger *slog.Logger
	timeout   time.Duration
	batchSize int

	queueSize  int
	registerer prometheus.Registerer
	namespace  string

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the number of undelivered records kept in memory.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithTimeout bounds a single sink call.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithBatchSize sets how many records the worker takes off the queue at once.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *CircuitBreaker) DispatcherOption {
	return func(d *Dispatcher) {
		if cb != nil {
			d.breaker = cb
		}
	}
}

// WithRegisterer registers the dispatcher metrics on reg.
func WithRegisterer(reg prometheus.Registerer) DispatcherOption {
	return func(d *Dispatcher) {
		d.registerer = reg
	}
}

// WithNamespace sets the metric name prefix, so dispatcher metrics share it
// with the rest of the registry.
func WithNamespace(namespace string) DispatcherOption {
	return func(d *Dispatcher) {
		if namespace != "" {
			d.namespace = namespace
		}
	}
}

// WithErrorLogger sets where breaker transitions are reported.
func WithErrorLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.errLogger = logger
		}
	}
}

// NewDispatcher starts a dispatcher delivering to sink. Call Close to drain
// and stop it.
func NewDispatcher(sink Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:      sink,
		errLogger: slog.New(slog.DiscardHandler),
		timeout:   defaultTimeout,
		batchSize: defaultBatchSize,
		queueSize: defaultQueueSize,
		namespace: DefaultNamespace,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.breaker == nil {
		d.breaker = NewCircuitBreaker(0, 0)
	}
	d.queue = ringbuffer.New[Record](d.queueSize)
	d.metrics = NewDispatcherMetrics(d.registerer, d.namespace)
	promauto.With(d.registerer).NewCounterFunc(prometheus.CounterOpts{
		Namespace: d.namespace,
		Name:      "log_dispatch_queue_dropped_total",
		Help:      "Total number of log records evicted from a full dispatch queue",
	}, func() float64 { return float64(d.queue.Dropped()) })

	go d.run()
	return d
}

// Log enqueues the record and returns immediately. The request ID in ctx, if
// any, is added to the forwarded fields. ctx is not used for delivery.
func (d *Dispatcher) Log(ctx context.Context, level slog.Level, source, message string, fields map[string]any) error {
	if d.closed.Load() {
		return sentinel.ErrClosed
	}
	rec := NewRecord(level, source, message, fields)
	rec.requestID = requestcontext.RequestID(ctx)
	d.queue.Push(rec)

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued, undelivered records.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// QueueDropped returns how many records were evicted from a full queue.
func (d *Dispatcher) QueueDropped() uint64 {
	return d.queue.Dropped()
}

// Metrics exposes the dispatcher's collectors.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// Close stops accepting records, delivers what is queued and stops the worker.
// It returns ctx.Err() if ctx ends before the queue is drained.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
	})

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		batch := d.queue.DequeueBatch(d.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, rec := range batch {
			d.deliver(rec)
		}
	}
}

func (d *Dispatcher) deliver(rec Record) {
	// Allow closes an expired breaker, so the open state is read first to
	// tell a trial call from a normal one.
	wasOpen := d.breaker.IsOpen()
	if !d.breaker.Allow() {
		d.metrics.BreakerDropped.Inc()
		return
	}

	fields := rec.Fields
	if rec.requestID != "" {
		fields = make(map[string]any, len(rec.Fields)+1)
		maps.Copy(fields, rec.Fields)
		fields["request_id"] = rec.requestID
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := callWithDeadline(ctx, d.sink, rec.level, rec.Source, rec.Message, fields); err != nil {
		d.metrics.Failures.Inc()
		if d.breaker.RecordFailure() {
			d.metrics.SetBreakerState(true)
			d.errLogger.Warn("log sink circuit opened", "error", err)
		}
		return
	}

	d.breaker.RecordSuccess()
	if wasOpen {
		d.errLogger.Info("log sink circuit closed")
	}
	d.metrics.SetBreakerState(false)
	d.metrics.Forwarded.Inc()
}

// callWithDeadline runs the sink call on its own goroutine so a sink that
// ignores ctx cannot hold the worker past the deadline. The abandoned call is
// left to finish on its own; the breaker caps how many can pile up.
func callWithDeadline(ctx context.Context, sink Logger, level slog.Level, source, message string, fields map[string]any) error {
	result := make(chan error, 1)
	go func() {
		result <- SafeLog(ctx, sink, level, source, message, fields)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("log sink: %w", ctx.Err())
	}
}

// SafeLog calls logger.Log and converts a panic into an error.
func SafeLog(ctx context.Context, logger Logger, level slog.Level, source, message string, fields map[string]any) (err error) {
	if logger == nil {
		return fmt.Errorf("log sink: %w", sentinel.ErrUnavailable)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("log sink panic: %v", r)
		}
	}()
	return logger.Log(ctx, level, source, message, fields)
}
