// Package events keeps the recent event stream: a bounded buffer of telemetry
// events with an optional forward-to-logger step.
package events

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"

	"github.com/google/uuid"

	"femtoclaw/pkg/platform/logging"
	"femtoclaw/pkg/platform/ringbuffer"
)

const (
	// DefaultCapacity is the number of events retained before eviction starts.
	DefaultCapacity = 1000

	// SourceTag identifies forwarded events in log output.
	SourceTag = "femtoclaw"
)

// Stream owns the event ring buffer. It is safe for concurrent use.
type Stream struct {
	events          *ringbuffer.RingBuffer[Event]
	forwardFailures atomic.Uint64
}

// NewStream creates an empty stream. Non-positive capacities use
// DefaultCapacity.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stream{events: ringbuffer.New[Event](capacity)}
}

// Emit buffers the event.
func (s *Stream) Emit(event Event) {
	s.events.Push(event)
}

// EmitAndForward buffers the event and then hands it to logger at info level.
// The event is retained whatever the logger does; logger errors and panics are
// counted in ForwardFailures and not returned. The buffer lock is released
// before logger is called. Pass a non-blocking logger (logging.Dispatcher)
// when the sink may be slow.
func (s *Stream) EmitAndForward(ctx context.Context, event Event, logger logging.Logger) {
	s.Emit(event)
	s.forward(ctx, event, logger)
}

func (s *Stream) forward(ctx context.Context, event Event, logger logging.Logger) {
	fields := event.Payload
	if event.TraceID.Valid {
		fields = make(map[string]any, len(event.Payload)+1)
		maps.Copy(fields, event.Payload)
		fields["trace_id"] = event.TraceID.UUID.String()
	}
	if err := logging.SafeLog(ctx, logger, slog.LevelInfo, SourceTag, event.Type.String(), fields); err != nil {
		s.forwardFailures.Add(1)
	}
}

// All returns every retained event, oldest first.
func (s *Stream) All() []Event {
	return s.events.Snapshot()
}

// ForTrace returns the retained events correlated to traceID, oldest first.
func (s *Stream) ForTrace(traceID uuid.UUID) []Event {
	return s.events.Filter(func(e Event) bool {
		return e.TraceID.Valid && e.TraceID.UUID == traceID
	})
}

// OfType returns the retained events of the given type, oldest first.
func (s *Stream) OfType(eventType Type) []Event {
	return s.events.Filter(func(e Event) bool { return e.Type == eventType })
}

// Len returns the number of retained events.
func (s *Stream) Len() int { return s.events.Len() }

// Cap returns the fixed capacity.
func (s *Stream) Cap() int { return s.events.Cap() }

// Dropped returns how many events have been evicted by overflow.
func (s *Stream) Dropped() uint64 { return s.events.Dropped() }

// ForwardFailures returns how many forward attempts failed or panicked.
func (s *Stream) ForwardFailures() uint64 { return s.forwardFailures.Load() }

// NewTraceID returns a fresh correlation ID. It does not touch the buffer.
func (s *Stream) NewTraceID() uuid.UUID {
	return NewTraceID()
}

// NewTraceID returns a fresh correlation ID.
func NewTraceID() uuid.UUID {
	return uuid.New()
}
