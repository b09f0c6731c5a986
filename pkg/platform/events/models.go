package events

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event. The set is closed; payload shape depends on it.
type Type string

const (
	TypeInputReceived               Type = "input_received"
	TypeProtocolValidated           Type = "protocol_validated"
	TypeProtocolRejected            Type = "protocol_rejected"
	TypeAuthorizationDecision       Type = "authorization_decision"
	TypeCapabilityExecutionStart    Type = "capability_execution_start"
	TypeCapabilityExecutionComplete Type = "capability_execution_complete"
	TypeCapabilityExecutionError    Type = "capability_execution_error"
	TypeMemoryWrite                 Type = "memory_write"
	TypeExecutionComplete           Type = "execution_complete"
	TypeExecutionError              Type = "execution_error"
	TypeStateTransition             Type = "state_transition"
)

var knownTypes = map[Type]struct{}{
	TypeInputReceived:               {},
	TypeProtocolValidated:           {},
	TypeProtocolRejected:            {},
	TypeAuthorizationDecision:       {},
	TypeCapabilityExecutionStart:    {},
	TypeCapabilityExecutionComplete: {},
	TypeCapabilityExecutionError:    {},
	TypeMemoryWrite:                 {},
	TypeExecutionComplete:           {},
	TypeExecutionError:              {},
	TypeStateTransition:             {},
}

// Valid reports whether t is one of the defined event types.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

func (t Type) String() string {
	return string(t)
}

// Event is one telemetry record. Events are values and are never modified once
// emitted.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	// TraceID is absent (Valid=false) unless attached with WithTraceID.
	TraceID uuid.NullUUID `json:"trace_id"`
}

// New builds an event with a fresh ID and the current UTC time. The payload
// map is copied; nil yields an empty payload.
func New(eventType Type, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Payload:   maps.Clone(payload),
	}
}

// WithTraceID returns a copy of the event correlated to traceID.
func (e Event) WithTraceID(traceID uuid.UUID) Event {
	e.TraceID = uuid.NullUUID{UUID: traceID, Valid: true}
	return e
}
