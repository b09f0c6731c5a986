// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values; telemetry reads them:
//
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//	ctx = requestcontext.WithTraceID(ctx, traceID)
//
//	traceID, ok := requestcontext.TraceID(ctx)
package requestcontext

import (
	"context"

	"github.com/google/uuid"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey struct{}
	traceIDKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID = requestIDKey{}
	ContextKeyTraceID   = traceIDKey{}
)

// RequestID retrieves the request correlation ID from the context.
// Returns empty string if not set.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// TraceID retrieves the telemetry trace ID attached to the context.
func TraceID(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	traceID, ok := ctx.Value(ContextKeyTraceID).(uuid.UUID)
	if !ok || traceID == uuid.Nil {
		return uuid.Nil, false
	}
	return traceID, true
}

// WithTraceID attaches a telemetry trace ID to the context.
func WithTraceID(ctx context.Context, traceID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyTraceID, traceID)
}
