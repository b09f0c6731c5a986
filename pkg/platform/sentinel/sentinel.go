package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Sinks and dispatchers return these
// (optionally wrapped) so callers can tell a closed or tripped component apart
// from a sink-specific failure.
//
// Buffer overflow is not an error anywhere in this module: eviction is the
// expected steady state.
var (
	ErrClosed      = errors.New("closed")
	ErrUnavailable = errors.New("unavailable")
)
