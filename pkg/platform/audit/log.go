// Package audit keeps the in-memory audit trail: a bounded, append-only list
// of compliance entries that evicts the oldest entry on overflow.
package audit

import "femtoclaw/pkg/platform/ringbuffer"

// DefaultCapacity is the number of entries retained before eviction starts.
const DefaultCapacity = 10000

// Log owns the audit ring buffer. It is safe for concurrent use.
type Log struct {
	entries *ringbuffer.RingBuffer[Entry]
}

// NewLog creates an empty audit log. Non-positive capacities use
// DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: ringbuffer.New[Entry](capacity)}
}

// Append records a pre-built entry. Entries built by hand must carry their
// own ID and timestamp; NewEntry provides both.
func (l *Log) Append(entry Entry) {
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	l.entries.Push(entry)
}

// Record builds and appends an entry. details may be nil.
func (l *Log) Record(event, actor, resource, action, result string, details map[string]any) {
	l.Append(NewEntry(event, actor, resource, action, result).WithDetails(details))
}

// All returns every retained entry, oldest first.
func (l *Log) All() []Entry {
	return l.entries.Snapshot()
}

// ForResource returns the retained entries whose Resource equals resource,
// oldest first.
func (l *Log) ForResource(resource string) []Entry {
	return l.entries.Filter(func(e Entry) bool { return e.Resource == resource })
}

// ForActor returns the retained entries whose Actor equals actor, oldest
// first.
func (l *Log) ForActor(actor string) []Entry {
	return l.entries.Filter(func(e Entry) bool { return e.Actor == actor })
}

// Clear empties the trail. No authorization is enforced here; callers that
// expose it must restrict who may call it.
func (l *Log) Clear() {
	l.entries.Clear()
}

// Len returns the number of retained entries.
func (l *Log) Len() int { return l.entries.Len() }

// Cap returns the fixed capacity.
func (l *Log) Cap() int { return l.entries.Cap() }

// Dropped returns how many entries have been evicted by overflow.
func (l *Log) Dropped() uint64 { return l.entries.Dropped() }
