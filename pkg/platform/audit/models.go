package audit

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Entry is one compliance record: an actor performing an action on a resource
// with a result. Entries are values; once recorded they are never modified or
// reordered, only evicted as a whole.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Actor     string    `json:"actor"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Result    string    `json:"result"`
	// Details is treated as read-only after construction.
	Details map[string]any `json:"details"`
}

// NewEntry builds an entry with a fresh ID, the current UTC time and empty
// details.
func NewEntry(event, actor, resource, action, result string) Entry {
	return Entry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Event:     event,
		Actor:     actor,
		Resource:  resource,
		Action:    action,
		Result:    result,
		Details:   map[string]any{},
	}
}

// WithDetails returns a copy of the entry carrying a copy of details.
// A nil map yields empty details.
func (e Entry) WithDetails(details map[string]any) Entry {
	if details == nil {
		e.Details = map[string]any{}
		return e
	}
	e.Details = maps.Clone(details)
	return e
}
