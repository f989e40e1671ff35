package evidence

import (
	"time"
)

// CustodyEvent is a single entry in an artifact's chain of custody.
// Events are never modified once appended.
type CustodyEvent struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCustodyEvent returns an event stamped at the given time,
// truncated to whole seconds in UTC. Custody logs are exported with
// one-second precision, so we store them that way too.
func NewCustodyEvent(timestamp time.Time, action, details, actor string) CustodyEvent {
	return CustodyEvent{
		Action:    action,
		Actor:     actor,
		Details:   details,
		Timestamp: timestamp.UTC().Truncate(time.Second),
	}
}

// CopyEvents returns a copy of events that shares no backing array
// with the original.
func CopyEvents(events []CustodyEvent) []CustodyEvent {
	copied := make([]CustodyEvent, len(events))
	copy(copied, events)
	return copied
}
