package subscription

// EventType identifies a manager event.
type EventType uint8

const (
	// EventCreated fires when a subscription becomes active.
	EventCreated EventType = iota

	// EventDeleted fires when a subscription is removed.
	EventDeleted

	// EventResubscribed fires after cached subscriptions were replayed on reconnect.
	EventResubscribed

	// EventSync fires after the active set was written to storage.
	EventSync

	// EventConnectionStalled fires when a relay request failed or timed out.
	EventConnectionStalled
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "CREATED"
	case EventDeleted:
		return "DELETED"
	case EventResubscribed:
		return "RESUBSCRIBED"
	case EventSync:
		return "SYNC"
	case EventConnectionStalled:
		return "CONNECTION_STALLED"
	default:
		return "UNKNOWN"
	}
}

// Event is published on the manager's event bus.
type Event struct {
	Type EventType

	// Subscription is set for EventCreated and EventDeleted.
	Subscription Subscription

	// Reason is set for EventDeleted.
	Reason string

	// Count is the number of subscriptions resubscribed (EventResubscribed)
	// or written (EventSync).
	Count int

	// Topic and Err describe an EventConnectionStalled. Topic is empty for batch requests.
	Topic string
	Err   error
}
