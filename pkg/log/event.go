package log

import (
	"time"
)

// Event is one captured occurrence on a relay link or inside a subscription
// manager. One payload pointer is set, except that RPC messages may also carry
// their raw Frame. Integer CBOR keys keep files small.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint,omitempty"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	ClientID     string    `cbor:"6,keyasint,omitempty"`
	RelayURL     string    `cbor:"7,keyasint,omitempty"`

	Frame        *FrameEvent        `cbor:"10,keyasint,omitempty"`
	Message      *MessageEvent      `cbor:"11,keyasint,omitempty"`
	StateChange  *StateChangeEvent  `cbor:"12,keyasint,omitempty"`
	ControlMsg   *ControlMsgEvent   `cbor:"13,keyasint,omitempty"`
	Error        *ErrorEventData    `cbor:"14,keyasint,omitempty"`
	Subscription *SubscriptionEvent `cbor:"15,keyasint,omitempty"`
}

// Topic returns the topic of a message or subscription event, or "".
func (e Event) Topic() string {
	switch {
	case e.Message != nil:
		return e.Message.Topic
	case e.Subscription != nil:
		return e.Subscription.Topic
	}
	return ""
}

// enumName returns names[i], or "UNKNOWN" when i is out of range.
func enumName[T ~uint8](names []string, i T) string {
	if int(i) < len(names) {
		return names[i]
	}
	return "UNKNOWN"
}

// Direction of a message relative to this client.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
	// DirectionLocal marks events with no wire direction.
	DirectionLocal
)

var directionNames = []string{"IN", "OUT", "LOCAL"}

func (d Direction) String() string { return enumName(directionNames, d) }

// Layer that captured an event.
type Layer uint8

const (
	// LayerLink is the websocket connection.
	LayerLink Layer = iota
	// LayerRPC is decoded JSON-RPC traffic.
	LayerRPC
	// LayerManager is the subscription manager.
	LayerManager
)

var layerNames = []string{"LINK", "RPC", "MANAGER"}

func (l Layer) String() string { return enumName(layerNames, l) }

// Category classifies an event by its payload.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryError
	CategorySubscription
)

var categoryNames = []string{"MESSAGE", "CONTROL", "STATE", "ERROR", "SUBSCRIPTION"}

func (c Category) String() string { return enumName(categoryNames, c) }

// MaxFrameData bounds FrameEvent.Data.
const MaxFrameData = 4096

// FrameEvent is a raw websocket text frame.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies at most MaxFrameData bytes of data.
func NewFrameEvent(data []byte) *FrameEvent {
	n := min(len(data), MaxFrameData)
	return &FrameEvent{
		Size:      len(data),
		Data:      append([]byte(nil), data[:n]...),
		Truncated: n < len(data),
	}
}

// MessageEvent is a decoded JSON-RPC message.
type MessageEvent struct {
	Type      MessageType `cbor:"1,keyasint"`
	RequestID uint64      `cbor:"2,keyasint"`
	Method    string      `cbor:"3,keyasint,omitempty"`

	// Topic and SubscriptionID are filled in when the params name them.
	Topic          string `cbor:"4,keyasint,omitempty"`
	SubscriptionID string `cbor:"5,keyasint,omitempty"`

	// ErrorCode is the JSON-RPC error code of a failed response.
	ErrorCode *int `cbor:"6,keyasint,omitempty"`

	// RoundTrip is measured from request write to response receipt.
	RoundTrip *time.Duration `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes JSON-RPC message kinds.
type MessageType uint8

const (
	MessageTypeRequest MessageType = iota
	MessageTypeResponse
	// MessageTypeNotification is a relay-pushed subscription delivery.
	MessageTypeNotification
)

var messageTypeNames = []string{"REQUEST", "RESPONSE", "NOTIFICATION"}

func (m MessageType) String() string { return enumName(messageTypeNames, m) }

// StateChangeEvent records a link or manager state transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity names what changed state.
type StateEntity uint8

const (
	StateEntityLink StateEntity = iota
	StateEntityManager
)

var stateEntityNames = []string{"LINK", "MANAGER"}

func (s StateEntity) String() string { return enumName(stateEntityNames, s) }

// ControlMsgEvent is a websocket control frame.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is set for close frames.
	CloseCode *int `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType is the kind of control frame.
type ControlMsgType uint8

const (
	ControlMsgPing ControlMsgType = iota
	ControlMsgPong
	ControlMsgClose
)

var controlMsgNames = []string{"PING", "PONG", "CLOSE"}

func (c ControlMsgType) String() string { return enumName(controlMsgNames, c) }

// SubscriptionEvent records a change in the manager's subscription set.
type SubscriptionEvent struct {
	Action SubscriptionAction `cbor:"1,keyasint"`

	// Topic and ID are empty for batch actions.
	Topic string `cbor:"2,keyasint,omitempty"`
	ID    string `cbor:"3,keyasint,omitempty"`

	// Count is the number of subscriptions a batch action touched.
	Count int `cbor:"4,keyasint,omitempty"`

	Reason string `cbor:"5,keyasint,omitempty"`
}

// SubscriptionAction names a subscription lifecycle step.
type SubscriptionAction uint8

const (
	// ActionCreated: a subscription became active.
	ActionCreated SubscriptionAction = iota
	// ActionDeleted: a subscription was removed.
	ActionDeleted
	// ActionPending: a request was sent and awaits confirmation.
	ActionPending
	// ActionCached: subscriptions were parked until the link returns.
	ActionCached
	// ActionResubscribed: cached subscriptions were replayed.
	ActionResubscribed
	// ActionStalled: a relay request failed at the transport.
	ActionStalled
	// ActionRestored: a persisted snapshot was loaded.
	ActionRestored
)

var actionNames = []string{"CREATED", "DELETED", "PENDING", "CACHED", "RESUBSCRIBED", "STALLED", "RESTORED"}

func (a SubscriptionAction) String() string { return enumName(actionNames, a) }

// ErrorEventData is an error raised at some layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`

	// Context names the operation that failed.
	Context string `cbor:"4,keyasint,omitempty"`
}
