package log

import (
	"time"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the server address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Device is the INDI device the event concerns, if any.
	Device string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/reassembler state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates data received from the server.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the server.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the stream layer (raw bytes as read or written).
	LayerTransport Layer = 0
	// LayerWire is the message layer (decoded XML).
	LayerWire Layer = 1
	// LayerClient is the client layer (property store, bridge).
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates protocol traffic.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameData bounds the bytes kept in a FrameEvent.
const MaxFrameData = 4096

// FrameEvent captures raw stream data at the transport layer. INDI has no
// frames on the wire; a frame here is one read or one write.
type FrameEvent struct {
	// Size is the number of bytes read or written.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large reads).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent copies up to MaxFrameData bytes of data.
func NewFrameEvent(data []byte) *FrameEvent {
	f := &FrameEvent{Size: len(data)}
	n := len(data)
	if n > MaxFrameData {
		n = MaxFrameData
		f.Truncated = true
	}
	f.Data = make([]byte, n)
	copy(f.Data, data[:n])
	return f
}

// MessageEvent captures a decoded INDI message at the wire layer.
type MessageEvent struct {
	// Tag is the message type, e.g. setNumberVector.
	Tag string `cbor:"1,keyasint"`

	// Property is the name attribute.
	Property string `cbor:"2,keyasint,omitempty"`

	// State is the property state, when present.
	State string `cbor:"3,keyasint,omitempty"`

	// Text is the message attribute, when present.
	Text string `cbor:"4,keyasint,omitempty"`

	// Elements summarises vector members, or the value of a single element.
	Elements []ElementSummary `cbor:"5,keyasint,omitempty"`
}

// ElementSummary is one member of a logged message. BLOB payloads are not
// recorded; only their size is.
type ElementSummary struct {
	Name  string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint,omitempty"`
	Size  int    `cbor:"3,keyasint,omitempty"`
}

// NewMessageEvent summarises m for logging.
func NewMessageEvent(m wire.Message) *MessageEvent {
	ev := &MessageEvent{
		Tag:      string(m.Tag()),
		Property: m.Name(),
		State:    m.AttrString("state"),
		Text:     m.AttrString("message"),
	}
	switch t := m.(type) {
	case *wire.Vector:
		for _, c := range t.Children() {
			ev.Elements = append(ev.Elements, summarise(c))
		}
	case *wire.Element:
		if t.Value() != nil {
			ev.Elements = append(ev.Elements, summarise(t))
		}
	}
	return ev
}

func summarise(e *wire.Element) ElementSummary {
	if b, ok := e.Value().([]byte); ok {
		return ElementSummary{Name: e.Name(), Size: len(b)}
	}
	return ElementSummary{Name: e.Name(), Value: e.Text()}
}

// StateChangeEvent captures connection and reassembler lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityReassembler indicates a framing state change.
	StateEntityReassembler StateEntity = 1
	// StateEntityProperty indicates a property was defined or deleted.
	StateEntityProperty StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityReassembler:
		return "REASSEMBLER"
	case StateEntityProperty:
		return "PROPERTY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Tag is the message type involved, if known.
	Tag string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
