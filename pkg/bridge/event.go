package bridge

import (
	"strings"
	"time"

	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Event kinds published on the uplink subjects.
const (
	KindDefined = "defined"
	KindUpdated = "updated"
	KindDeleted = "deleted"
	KindMessage = "message"
)

// Event is the JSON document published for every property change and for
// every server notice.
type Event struct {
	Kind      string                  `json:"kind"`
	Device    string                  `json:"device,omitempty"`
	Property  string                  `json:"property,omitempty"`
	Type      string                  `json:"type,omitempty"`
	Label     string                  `json:"label,omitempty"`
	Group     string                  `json:"group,omitempty"`
	State     string                  `json:"state,omitempty"`
	Perm      string                  `json:"perm,omitempty"`
	Timestamp *time.Time              `json:"timestamp,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Elements  map[string]ElementValue `json:"elements,omitempty"`
}

// ElementValue is one element inside an Event.
type ElementValue struct {
	// Value is the number, or the text of text, switch and light elements.
	Value any `json:"value,omitempty"`

	// Text is the value formatted with the element's number format.
	Text string `json:"text,omitempty"`

	// BLOB metadata and, when small enough, the payload.
	Format string `json:"format,omitempty"`
	Size   int    `json:"size,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// Command is the JSON document accepted on the command subject. Values are
// element names mapped to text, converted according to the property type.
type Command struct {
	Device   string            `json:"device"`
	Property string            `json:"property"`
	Values   map[string]string `json:"values"`
}

// Reply answers a command sent with a reply subject.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// changeKind maps a store change to an event kind.
func changeKind(k property.ChangeKind) string {
	switch k {
	case property.ChangeDefined:
		return KindDefined
	case property.ChangeDeleted:
		return KindDeleted
	default:
		return KindUpdated
	}
}

// eventFromChange builds the event for a property change. BLOB payloads up
// to maxBLOB bytes are included.
func eventFromChange(c property.Change, maxBLOB int) Event {
	p := c.Property
	ev := Event{
		Kind:     changeKind(c.Kind),
		Device:   p.Device,
		Property: p.Name,
	}
	if c.Kind == property.ChangeDeleted {
		return ev
	}

	ev.Type = string(p.Type)
	ev.Label = p.Label
	ev.Group = p.Group
	ev.State = p.State
	ev.Perm = p.Perm
	ev.Message = p.Message
	if !p.Timestamp.IsZero() {
		ts := p.Timestamp
		ev.Timestamp = &ts
	}

	ev.Elements = make(map[string]ElementValue, len(p.Elements))
	for _, e := range p.Elements {
		ev.Elements[e.Name] = elementValue(p.Type, e, maxBLOB)
	}
	return ev
}

func elementValue(t property.Type, e property.Element, maxBLOB int) ElementValue {
	if t == property.TypeBLOB {
		v := ElementValue{Format: e.Format, Size: e.Size}
		if b, ok := e.Value.([]byte); ok {
			if v.Size == 0 {
				v.Size = len(b)
			}
			if len(b) <= maxBLOB {
				v.Data = b
			}
		}
		return v
	}
	v := ElementValue{Value: e.Value}
	if f, ok := e.Value.(float64); ok {
		v.Text = strings.TrimSpace(wire.FormatNumberAs(e.Format, f))
	}
	return v
}

// eventFromMessage builds the event for a <message> notice.
func eventFromMessage(m wire.Message) Event {
	ev := Event{
		Kind:    KindMessage,
		Device:  m.Device(),
		Message: m.AttrString("message"),
	}
	if v, err := m.Attr("timestamp"); err == nil {
		if ts, ok := v.(time.Time); ok {
			ev.Timestamp = &ts
		}
	}
	return ev
}

// SubjectToken makes a device or property name usable as one NATS subject
// token. Separators, wildcards and whitespace become underscores.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
