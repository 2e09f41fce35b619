package property

import (
	"fmt"
	"time"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Type is the kind of values a property carries.
type Type string

// Property types.
const (
	TypeText   Type = "Text"
	TypeNumber Type = "Number"
	TypeSwitch Type = "Switch"
	TypeLight  Type = "Light"
	TypeBLOB   Type = "BLOB"
)

// TypeOf returns the property type of a vector tag.
func TypeOf(tag wire.Tag) (Type, bool) {
	switch tag {
	case wire.TagDefTextVector, wire.TagSetTextVector, wire.TagNewTextVector:
		return TypeText, true
	case wire.TagDefNumberVector, wire.TagSetNumberVector, wire.TagNewNumberVector:
		return TypeNumber, true
	case wire.TagDefSwitchVector, wire.TagSetSwitchVector, wire.TagNewSwitchVector:
		return TypeSwitch, true
	case wire.TagDefLightVector, wire.TagSetLightVector:
		return TypeLight, true
	case wire.TagDefBLOBVector, wire.TagSetBLOBVector, wire.TagNewBLOBVector:
		return TypeBLOB, true
	}
	return "", false
}

// Element is one member of a property.
type Element struct {
	Name  string
	Label string

	// Value is a string (text, switch, light, or unparsed number),
	// float64 (number) or []byte (BLOB). Nil until a value is known.
	Value any

	// Number metadata.
	Format string
	Min    float64
	Max    float64
	Step   float64

	// BLOB metadata. Format above holds the BLOB format suffix.
	Size int
}

// Text returns the value as displayed: numbers use the element's format.
func (e Element) Text() string {
	switch v := e.Value.(type) {
	case float64:
		return wire.FormatNumberAs(e.Format, v)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	}
	return wire.FormatValue(e.Value)
}

// Float returns a number value. Sexagesimal text is converted.
func (e Element) Float() (float64, bool) {
	switch v := e.Value.(type) {
	case float64:
		return v, true
	case string:
		f, err := wire.ParseSexagesimal(v)
		return f, err == nil
	}
	return 0, false
}

// On reports whether a switch element is On.
func (e Element) On() bool {
	s, _ := e.Value.(string)
	return s == wire.SwitchOn
}

// Property is a snapshot of one device property.
type Property struct {
	Device    string
	Name      string
	Type      Type
	Label     string
	Group     string
	State     string
	Perm      string
	Rule      string
	Timeout   float64
	Timestamp time.Time
	Message   string
	Elements  []Element
}

// Element returns the element with the given name.
func (p *Property) Element(name string) (Element, bool) {
	for _, e := range p.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// Writable reports whether clients may send new values.
func (p *Property) Writable() bool {
	return p.Type != TypeLight && p.Perm != wire.PermRO
}

// Clone returns a deep copy.
func (p *Property) Clone() *Property {
	c := *p
	c.Elements = make([]Element, len(p.Elements))
	for i, e := range p.Elements {
		if b, ok := e.Value.([]byte); ok {
			e.Value = append([]byte(nil), b...)
		}
		c.Elements[i] = e
	}
	return &c
}

// fromDefinition builds a property from a def*Vector.
func fromDefinition(v *wire.Vector) (*Property, error) {
	typ, ok := TypeOf(v.Tag())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAProperty, v.Tag())
	}
	p := &Property{
		Device: v.Device(),
		Name:   v.Name(),
		Type:   typ,
		Label:  v.AttrString("label"),
		Group:  v.AttrString("group"),
		Perm:   v.AttrString("perm"),
		Rule:   v.AttrString("rule"),
	}
	if p.Label == "" {
		p.Label = p.Name
	}
	applyVectorAttrs(p, v)

	for _, c := range v.Children() {
		e := Element{
			Name:  c.Name(),
			Label: c.AttrString("label"),
			Value: c.Value(),
		}
		if e.Label == "" {
			e.Label = e.Name
		}
		if typ == TypeNumber {
			e.Format = c.AttrString("iformat")
			e.Min, _ = c.AttrFloat("imin")
			e.Max, _ = c.AttrFloat("imax")
			e.Step, _ = c.AttrFloat("step")
		}
		p.Elements = append(p.Elements, e)
	}
	return p, nil
}

// applyUpdate merges a set*Vector into p. Unknown element names are ignored.
func applyUpdate(p *Property, v *wire.Vector) {
	applyVectorAttrs(p, v)
	for _, c := range v.Children() {
		for i := range p.Elements {
			e := &p.Elements[i]
			if e.Name != c.Name() {
				continue
			}
			e.Value = c.Value()
			if p.Type == TypeBLOB {
				e.Format = c.AttrString("iformat")
				if size, err := c.AttrFloat("size"); err == nil {
					e.Size = int(size)
				}
			}
		}
	}
}

// applyVectorAttrs copies the attributes both definitions and updates carry.
func applyVectorAttrs(p *Property, v *wire.Vector) {
	if s := v.AttrString("state"); s != "" {
		p.State = s
	}
	if t, err := v.AttrFloat("timeout"); err == nil {
		p.Timeout = t
	}
	if ts, err := v.Attr("timestamp"); err == nil {
		if t, ok := ts.(time.Time); ok {
			p.Timestamp = t
		}
	}
	p.Message = v.AttrString("message")
}
