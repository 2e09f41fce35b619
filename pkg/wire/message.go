package wire

import (
	"fmt"
	"strings"
)

// Attrs maps logical attribute names to stored values.
type Attrs map[string]any

// Message is an INDI protocol message: either an *Element or a *Vector.
type Message interface {
	// Tag returns the message type.
	Tag() Tag

	// Schema returns the registry entry for the message type.
	Schema() *Schema

	// Attrs returns a copy of the attribute set.
	Attrs() Attrs

	// Attr returns one attribute, or ErrAttributeNotFound.
	Attr(name string) (any, error)

	// AttrString returns an attribute in wire form, or "" when absent.
	AttrString(name string) string

	// AttrFloat returns a numeric attribute, converting sexagesimal strings.
	AttrFloat(name string) (float64, error)

	// SetAttr inserts or replaces an attribute. The value is not checked
	// until the message is encoded.
	SetAttr(name string, v any)

	// DelAttr removes an attribute.
	DelAttr(name string)

	// Device returns the device attribute, or "".
	Device() string

	// Name returns the name attribute, or "".
	Name() string

	validate() error
}

// base holds what elements and vectors have in common.
type base struct {
	schema *Schema
	attrs  Attrs
}

func (b *base) Tag() Tag        { return b.schema.Tag }
func (b *base) Schema() *Schema { return b.schema }
func (b *base) Device() string  { return b.AttrString("device") }
func (b *base) Name() string    { return b.AttrString("name") }

func (b *base) Attrs() Attrs {
	out := make(Attrs, len(b.attrs))
	for k, v := range b.attrs {
		out[k] = v
	}
	return out
}

// key maps a wire spelling to its logical name.
func (b *base) key(name string) string {
	if r, ok := b.schema.resolve(name); ok {
		return r.Name
	}
	return name
}

func (b *base) Attr(name string) (any, error) {
	v, ok := b.attrs[b.key(name)]
	if !ok {
		return nil, &AttributeError{Tag: b.schema.Tag, Attr: name, Err: ErrAttributeNotFound}
	}
	return v, nil
}

func (b *base) AttrString(name string) string {
	v, ok := b.attrs[b.key(name)]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

func (b *base) AttrFloat(name string) (float64, error) {
	v, err := b.Attr(name)
	if err != nil {
		return 0, err
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		return ParseSexagesimal(s)
	}
	return 0, &AttributeError{Tag: b.schema.Tag, Attr: name,
		Err: fmt.Errorf("%w: %T is not a number", ErrInvalidAttributeValue, v)}
}

func (b *base) SetAttr(name string, v any) {
	if b.attrs == nil {
		b.attrs = make(Attrs)
	}
	b.attrs[b.key(name)] = v
}

func (b *base) DelAttr(name string) {
	delete(b.attrs, b.key(name))
}

func (b *base) validateAttrs() error {
	_, err := checkAttrs(b.schema, b.attrs)
	return err
}

// checkAttrs validates attrs against the schema and returns them keyed by
// logical name in canonical form. Nil values are treated as absent.
func checkAttrs(s *Schema, attrs Attrs) (Attrs, error) {
	out := make(Attrs, len(attrs))
	for name, v := range attrs {
		if v == nil {
			continue
		}
		r, ok := s.resolve(name)
		if !ok {
			return nil, &AttributeError{Tag: s.Tag, Attr: name, Err: ErrUnexpectedAttribute}
		}
		if r.Check != nil {
			cv, err := r.Check(v)
			if err != nil {
				return nil, &AttributeError{Tag: s.Tag, Attr: r.Name, Err: err}
			}
			v = cv
		}
		out[r.Name] = v
	}
	for _, r := range s.Rules {
		if _, ok := out[r.Name]; r.Required && !ok {
			return nil, &AttributeError{Tag: s.Tag, Attr: r.Name, Err: ErrMissingRequiredAttribute}
		}
	}
	return out, nil
}

// checkValue validates an element value. Attribute-only tags accept nil only.
func checkValue(s *Schema, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	check := valueCheck(s.Value)
	if check == nil {
		return nil, fmt.Errorf("%s: %w: tag carries no value", s.Tag, ErrInvalidAttributeValue)
	}
	cv, err := check(v)
	if err != nil {
		return nil, fmt.Errorf("%s: value: %w", s.Tag, err)
	}
	return cv, nil
}

// Element is a single-valued message.
type Element struct {
	base
	value any
}

// NewElement builds an element message. Attribute names may use either the
// logical or the wire spelling.
func NewElement(tag Tag, value any, attrs Attrs) (*Element, error) {
	s, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	if s.Kind != KindElement {
		return nil, fmt.Errorf("%w: %s is a vector", ErrUnknownMessageType, tag)
	}
	checked, err := checkAttrs(s, attrs)
	if err != nil {
		return nil, err
	}
	v, err := checkValue(s, value)
	if err != nil {
		return nil, err
	}
	return &Element{base: base{schema: s, attrs: checked}, value: v}, nil
}

// newElement builds an element without checking. Used by typed helpers whose
// arguments cannot violate the schema; encoding still validates.
func newElement(tag Tag, value any, attrs Attrs) *Element {
	return &Element{base: base{schema: registry[tag], attrs: attrs}, value: value}
}

// Value returns the stored value: string, float64, []byte or nil.
func (e *Element) Value() any { return e.value }

// SetValue validates and replaces the value.
func (e *Element) SetValue(v any) error {
	cv, err := checkValue(e.schema, v)
	if err != nil {
		return err
	}
	e.value = cv
	return nil
}

// Text returns the value in wire form.
func (e *Element) Text() string {
	return FormatValue(e.value)
}

// Float returns a numeric value, converting sexagesimal text.
func (e *Element) Float() (float64, error) {
	switch v := e.value.(type) {
	case float64:
		return v, nil
	case string:
		return ParseSexagesimal(v)
	}
	return 0, fmt.Errorf("%s %q: %w: not a number", e.schema.Tag, e.Name(), ErrInvalidAttributeValue)
}

// Bool reports whether a switch value is On.
func (e *Element) Bool() bool {
	s, _ := e.value.(string)
	return s == SwitchOn
}

// Bytes returns a BLOB payload. The slice is not copied.
func (e *Element) Bytes() []byte {
	b, _ := e.value.([]byte)
	return b
}

func (e *Element) validate() error {
	if err := e.validateAttrs(); err != nil {
		return err
	}
	_, err := checkValue(e.schema, e.value)
	return err
}

func (e *Element) String() string {
	data, err := encodeMessage(e)
	if err != nil {
		return fmt.Sprintf("<%s %v>", e.schema.Tag, err)
	}
	return strings.TrimSpace(string(data))
}

// Vector is a message carrying an ordered list of child elements.
type Vector struct {
	base
	children []*Element
}

// NewVector builds a vector message. Every child must have the vector's
// child tag.
func NewVector(tag Tag, attrs Attrs, children ...*Element) (*Vector, error) {
	s, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	if s.Kind != KindVector {
		return nil, fmt.Errorf("%w: %s is not a vector", ErrUnknownMessageType, tag)
	}
	checked, err := checkAttrs(s, attrs)
	if err != nil {
		return nil, err
	}
	v := &Vector{base: base{schema: s, attrs: checked}}
	for _, c := range children {
		if err := v.Append(c); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Len returns the number of children.
func (v *Vector) Len() int { return len(v.children) }

// Child returns the i-th child.
func (v *Vector) Child(i int) *Element { return v.children[i] }

// Children returns a copy of the child list.
func (v *Vector) Children() []*Element {
	out := make([]*Element, len(v.children))
	copy(out, v.children)
	return out
}

// Append adds a child element.
func (v *Vector) Append(e *Element) error {
	if e == nil || e.Tag() != v.schema.Child {
		got := Tag("<nil>")
		if e != nil {
			got = e.Tag()
		}
		return fmt.Errorf("%s: %w: got %s, want %s", v.schema.Tag, ErrInvalidChild, got, v.schema.Child)
	}
	v.children = append(v.children, e)
	return nil
}

// Find returns the child with the given name, or nil.
func (v *Vector) Find(name string) *Element {
	for _, c := range v.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func (v *Vector) validate() error {
	if err := v.validateAttrs(); err != nil {
		return err
	}
	for _, c := range v.children {
		if c.Tag() != v.schema.Child {
			return fmt.Errorf("%s: %w: got %s", v.schema.Tag, ErrInvalidChild, c.Tag())
		}
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector) String() string {
	data, err := encodeMessage(v)
	if err != nil {
		return fmt.Sprintf("<%s %v>", v.schema.Tag, err)
	}
	return strings.TrimSpace(string(data))
}
