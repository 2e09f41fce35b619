package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Encode validates m and returns its wire form, terminated by a newline.
func Encode(m Message) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return encodeMessage(m)
}

// Encoder writes messages to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode validates m and writes it with a single Write call.
func (e *Encoder) Encode(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

func encodeMessage(m Message) ([]byte, error) {
	var buf bytes.Buffer
	x := xml.NewEncoder(&buf)
	x.Indent("", "  ")

	var err error
	switch t := m.(type) {
	case *Element:
		err = writeElement(x, t)
	case *Vector:
		err = writeVector(x, t)
	default:
		err = fmt.Errorf("cannot encode %T", m)
	}
	if err != nil {
		return nil, err
	}
	if err := x.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeVector(x *xml.Encoder, v *Vector) error {
	start := startElement(v.schema, v.attrs)
	if err := x.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range v.children {
		if err := writeElement(x, c); err != nil {
			return err
		}
	}
	return x.EncodeToken(start.End())
}

func writeElement(x *xml.Encoder, e *Element) error {
	start := startElement(e.schema, e.attrs)
	if err := x.EncodeToken(start); err != nil {
		return err
	}
	if text := FormatValue(e.value); text != "" {
		if err := x.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}
	return x.EncodeToken(start.End())
}

// startElement emits attributes in schema order under their wire names.
func startElement(s *Schema, attrs Attrs) xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Local: string(s.Tag)}}
	for _, r := range s.Rules {
		v, ok := attrs[r.Name]
		if !ok || v == nil {
			continue
		}
		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: r.Wire()},
			Value: FormatValue(v),
		})
	}
	return start
}

// Unmarshal decodes one standalone message.
func Unmarshal(data []byte) (Message, error) {
	n, err := ParseNode(data)
	if err != nil {
		return nil, err
	}
	return Decode(&n)
}

// Decode converts a parsed node to a Message. Decoding is lenient:
// undeclared attributes are dropped and values that fail their validator
// are kept as raw strings. Unknown tags, missing required attributes,
// foreign vector children and bad BLOB payloads fail with a *DecodeError.
func Decode(n *Node) (Message, error) {
	s, err := Lookup(Tag(n.XMLName.Local))
	if err != nil {
		return nil, decodeError(n, err)
	}

	if s.Kind == KindElement {
		e, err := decodeElement(s, n)
		if err != nil {
			return nil, decodeError(n, err)
		}
		return e, nil
	}

	attrs, err := decodeAttrs(s, n.Attrs)
	if err != nil {
		return nil, decodeError(n, err)
	}
	v := &Vector{base: base{schema: s, attrs: attrs}}
	child := registry[s.Child]
	for i := range n.Children {
		c := &n.Children[i]
		if Tag(c.XMLName.Local) != s.Child {
			return nil, decodeError(n, fmt.Errorf("%w: got %s, want %s", ErrInvalidChild, c.XMLName.Local, s.Child))
		}
		e, err := decodeElement(child, c)
		if err != nil {
			return nil, decodeError(n, err)
		}
		v.children = append(v.children, e)
	}
	return v, nil
}

func decodeError(n *Node, err error) *DecodeError {
	return &DecodeError{
		Tag:    n.XMLName.Local,
		Device: n.Attr("device"),
		Name:   n.Attr("name"),
		Err:    err,
	}
}

func decodeElement(s *Schema, n *Node) (*Element, error) {
	attrs, err := decodeAttrs(s, n.Attrs)
	if err != nil {
		return nil, err
	}
	value, err := decodeValue(s, n.Text)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", s.Tag, n.Attr("name"), err)
	}
	return &Element{base: base{schema: s, attrs: attrs}, value: value}, nil
}

func decodeAttrs(s *Schema, raw []xml.Attr) (Attrs, error) {
	attrs := make(Attrs, len(raw))
	for _, a := range raw {
		r, ok := s.resolve(a.Name.Local)
		if !ok {
			continue
		}
		var v any = a.Value
		if r.Check != nil {
			if cv, err := r.Check(a.Value); err == nil {
				v = cv
			}
		}
		attrs[r.Name] = v
	}
	for _, r := range s.Rules {
		if _, ok := attrs[r.Name]; r.Required && !ok {
			return nil, &AttributeError{Tag: s.Tag, Attr: r.Name, Err: ErrMissingRequiredAttribute}
		}
	}
	return attrs, nil
}

func decodeValue(s *Schema, text string) (any, error) {
	switch s.Value {
	case ValueNone:
		return nil, nil
	case ValueText:
		// Text is the value exactly as sent, surrounding space included.
		return text, nil
	case ValueBLOB:
		data, err := base64.StdEncoding.DecodeString(stripSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 payload: %v", ErrInvalidAttributeValue, err)
		}
		return data, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if v, err := valueCheck(s.Value)(text); err == nil {
		return v, nil
	}
	return text, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
