package wire

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Node is a parsed XML element before it is matched against the registry.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Attr returns the raw value of an XML attribute, or "".
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ParseNodes parses a wrapper document and returns its top-level children.
// The wrapper element name is not checked. Any error, including input that
// ends before the wrapper is closed, means the document is incomplete or
// malformed.
func ParseNodes(r io.Reader) ([]Node, error) {
	d := xml.NewDecoder(r)

	root, err := nextStart(d)
	if err != nil {
		return nil, err
	}

	var nodes []Node
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var n Node
			if err := d.DecodeElement(&n, &t); err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case xml.EndElement:
			if t.Name == root.Name {
				return nodes, nil
			}
		}
	}
}

// ParseNode parses a single standalone message.
func ParseNode(data []byte) (Node, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	start, err := nextStart(d)
	if err != nil {
		return Node{}, err
	}
	var n Node
	if err := d.DecodeElement(&n, &start); err != nil {
		return Node{}, err
	}
	return n, nil
}

func nextStart(d *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, fmt.Errorf("no element found: %w", io.ErrUnexpectedEOF)
			}
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}
