// Package inspect provides property inspection and formatting utilities for
// INDI command line tools.
//
// The inspect package offers a unified interface for:
//   - Parsing path expressions (e.g., "CCD Simulator.CCD_EXPOSURE.CCD_EXPOSURE_VALUE")
//   - Listing and reading properties held in a property store
//   - Writing element values through a client
//   - Formatting output for display
package inspect

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Path errors.
var (
	ErrEmptyPath      = errors.New("empty path")
	ErrInvalidPath    = errors.New("invalid path format")
	ErrMissingValue   = errors.New("missing value in assignment")
	ErrWildcardSet    = errors.New("wildcards not allowed when writing")
	ErrNotWritable    = errors.New("property is read-only")
	ErrNoMatch        = errors.New("no matching property")
	ErrElementMissing = errors.New("element not found")
)

// Wildcard matches any device, property or element.
const Wildcard = "*"

// Path represents a parsed property path.
// Format: device[.property[.element]]
//
// Each part may be "*" or a shell pattern ("CCD*") as understood by
// path.Match. Device names may contain spaces; they should not contain dots.
type Path struct {
	Device   string
	Property string
	Element  string

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses a path string into a Path struct.
//
// Supported formats:
//   - "device" - all properties of a device
//   - "device.property" - all elements of a property
//   - "device.property.element" - a single element
//
// Missing parts default to "*".
func ParsePath(input string) (*Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPath
	}

	parts := strings.Split(input, ".")
	if len(parts) > 3 {
		return nil, fmt.Errorf("%w: %q has more than three parts", ErrInvalidPath, input)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("%w: %q has an empty part", ErrInvalidPath, input)
		}
		if _, err := path.Match(part, ""); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPath, part, err)
		}
	}

	p := &Path{Device: Wildcard, Property: Wildcard, Element: Wildcard, Raw: input}
	p.Device = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		p.Property = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		p.Element = strings.TrimSpace(parts[2])
	}
	return p, nil
}

// ParseAssignment parses "device.property.element=value". The path must name
// exactly one element.
func ParseAssignment(input string) (*Path, string, error) {
	lhs, value, ok := strings.Cut(input, "=")
	if !ok {
		return nil, "", ErrMissingValue
	}
	p, err := ParsePath(lhs)
	if err != nil {
		return nil, "", err
	}
	if !p.IsExact() {
		return nil, "", fmt.Errorf("%w: %q", ErrWildcardSet, p.Raw)
	}
	return p, strings.TrimSpace(value), nil
}

// IsExact reports whether the path names one element with no patterns.
func (p *Path) IsExact() bool {
	for _, part := range []string{p.Device, p.Property, p.Element} {
		if isPattern(part) {
			return false
		}
	}
	return true
}

// MatchDevice reports whether the device part matches name.
func (p *Path) MatchDevice(name string) bool {
	return matchPart(p.Device, name)
}

// MatchProperty reports whether the property part matches name.
func (p *Path) MatchProperty(name string) bool {
	return matchPart(p.Property, name)
}

// MatchElement reports whether the element part matches name.
func (p *Path) MatchElement(name string) bool {
	return matchPart(p.Element, name)
}

// String returns the canonical form.
func (p *Path) String() string {
	return p.Device + "." + p.Property + "." + p.Element
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func matchPart(pattern, name string) bool {
	if pattern == Wildcard {
		return true
	}
	if !isPattern(pattern) {
		return pattern == name
	}
	ok, _ := path.Match(pattern, name)
	return ok
}
