package wire

import (
	"errors"
	"fmt"
)

// Message errors.
var (
	// ErrUnknownMessageType indicates a tag that is not in the registry.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrMissingRequiredAttribute indicates a required attribute is absent.
	ErrMissingRequiredAttribute = errors.New("missing required attribute")

	// ErrUnexpectedAttribute indicates an attribute not declared for the tag.
	ErrUnexpectedAttribute = errors.New("unexpected attribute")

	// ErrInvalidAttributeValue indicates a value rejected by its validator.
	ErrInvalidAttributeValue = errors.New("invalid attribute value")

	// ErrInvalidSwitchValue indicates a switch value other than On/Off.
	ErrInvalidSwitchValue = fmt.Errorf("%w: invalid switch value", ErrInvalidAttributeValue)

	// ErrAttributeNotFound indicates a lookup of an attribute that is not set.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrInvalidChild indicates a vector child of the wrong tag.
	ErrInvalidChild = errors.New("invalid child element")
)

// AttributeError reports a problem with one attribute of a message.
type AttributeError struct {
	Tag  Tag
	Attr string
	Err  error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("%s: attribute %q: %v", e.Tag, e.Attr, e.Err)
}

func (e *AttributeError) Unwrap() error {
	return e.Err
}

// DecodeError reports a message that could not be decoded. Device and Name
// are filled from the raw attributes when present so callers can tell which
// property was affected.
type DecodeError struct {
	Tag    string
	Device string
	Name   string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Device != "" || e.Name != "" {
		return fmt.Sprintf("decode %s (%s.%s): %v", e.Tag, e.Device, e.Name, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
