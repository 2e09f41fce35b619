package wire

import (
	"fmt"

	"github.com/indi-protocol/indi-go/pkg/version"
)

// The helpers below build the messages a client sends most often. Element
// helpers do not validate their arguments; Encode does.

// OneText returns a oneText member.
func OneText(name, value string) *Element {
	return newElement(TagOneText, value, Attrs{"name": name})
}

// OneNumber returns a oneNumber member.
func OneNumber(name string, value float64) *Element {
	return newElement(TagOneNumber, value, Attrs{"name": name})
}

// OneSwitch returns a oneSwitch member set On or Off.
func OneSwitch(name string, on bool) *Element {
	v := SwitchOff
	if on {
		v = SwitchOn
	}
	return newElement(TagOneSwitch, v, Attrs{"name": name})
}

// OneLight returns a oneLight member with the given state.
func OneLight(name, state string) *Element {
	return newElement(TagOneLight, state, Attrs{"name": name})
}

// OneBLOB returns a oneBLOB member. Size is the unencoded payload length and
// format the file suffix, e.g. ".fits" or ".fits.z".
func OneBLOB(name string, data []byte, format string) *Element {
	return newElement(TagOneBLOB, data, Attrs{
		"name":    name,
		"size":    float64(len(data)),
		"iformat": format,
	})
}

// GetProperties returns a getProperties request. Empty device or name widen
// the query to all devices or all properties of the device.
func GetProperties(device, name string) *Element {
	attrs := Attrs{"version": version.Current}
	if device != "" {
		attrs["device"] = device
	}
	if name != "" {
		attrs["name"] = name
	}
	return newElement(TagGetProperties, nil, attrs)
}

// EnableBLOB returns an enableBLOB command selecting mode (Never, Also or
// Only) for a device or one of its BLOB properties.
func EnableBLOB(device, name, mode string) *Element {
	attrs := Attrs{"device": device}
	if name != "" {
		attrs["name"] = name
	}
	return newElement(TagEnableBLOB, mode, attrs)
}

// NewTextVector returns a newTextVector command.
func NewTextVector(device, name string, members ...*Element) (*Vector, error) {
	return NewVector(TagNewTextVector, Attrs{"device": device, "name": name}, members...)
}

// NewNumberVector returns a newNumberVector command.
func NewNumberVector(device, name string, members ...*Element) (*Vector, error) {
	return NewVector(TagNewNumberVector, Attrs{"device": device, "name": name}, members...)
}

// NewSwitchVector returns a newSwitchVector command.
func NewSwitchVector(device, name string, members ...*Element) (*Vector, error) {
	return NewVector(TagNewSwitchVector, Attrs{"device": device, "name": name}, members...)
}

// NewBLOBVector returns a newBLOBVector command.
func NewBLOBVector(device, name string, members ...*Element) (*Vector, error) {
	return NewVector(TagNewBLOBVector, Attrs{"device": device, "name": name}, members...)
}

// NewCommand returns the new*Vector command matching a definition or update
// tag, e.g. defNumberVector -> newNumberVector. Light vectors have no command.
func NewCommand(tag Tag) (Tag, bool) {
	switch tag {
	case TagDefTextVector, TagSetTextVector, TagNewTextVector:
		return TagNewTextVector, true
	case TagDefNumberVector, TagSetNumberVector, TagNewNumberVector:
		return TagNewNumberVector, true
	case TagDefSwitchVector, TagSetSwitchVector, TagNewSwitchVector:
		return TagNewSwitchVector, true
	case TagDefBLOBVector, TagSetBLOBVector, TagNewBLOBVector:
		return TagNewBLOBVector, true
	}
	return "", false
}

// Member builds the one* element used by a new*Vector command. The value is
// converted from its text form, so "1.5", "On" and "12:30:00" all work.
func Member(command Tag, name, value string) (*Element, error) {
	s, err := Lookup(command)
	if err != nil {
		return nil, err
	}
	if s.Kind != KindVector {
		return nil, fmt.Errorf("%w: %s is not a vector", ErrUnknownMessageType, command)
	}
	return NewElement(s.Child, value, Attrs{"name": name})
}
