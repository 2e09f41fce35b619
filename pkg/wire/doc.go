// Package wire defines the INDI message model and its XML wire format.
//
// INDI messages are XML elements exchanged over a plain TCP stream. Each
// top-level element is one message; its tag names the message type. There is
// no length prefix and no terminator, so framing is handled separately by the
// transport package. This package covers everything that happens once a
// complete element is in hand.
//
// # Message Shapes
//
// Every registered tag is one of two shapes:
//   - Element: a single value (text, number, switch, light, BLOB, BLOB mode)
//     plus attributes. Examples: oneNumber, defSwitch, getProperties.
//   - Vector: an ordered list of child elements plus attributes describing the
//     owning property (device, name, state, perm, ...). Examples:
//     defNumberVector, setBLOBVector, newSwitchVector.
//
// # Schema Registry
//
// The registry maps each tag to its shape, its value kind and the ordered list
// of attribute rules. It is built once at package initialisation and never
// mutated. Constructors validate against it; the encoder walks it to emit
// attributes in a stable order; the decoder uses it to map wire names back to
// logical names.
//
// # Attribute Names
//
// Attributes are addressed by logical name. Three logical names differ from
// the wire name:
//
//	iformat  <->  format
//	imin     <->  min
//	imax     <->  max
//
// Constructors also accept the wire spelling and store it under the logical
// name.
//
// # Attribute Values
//
// Stored attribute and element values are always one of:
//   - string (text, switch/light/state/perm/rule keywords, sexagesimal numbers)
//   - float64 (numbers)
//   - time.Time (timestamps, UTC)
//   - []byte (BLOB payloads, element values only)
//
// Attribute-only messages (getProperties, message, delProperty, defBLOB)
// carry a nil value.
package wire
