package wire

// Tag is an INDI message type name, used verbatim as the XML element name.
type Tag string

// Element tags.
const (
	TagDefText   Tag = "defText"
	TagDefNumber Tag = "defNumber"
	TagDefSwitch Tag = "defSwitch"
	TagDefLight  Tag = "defLight"
	TagDefBLOB   Tag = "defBLOB"

	TagOneText   Tag = "oneText"
	TagOneNumber Tag = "oneNumber"
	TagOneSwitch Tag = "oneSwitch"
	TagOneLight  Tag = "oneLight"
	TagOneBLOB   Tag = "oneBLOB"
)

// Vector tags.
const (
	TagDefTextVector   Tag = "defTextVector"
	TagDefNumberVector Tag = "defNumberVector"
	TagDefSwitchVector Tag = "defSwitchVector"
	TagDefLightVector  Tag = "defLightVector"
	TagDefBLOBVector   Tag = "defBLOBVector"

	TagSetTextVector   Tag = "setTextVector"
	TagSetNumberVector Tag = "setNumberVector"
	TagSetSwitchVector Tag = "setSwitchVector"
	TagSetLightVector  Tag = "setLightVector"
	TagSetBLOBVector   Tag = "setBLOBVector"

	TagNewTextVector   Tag = "newTextVector"
	TagNewNumberVector Tag = "newNumberVector"
	TagNewSwitchVector Tag = "newSwitchVector"
	TagNewBLOBVector   Tag = "newBLOBVector"
)

// Command and notice tags.
const (
	TagGetProperties Tag = "getProperties"
	TagEnableBLOB    Tag = "enableBLOB"
	TagMessage       Tag = "message"
	TagDelProperty   Tag = "delProperty"
)

// Kind is the shape of a message.
type Kind uint8

const (
	// KindElement is a single-valued message.
	KindElement Kind = 0
	// KindVector is a message carrying an ordered list of child elements.
	KindVector Kind = 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "ELEMENT"
	case KindVector:
		return "VECTOR"
	default:
		return "UNKNOWN"
	}
}

// ValueKind identifies how an element's text content is interpreted.
type ValueKind uint8

const (
	// ValueNone marks attribute-only messages.
	ValueNone ValueKind = iota
	// ValueText is free text.
	ValueText
	// ValueNumber is a decimal or sexagesimal number.
	ValueNumber
	// ValueSwitch is On or Off.
	ValueSwitch
	// ValueLight is one of the property states.
	ValueLight
	// ValueBLOB is a base64 encoded byte payload.
	ValueBLOB
	// ValueBLOBMode is Never, Also or Only.
	ValueBLOBMode
)

// String returns the value kind name.
func (k ValueKind) String() string {
	switch k {
	case ValueNone:
		return "NONE"
	case ValueText:
		return "TEXT"
	case ValueNumber:
		return "NUMBER"
	case ValueSwitch:
		return "SWITCH"
	case ValueLight:
		return "LIGHT"
	case ValueBLOB:
		return "BLOB"
	case ValueBLOBMode:
		return "BLOB_MODE"
	default:
		return "UNKNOWN"
	}
}

// Switch values.
const (
	SwitchOn  = "On"
	SwitchOff = "Off"
)

// Property states, also used as light values.
const (
	StateIdle  = "Idle"
	StateOk    = "Ok"
	StateBusy  = "Busy"
	StateAlert = "Alert"
)

// Property permissions.
const (
	PermRO = "ro"
	PermWO = "wo"
	PermRW = "rw"
)

// Switch vector rules.
const (
	RuleOneOfMany = "OneOfMany"
	RuleAtMostOne = "AtMostOne"
	RuleAnyOfMany = "AnyOfMany"
)

// BLOB delivery modes for enableBLOB.
const (
	BLOBNever = "Never"
	BLOBAlso  = "Also"
	BLOBOnly  = "Only"
)
