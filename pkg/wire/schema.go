package wire

import (
	"fmt"
	"sort"
)

// AttrRule declares one attribute of a message type.
type AttrRule struct {
	// Name is the logical attribute name used by the Go API.
	Name string

	// WireName is the XML attribute name when it differs from Name.
	WireName string

	// Required attributes must be present at construction.
	Required bool

	// Check validates and normalises the value.
	Check Validator
}

// Wire returns the XML attribute name.
func (r AttrRule) Wire() string {
	if r.WireName != "" {
		return r.WireName
	}
	return r.Name
}

// Schema describes one INDI message type.
type Schema struct {
	Tag   Tag
	Kind  Kind
	Value ValueKind

	// Child is the element tag accepted by a vector. Empty for elements.
	Child Tag

	// Rules lists the attributes in wire order.
	Rules []AttrRule
}

// Rule returns the rule for a logical attribute name.
func (s *Schema) Rule(name string) (AttrRule, bool) {
	for _, r := range s.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return AttrRule{}, false
}

// RuleByWire returns the rule for an XML attribute name.
func (s *Schema) RuleByWire(wire string) (AttrRule, bool) {
	for _, r := range s.Rules {
		if r.Wire() == wire {
			return r, true
		}
	}
	return AttrRule{}, false
}

// resolve finds a rule by logical name, falling back to the wire spelling.
func (s *Schema) resolve(name string) (AttrRule, bool) {
	if r, ok := s.Rule(name); ok {
		return r, true
	}
	return s.RuleByWire(name)
}

// Lookup returns the schema registered for tag.
func Lookup(tag Tag) (*Schema, error) {
	s, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, string(tag))
	}
	return s, nil
}

// Tags returns all registered tags in sorted order.
func Tags() []Tag {
	tags := make([]Tag, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Rule constructors keep the table below readable.
func req(name string, check Validator) AttrRule {
	return AttrRule{Name: name, Required: true, Check: check}
}

func opt(name string, check Validator) AttrRule {
	return AttrRule{Name: name, Check: check}
}

func renamed(name, wire string, required bool, check Validator) AttrRule {
	return AttrRule{Name: name, WireName: wire, Required: required, Check: check}
}

// Attribute sets shared by several vector types.
var (
	defVectorRules = []AttrRule{
		req("device", CheckText),
		req("name", CheckText),
		opt("label", CheckText),
		opt("group", CheckText),
		req("state", CheckState),
		req("perm", CheckPerm),
		opt("timeout", CheckNumber),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}

	defSwitchVectorRules = []AttrRule{
		req("device", CheckText),
		req("name", CheckText),
		opt("label", CheckText),
		opt("group", CheckText),
		req("state", CheckState),
		req("perm", CheckPerm),
		req("rule", CheckRule),
		opt("timeout", CheckNumber),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}

	defLightVectorRules = []AttrRule{
		req("device", CheckText),
		req("name", CheckText),
		opt("label", CheckText),
		opt("group", CheckText),
		req("state", CheckState),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}

	setVectorRules = []AttrRule{
		req("device", CheckText),
		req("name", CheckText),
		opt("state", CheckState),
		opt("timeout", CheckNumber),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}

	setLightVectorRules = []AttrRule{
		req("device", CheckText),
		req("name", CheckText),
		opt("state", CheckState),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}

	newVectorRules = []AttrRule{
		req("device", CheckText),
		req("name", CheckText),
		opt("timestamp", CheckTimestamp),
	}

	defMemberRules = []AttrRule{
		req("name", CheckText),
		opt("label", CheckText),
	}

	oneMemberRules = []AttrRule{
		req("name", CheckText),
	}
)

// registry is the process-wide schema table. It is populated during package
// initialisation and treated as read-only afterwards.
var registry = buildRegistry([]*Schema{
	// Property definition members.
	{Tag: TagDefText, Kind: KindElement, Value: ValueText, Rules: defMemberRules},
	{Tag: TagDefNumber, Kind: KindElement, Value: ValueNumber, Rules: []AttrRule{
		req("name", CheckText),
		opt("label", CheckText),
		renamed("iformat", "format", true, CheckText),
		renamed("imin", "min", true, CheckNumber),
		renamed("imax", "max", true, CheckNumber),
		req("step", CheckNumber),
	}},
	{Tag: TagDefSwitch, Kind: KindElement, Value: ValueSwitch, Rules: defMemberRules},
	{Tag: TagDefLight, Kind: KindElement, Value: ValueLight, Rules: defMemberRules},
	{Tag: TagDefBLOB, Kind: KindElement, Value: ValueNone, Rules: defMemberRules},

	// Value members used by set and new vectors.
	{Tag: TagOneText, Kind: KindElement, Value: ValueText, Rules: oneMemberRules},
	{Tag: TagOneNumber, Kind: KindElement, Value: ValueNumber, Rules: oneMemberRules},
	{Tag: TagOneSwitch, Kind: KindElement, Value: ValueSwitch, Rules: oneMemberRules},
	{Tag: TagOneLight, Kind: KindElement, Value: ValueLight, Rules: oneMemberRules},
	{Tag: TagOneBLOB, Kind: KindElement, Value: ValueBLOB, Rules: []AttrRule{
		req("name", CheckText),
		req("size", CheckNumber),
		renamed("iformat", "format", true, CheckText),
		opt("enclen", CheckNumber),
	}},

	// Property definitions.
	{Tag: TagDefTextVector, Kind: KindVector, Child: TagDefText, Rules: defVectorRules},
	{Tag: TagDefNumberVector, Kind: KindVector, Child: TagDefNumber, Rules: defVectorRules},
	{Tag: TagDefSwitchVector, Kind: KindVector, Child: TagDefSwitch, Rules: defSwitchVectorRules},
	{Tag: TagDefLightVector, Kind: KindVector, Child: TagDefLight, Rules: defLightVectorRules},
	{Tag: TagDefBLOBVector, Kind: KindVector, Child: TagDefBLOB, Rules: defVectorRules},

	// Property updates from the server.
	{Tag: TagSetTextVector, Kind: KindVector, Child: TagOneText, Rules: setVectorRules},
	{Tag: TagSetNumberVector, Kind: KindVector, Child: TagOneNumber, Rules: setVectorRules},
	{Tag: TagSetSwitchVector, Kind: KindVector, Child: TagOneSwitch, Rules: setVectorRules},
	{Tag: TagSetLightVector, Kind: KindVector, Child: TagOneLight, Rules: setLightVectorRules},
	{Tag: TagSetBLOBVector, Kind: KindVector, Child: TagOneBLOB, Rules: setVectorRules},

	// Property commands from the client.
	{Tag: TagNewTextVector, Kind: KindVector, Child: TagOneText, Rules: newVectorRules},
	{Tag: TagNewNumberVector, Kind: KindVector, Child: TagOneNumber, Rules: newVectorRules},
	{Tag: TagNewSwitchVector, Kind: KindVector, Child: TagOneSwitch, Rules: newVectorRules},
	{Tag: TagNewBLOBVector, Kind: KindVector, Child: TagOneBLOB, Rules: newVectorRules},

	// Commands and notices.
	{Tag: TagGetProperties, Kind: KindElement, Value: ValueNone, Rules: []AttrRule{
		req("version", CheckText),
		opt("device", CheckText),
		opt("name", CheckText),
	}},
	{Tag: TagEnableBLOB, Kind: KindElement, Value: ValueBLOBMode, Rules: []AttrRule{
		req("device", CheckText),
		opt("name", CheckText),
	}},
	{Tag: TagMessage, Kind: KindElement, Value: ValueNone, Rules: []AttrRule{
		opt("device", CheckText),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}},
	{Tag: TagDelProperty, Kind: KindElement, Value: ValueNone, Rules: []AttrRule{
		req("device", CheckText),
		opt("name", CheckText),
		opt("timestamp", CheckTimestamp),
		opt("message", CheckText),
	}},
})

func buildRegistry(schemas []*Schema) map[Tag]*Schema {
	m := make(map[Tag]*Schema, len(schemas))
	for _, s := range schemas {
		if _, dup := m[s.Tag]; dup {
			panic(fmt.Sprintf("wire: duplicate schema for %q", s.Tag))
		}
		m[s.Tag] = s
	}
	return m
}
