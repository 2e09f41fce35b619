package inspect

import (
	"fmt"

	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/version"
)

// PropertySource is the read side of a property store.
// It is implemented by property.Store.
type PropertySource interface {
	Devices() []string
	Properties(device string) ([]*property.Property, error)
	Get(device, name string) (*property.Property, bool)
}

// ValueWriter sends new element values to a device.
// It is implemented by client.Client.
type ValueWriter interface {
	SetValues(device, name string, values map[string]string) error
}

// Inspector answers path queries against the properties a client has seen.
type Inspector struct {
	source PropertySource
	writer ValueWriter
}

// NewInspector creates a new Inspector. The writer may be nil for read-only
// use.
func NewInspector(source PropertySource, writer ValueWriter) *Inspector {
	return &Inspector{source: source, writer: writer}
}

// DeviceInfo summarises one device for listing.
type DeviceInfo struct {
	Name       string
	Groups     []string
	Properties int
	Connected  bool
}

// Reading is one element value found by Read.
type Reading struct {
	Device   string
	Property string
	Element  string
	Value    string
	State    string
}

// Path returns the reading's location as "device.property.element".
func (r Reading) Path() string {
	return r.Device + "." + r.Property + "." + r.Element
}

// Devices lists the known devices in name order.
func (i *Inspector) Devices() []DeviceInfo {
	var out []DeviceInfo
	for _, name := range i.source.Devices() {
		props, err := i.source.Properties(name)
		if err != nil {
			continue
		}
		info := DeviceInfo{Name: name, Properties: len(props)}
		seen := make(map[string]bool)
		for _, p := range props {
			if p.Group != "" && !seen[p.Group] {
				seen[p.Group] = true
				info.Groups = append(info.Groups, p.Group)
			}
		}
		if conn, ok := i.source.Get(name, "CONNECTION"); ok {
			if e, ok := conn.Element("CONNECT"); ok {
				info.Connected = e.On()
			}
		}
		out = append(out, info)
	}
	return out
}

// Match returns the properties selected by the device and property parts of
// the path, ordered by device, group, then name.
func (i *Inspector) Match(p *Path) []*property.Property {
	var out []*property.Property
	for _, device := range i.source.Devices() {
		if !p.MatchDevice(device) {
			continue
		}
		props, err := i.source.Properties(device)
		if err != nil {
			continue
		}
		for _, prop := range props {
			if p.MatchProperty(prop.Name) {
				out = append(out, prop)
			}
		}
	}
	return out
}

// Read returns the values of every element the path selects.
func (i *Inspector) Read(p *Path) ([]Reading, error) {
	var out []Reading
	for _, prop := range i.Match(p) {
		for _, e := range prop.Elements {
			if !p.MatchElement(e.Name) {
				continue
			}
			out = append(out, Reading{
				Device:   prop.Device,
				Property: prop.Name,
				Element:  e.Name,
				Value:    e.Text(),
				State:    prop.State,
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, p.Raw)
	}
	return out, nil
}

// Write sends value to the single element the path names. The property must
// be known and writable.
func (i *Inspector) Write(p *Path, value string) error {
	if !p.IsExact() {
		return fmt.Errorf("%w: %s", ErrWildcardSet, p.Raw)
	}
	if i.writer == nil {
		return fmt.Errorf("%w: no connection", ErrNotWritable)
	}
	prop, ok := i.source.Get(p.Device, p.Property)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoMatch, p.Device, p.Property)
	}
	if !prop.Writable() {
		return fmt.Errorf("%w: %s.%s", ErrNotWritable, p.Device, p.Property)
	}
	if _, ok := prop.Element(p.Element); !ok {
		return fmt.Errorf("%w: %s", ErrElementMissing, p.Raw)
	}
	return i.writer.SetValues(p.Device, p.Property, map[string]string{p.Element: value})
}

// Check compares a device's properties with the standard catalogue.
func (i *Inspector) Check(device string, c *version.Catalogue) (version.CheckResult, error) {
	props, err := i.source.Properties(device)
	if err != nil {
		return version.CheckResult{}, err
	}
	defined := make([]version.DefinedProperty, 0, len(props))
	for _, p := range props {
		d := version.DefinedProperty{Name: p.Name, Type: string(p.Type), Perm: p.Perm}
		for _, e := range p.Elements {
			d.Elements = append(d.Elements, e.Name)
		}
		defined = append(defined, d)
	}
	return version.CheckDevice(c, defined), nil
}
