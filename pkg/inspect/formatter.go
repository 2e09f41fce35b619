package inspect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/indi-protocol/indi-go/pkg/property"
	"github.com/indi-protocol/indi-go/pkg/wire"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes perm, rule, limits and format information
	ShowMetadata bool

	// ShowLabels prints labels next to names when they differ
	ShowLabels bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		ShowLabels:   false,
		IndentWidth:  2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	indent := strings.Repeat(" ", depth*width)
	return indent + content
}

// FormatValue formats a wire value for display.
func (f *Formatter) FormatValue(value any) string {
	if value == nil {
		return "-"
	}

	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case float64:
		return wire.FormatNumber(v)
	case []byte:
		return FormatSize(len(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatSize formats a byte count.
func FormatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// FormatState returns a fixed-width state tag such as "[Ok   ]".
func FormatState(state string) string {
	if state == "" {
		state = "?"
	}
	return fmt.Sprintf("[%-5s]", state)
}

// FormatElement formats one element line of a property.
func (f *Formatter) FormatElement(p *property.Property, e property.Element) string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	if f.ShowLabels && e.Label != "" && e.Label != e.Name {
		sb.WriteString(fmt.Sprintf(" (%s)", e.Label))
	}
	sb.WriteString(" = ")

	switch {
	case e.Value == nil:
		sb.WriteString("-")
	case p.Type == property.TypeBLOB:
		if b, ok := e.Value.([]byte); ok {
			sb.WriteString(FormatSize(len(b)))
		}
		if e.Format != "" {
			sb.WriteString(" " + e.Format)
		}
	default:
		sb.WriteString(e.Text())
	}

	if f.ShowMetadata && p.Type == property.TypeNumber {
		sb.WriteString(fmt.Sprintf("  [%s .. %s step %s, %s]",
			wire.FormatNumber(e.Min), wire.FormatNumber(e.Max), wire.FormatNumber(e.Step), e.Format))
	}
	return sb.String()
}

// FormatProperty formats a property header followed by its elements.
func (f *Formatter) FormatProperty(p *property.Property) string {
	var sb strings.Builder
	sb.WriteString(f.propertyHeader(p))
	sb.WriteString("\n")
	for _, e := range p.Elements {
		sb.WriteString(f.Indent(1, f.FormatElement(p, e)))
		sb.WriteString("\n")
	}
	if p.Message != "" {
		sb.WriteString(f.Indent(1, "message: "+p.Message))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *Formatter) propertyHeader(p *property.Property) string {
	var sb strings.Builder
	sb.WriteString(FormatState(p.State))
	sb.WriteString(" ")
	sb.WriteString(p.Name)
	if f.ShowLabels && p.Label != "" && p.Label != p.Name {
		sb.WriteString(fmt.Sprintf(" (%s)", p.Label))
	}
	sb.WriteString(" " + string(p.Type))
	if f.ShowMetadata {
		var meta []string
		if p.Perm != "" {
			meta = append(meta, p.Perm)
		}
		if p.Rule != "" {
			meta = append(meta, p.Rule)
		}
		if p.Timeout > 0 {
			meta = append(meta, "timeout "+wire.FormatNumber(p.Timeout)+"s")
		}
		if len(meta) > 0 {
			sb.WriteString(" {" + strings.Join(meta, ", ") + "}")
		}
	}
	return sb.String()
}

// FormatDevice formats every property of one device, grouped by group name.
func (f *Formatter) FormatDevice(device string, props []*property.Property) string {
	if len(props) == 0 {
		return device + "\n" + f.Indent(1, "(no properties)") + "\n"
	}

	groups := make(map[string][]*property.Property)
	for _, p := range props {
		groups[p.Group] = append(groups[p.Group], p)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(device + "\n")
	for _, g := range names {
		title := g
		if title == "" {
			title = "(ungrouped)"
		}
		sb.WriteString(f.Indent(1, title+"\n"))
		for _, p := range groups[g] {
			for _, line := range strings.Split(strings.TrimRight(f.FormatProperty(p), "\n"), "\n") {
				sb.WriteString(f.Indent(2, line))
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// FormatDeviceTable formats a list of devices as a table.
func (f *Formatter) FormatDeviceTable(rows []DeviceInfo) string {
	if len(rows) == 0 {
		return "  (no devices)"
	}

	var sb strings.Builder
	for _, row := range rows {
		status := "disconnected"
		if row.Connected {
			status = "connected"
		}
		sb.WriteString(fmt.Sprintf("  %s: %d properties, %s", row.Name, row.Properties, status))
		if f.ShowMetadata && len(row.Groups) > 0 {
			sb.WriteString(fmt.Sprintf(" (%s)", strings.Join(row.Groups, ", ")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatReadings formats element values one per line as "path = value".
func (f *Formatter) FormatReadings(readings []Reading) string {
	var sb strings.Builder
	for _, r := range readings {
		sb.WriteString(r.Path())
		sb.WriteString(" = ")
		sb.WriteString(r.Value)
		if f.ShowMetadata && r.State != "" {
			sb.WriteString(" " + FormatState(r.State))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatMessage returns a one-line summary of a protocol message.
func (f *Formatter) FormatMessage(m wire.Message) string {
	var sb strings.Builder
	sb.WriteString(string(m.Tag()))

	if loc := location(m); loc != "" {
		sb.WriteString(" " + loc)
	}
	if state := m.AttrString("state"); state != "" {
		sb.WriteString(" " + FormatState(state))
	}

	switch v := m.(type) {
	case *wire.Vector:
		parts := make([]string, 0, v.Len())
		for _, c := range v.Children() {
			parts = append(parts, c.Name()+"="+memberText(c))
		}
		if len(parts) > 0 {
			sb.WriteString(" " + strings.Join(parts, " "))
		}
	case *wire.Element:
		if v.Value() != nil {
			sb.WriteString(" " + f.FormatValue(v.Value()))
		}
	}

	if msg := m.AttrString("message"); msg != "" {
		sb.WriteString(fmt.Sprintf(" %q", msg))
	}
	return sb.String()
}

// FormatChange returns a one-line summary of a property store change.
func (f *Formatter) FormatChange(c property.Change) string {
	p := c.Property
	line := fmt.Sprintf("%-7s %s.%s", c.Kind, p.Device, p.Name)
	if c.Kind == property.ChangeDeleted {
		return line
	}
	parts := make([]string, 0, len(p.Elements))
	for _, e := range p.Elements {
		if e.Value == nil {
			continue
		}
		parts = append(parts, e.Name+"="+e.Text())
	}
	line += " " + FormatState(p.State)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, " ")
	}
	return line
}

func location(m wire.Message) string {
	device, name := m.Device(), m.Name()
	switch {
	case device != "" && name != "":
		return device + "." + name
	case device != "":
		return device
	default:
		return name
	}
}

func memberText(e *wire.Element) string {
	switch v := e.Value().(type) {
	case nil:
		return "-"
	case []byte:
		return FormatSize(len(v))
	}
	return e.Text()
}
