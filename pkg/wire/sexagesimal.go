package wire

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseSexagesimal converts "dd:mm:ss.s", "dd:mm", "dd mm ss" or a plain
// decimal string to a float64. A leading sign applies to the whole value.
func ParseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrInvalidAttributeValue)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: %q is not sexagesimal", ErrInvalidAttributeValue, s)
	}

	var value float64
	scale := 1.0
	for _, field := range fields {
		part, err := strconv.ParseFloat(field, 64)
		if err != nil || part < 0 || math.IsInf(part, 0) || math.IsNaN(part) {
			return 0, fmt.Errorf("%w: %q is not sexagesimal", ErrInvalidAttributeValue, s)
		}
		value += part / scale
		scale *= 60
	}
	if neg {
		value = -value
	}
	return value, nil
}

// isSexagesimal reports whether s has at least two sexagesimal fields.
func isSexagesimal(s string) bool {
	if !strings.ContainsAny(s, ":; \t") {
		return false
	}
	_, err := ParseSexagesimal(s)
	return err == nil
}

// sexaFormat matches the INDI "%<w>.<f>m" sexagesimal printf extension.
var sexaFormat = regexp.MustCompile(`^%0?(\d*)\.(\d+)m$`)

// FormatNumberAs renders v using a defNumber format attribute. Standard
// printf verbs are passed to fmt; the INDI "m" verb produces sexagesimal
// output where the precision selects the layout:
//
//	%<w>.3m  ->  d:mm
//	%<w>.5m  ->  d:mm.m
//	%<w>.6m  ->  d:mm:ss
//	%<w>.8m  ->  d:mm:ss.s
//	%<w>.9m  ->  d:mm:ss.ss
//
// An empty format falls back to FormatNumber.
func FormatNumberAs(format string, v float64) string {
	if format == "" {
		return FormatNumber(v)
	}
	if m := sexaFormat.FindStringSubmatch(format); m != nil {
		w, _ := strconv.Atoi(m[1])
		f, _ := strconv.Atoi(m[2])
		return formatSexa(v, w-f, sexaFracBase(f))
	}

	switch format[len(format)-1] {
	case 'd', 'i', 'u':
		f := format[:len(format)-1] + "d"
		return fmt.Sprintf(f, int64(math.Round(v)))
	case 'x', 'X', 'o':
		return fmt.Sprintf(format, int64(math.Round(v)))
	case 'e', 'E', 'f', 'F', 'g', 'G':
		return fmt.Sprintf(format, v)
	default:
		return FormatNumber(v)
	}
}

func sexaFracBase(precision int) int64 {
	switch precision {
	case 9:
		return 360000
	case 8:
		return 36000
	case 6:
		return 3600
	case 5:
		return 600
	default:
		return 60
	}
}

func formatSexa(a float64, w int, fracbase int64) string {
	if w < 0 {
		w = 0
	}
	neg := a < 0
	if neg {
		a = -a
	}
	n := int64(a*float64(fracbase) + 0.5)
	d := n / fracbase
	f := n % fracbase

	var b strings.Builder
	switch {
	case neg && d == 0:
		fmt.Fprintf(&b, "%*s-0", max(w-2, 0), "")
	case neg:
		fmt.Fprintf(&b, "%*d", w, -d)
	default:
		fmt.Fprintf(&b, "%*d", w, d)
	}

	switch fracbase {
	case 60:
		fmt.Fprintf(&b, ":%02d", f)
	case 600:
		fmt.Fprintf(&b, ":%02d.%1d", f/10, f%10)
	case 3600:
		fmt.Fprintf(&b, ":%02d:%02d", f/60, f%60)
	case 36000:
		s := f % 600
		fmt.Fprintf(&b, ":%02d:%02d.%1d", f/600, s/10, s%10)
	case 360000:
		s := f % 6000
		fmt.Fprintf(&b, ":%02d:%02d.%02d", f/6000, s/100, s%100)
	}
	return b.String()
}
