package wire

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Validator checks a value and returns it in canonical stored form.
type Validator func(v any) (any, error)

// CheckText accepts strings. Numbers are converted to their text form.
func CheckText(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	if f, ok := toFloat(v); ok {
		return FormatNumber(f), nil
	}
	return nil, fmt.Errorf("%w: %v (%T) is not text", ErrInvalidAttributeValue, v, v)
}

// CheckNumber accepts Go numbers and decimal strings, returning float64.
// Sexagesimal strings ("12:30:00") are passed through unchanged; use
// ParseSexagesimal or Element.Float to convert them.
func CheckNumber(v any) (any, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: %q is not a finite number", ErrInvalidAttributeValue, s)
			}
			return f, nil
		}
		if isSexagesimal(s) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %q is not a valid number", ErrInvalidAttributeValue, s)
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a valid number", ErrInvalidAttributeValue, v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v is not a finite number", ErrInvalidAttributeValue, f)
	}
	return f, nil
}

// CheckSwitch accepts a bool or the case-insensitive strings "on"/"off" and
// returns "On" or "Off".
func CheckSwitch(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return SwitchOn, nil
		}
		return SwitchOff, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on":
			return SwitchOn, nil
		case "off":
			return SwitchOff, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidSwitchValue, v)
}

// CheckState accepts Idle, Ok, Busy or Alert in any case.
func CheckState(v any) (any, error) {
	return checkKeyword(v, "state", StateIdle, StateOk, StateBusy, StateAlert)
}

// CheckPerm accepts ro, wo or rw.
func CheckPerm(v any) (any, error) {
	return checkKeyword(v, "permission", PermRO, PermWO, PermRW)
}

// CheckRule accepts OneOfMany, AtMostOne or AnyOfMany.
func CheckRule(v any) (any, error) {
	return checkKeyword(v, "switch rule", RuleOneOfMany, RuleAtMostOne, RuleAnyOfMany)
}

// CheckBLOBMode accepts Never, Also or Only.
func CheckBLOBMode(v any) (any, error) {
	return checkKeyword(v, "BLOB mode", BLOBNever, BLOBAlso, BLOBOnly)
}

// CheckTimestamp accepts a time.Time or an INDI timestamp string and
// returns a UTC time.Time.
func CheckTimestamp(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		ts, err := ParseTimestamp(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAttributeValue, err)
		}
		return ts, nil
	}
	return nil, fmt.Errorf("%w: %v (%T) is not a timestamp", ErrInvalidAttributeValue, v, v)
}

// CheckBLOB accepts a byte slice or a string and returns a private copy.
func CheckBLOB(v any) (any, error) {
	switch t := v.(type) {
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out, nil
	case string:
		return []byte(t), nil
	}
	return nil, fmt.Errorf("%w: %T is not a BLOB payload", ErrInvalidAttributeValue, v)
}

func checkKeyword(v any, what string, allowed ...string) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a %s", ErrInvalidAttributeValue, v, v, what)
	}
	s = strings.TrimSpace(s)
	for _, a := range allowed {
		if strings.EqualFold(s, a) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidAttributeValue, s, what)
}

// valueCheck returns the validator for an element value kind.
func valueCheck(k ValueKind) Validator {
	switch k {
	case ValueText:
		return CheckText
	case ValueNumber:
		return CheckNumber
	case ValueSwitch:
		return CheckSwitch
	case ValueLight:
		return CheckState
	case ValueBLOB:
		return CheckBLOB
	case ValueBLOBMode:
		return CheckBLOBMode
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FormatNumber renders a number as the shortest decimal that parses back to
// the same float64. Very large and very small magnitudes use exponent form.
func FormatNumber(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatValue renders a stored value in its canonical wire form.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return FormatNumber(t)
	case time.Time:
		return FormatTimestamp(t)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case bool:
		if t {
			return SwitchOn
		}
		return SwitchOff
	}
	if f, ok := toFloat(v); ok {
		return FormatNumber(f)
	}
	return fmt.Sprint(v)
}
