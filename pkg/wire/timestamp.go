package wire

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the INDI timestamp format. Timestamps are UTC and carry
// no zone designator; fractional seconds are optional.
const TimestampLayout = "2006-01-02T15:04:05"

// timestampOutLayout drops trailing zero fractions when formatting.
const timestampOutLayout = "2006-01-02T15:04:05.999999999"

// FormatTimestamp renders t in INDI form, converted to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampOutLayout)
}

// ParseTimestamp parses an INDI timestamp. A trailing "Z" or an RFC 3339
// offset is tolerated since some servers emit one.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
