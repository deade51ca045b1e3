// Package timestamp validates and converts the textual date-time format used
// as part of every rate record key: "YYYY/MM/DD hh:mm:ss", zero-padded, no
// timezone. Example of a valid value: "2025/11/01 00:00:00".
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Layout is the exact record-key layout in Go reference time notation.
const Layout = "2006/01/02 15:04:05"

// ErrInvalidTimestamp indicates input that does not match Layout or does not
// denote a real calendar date-time.
var ErrInvalidTimestamp = errors.New("timestamp: invalid date-time text")

// Shape is checked before calendar resolution: wrong separators or missing
// zero-padding never reach time.Parse.
var layoutPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}$`)

// IsValid reports whether s matches Layout exactly and denotes a valid
// calendar date-time. Empty or blank input is invalid, never an error.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Parse strictly parses s against Layout. There is no lenient resolution:
// "2025/02/29 00:00:00" or an hour of 24 fail rather than roll over.
func Parse(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	if !layoutPattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

// Format renders t in the record-key layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// FormatInstant normalizes an RFC 3339 instant (the feed's close_time
// encoding) into the record-key layout. The instant is rendered in UTC; no
// further timezone conversion is applied, matching the assumption that feed
// instants already align with the store's implied zone.
func FormatInstant(iso string) (string, error) {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "", fmt.Errorf("%w: close time %q", ErrInvalidTimestamp, iso)
	}
	return t.UTC().Format(Layout), nil
}
