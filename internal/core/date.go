package core

import (
	"strings"
	"time"
)

// dateLayouts lists the date shapes accepted in transaction rows, most
// common first. Slash dates are read month first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"2006-1-2",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006-01",
	"2006",
}

// ParseDate parses a transaction date string. The second result is false
// when no accepted layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Year returns the calendar year of a transaction date string.
func Year(s string) (int, bool) {
	t, ok := ParseDate(s)
	if !ok {
		return 0, false
	}
	return t.Year(), true
}
