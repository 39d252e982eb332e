package types

import (
	"fmt"
	"time"
)

// DateLayout is the canonical expiration date layout.
const DateLayout = "2006/01/02"

var dateLayouts = []string{DateLayout, "2006-01-02"}

// ParseDate parses an expiration date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q, expected YYYY/MM/DD", s)
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
