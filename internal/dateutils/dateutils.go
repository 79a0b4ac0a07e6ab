// Package dateutils parses the date literals found in bank statements.
package dateutils

import (
	"fmt"
	"strings"
	"time"
)

// Accepted statement date layouts.
const (
	DateLayoutISO    = "2006-01-02"
	DateLayoutPolish = "02.01.2006"
)

// StatementFormats lists the only layouts a statement date may use.
var StatementFormats = []string{DateLayoutISO, DateLayoutPolish}

// ParseStatementDate parses "YYYY-MM-DD" or "DD.MM.YYYY" as a UTC date.
func ParseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range StatementFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date %q (want YYYY-MM-DD or DD.MM.YYYY)", s)
}

// FormatISO renders a date as YYYY-MM-DD, or "" for the zero time.
func FormatISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayoutISO)
}
