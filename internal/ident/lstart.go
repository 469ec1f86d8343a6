package ident

import (
	"fmt"
	"strings"
	"time"
)

// ps prints lstart in a locale-dependent textual form. Records written on
// one host may carry a different ordering than the one ps currently emits,
// so the parser accepts every layout the deployment may produce and both
// sides of a comparison are normalized before matching.
var lstartLayouts = []string{
	"Mon Jan _2 15:04:05 2006",     // C locale: "Wed Aug 27 10:15:00 2025"
	"Mon _2 Jan 15:04:05 2006",     // day-before-month locales
	"Mon Jan _2 15:04:05 MST 2006", // some BSDs include the zone
	"Mon _2 Jan 15:04:05 MST 2006",
	"Jan _2 15:04:05 2006", // no weekday
	"_2 Jan 15:04:05 2006",
	time.RFC3339,
}

// StartTimeParser turns a textual process start time into a normalized
// timestamp. A failure means the identity is unverifiable, not that the
// caller hit an error.
type StartTimeParser interface {
	Parse(s string) (time.Time, error)
}

// LayoutParser tries an enumerated list of time layouts in order.
type LayoutParser struct {
	Layouts []string
	// Location resolves zone-less layouts; defaults to the local zone,
	// which is where ps reports start times.
	Location *time.Location
}

// NewParser returns a parser covering all known lstart layouts.
func NewParser() *LayoutParser {
	return &LayoutParser{Layouts: lstartLayouts}
}

func (p *LayoutParser) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty start time")
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range p.Layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start time format: %q", s)
}
