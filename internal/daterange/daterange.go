// Package daterange extracts contest date windows from free-form text and
// classifies them against the current day.
package daterange

import (
	"fmt"
	"regexp"
	"time"
)

// Layout is the wire format of a contest date ("DD/MM/YYYY").
const Layout = "02/01/2006"

var (
	rangePattern  = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s+a\s+(\d{2}/\d{2}/\d{4})`)
	singlePattern = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
)

// Range is a parsed date window. A zero bound means the bound is absent.
type Range struct {
	Start time.Time
	End   time.Time
}

// HasStart reports whether a start date was parsed.
func (r Range) HasStart() bool { return !r.Start.IsZero() }

// HasEnd reports whether an end date was parsed.
func (r Range) HasEnd() bool { return !r.End.IsZero() }

// Undated reports whether neither bound could be parsed.
func (r Range) Undated() bool { return !r.HasStart() && !r.HasEnd() }

// Expired applies IsExpired to the range.
func (r Range) Expired(today time.Time) bool {
	return IsExpired(r.Start, r.End, today)
}

// StartString formats the start bound, or returns nil when absent.
func (r Range) StartString() *string { return formatPtr(r.Start) }

// EndString formats the end bound, or returns nil when absent.
func (r Range) EndString() *string { return formatPtr(r.End) }

// Parse extracts a window from raw text. "DD/MM/YYYY a DD/MM/YYYY" yields both
// bounds; otherwise the first lone date becomes the start. Text without a
// recognizable date, or with digits that do not form a calendar date, yields
// absent bounds rather than an error.
func Parse(raw string) Range {
	if m := rangePattern.FindStringSubmatch(raw); m != nil {
		return Range{Start: parseOrZero(m[1]), End: parseOrZero(m[2])}
	}
	if m := singlePattern.FindString(raw); m != "" {
		return Range{Start: parseOrZero(m)}
	}
	return Range{}
}

// ParseDate parses a single DD/MM/YYYY date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, &DateParseError{Raw: s, Err: err}
	}
	return t, nil
}

// ParsePtr parses an optional persisted date; nil or malformed input yields
// the zero time.
func ParsePtr(s *string) time.Time {
	if s == nil {
		return time.Time{}
	}
	return parseOrZero(*s)
}

// Format renders t in Layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// IsExpired classifies a window against today. The end bound decides when
// present, then the start bound; an undated window is never expired.
func IsExpired(start, end, today time.Time) bool {
	day := Day(today)
	switch {
	case !end.IsZero():
		return Day(end).Before(day)
	case !start.IsZero():
		return Day(start).Before(day)
	default:
		return false
	}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateParseError reports malformed date digits. Parse never returns it; it
// surfaces only from ParseDate.
type DateParseError struct {
	Raw string
	Err error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse date %q: %v", e.Raw, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

func parseOrZero(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatPtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := Format(t)
	return &s
}
