// Package system provides the wall clock used to decide what "today" is.
package system

import (
	"fmt"
	"time"
	// Embedded zone database for hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

// DefaultZone is the calendar contest dates are published in.
const DefaultZone = "America/Sao_Paulo"

// Clock implements contest.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a Clock reporting time in loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewInZone loads the named IANA zone; an empty name selects DefaultZone.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fixed always reports the same instant. Useful in tests and for replaying a
// run as of a given day.
type Fixed struct {
	T time.Time
}

// Now returns f.T.
func (f Fixed) Now() time.Time {
	return f.T
}
