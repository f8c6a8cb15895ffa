package daterange

import "time"

// Status is the lifecycle state reported to the relational store.
type Status string

// Status values. Cancelled marks contests whose start date is unknown; a
// missing date is never reported as Open.
const (
	StatusOpen      Status = "Open"
	StatusClosed    Status = "Closed"
	StatusCancelled Status = "Cancelled"
)

// DeriveStatus maps a start date to a Status: absent start is Cancelled, a
// start before today is Closed, anything else is Open.
func DeriveStatus(start, today time.Time) Status {
	if start.IsZero() {
		return StatusCancelled
	}
	if Day(start).Before(Day(today)) {
		return StatusClosed
	}
	return StatusOpen
}
