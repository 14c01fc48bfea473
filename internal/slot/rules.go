package slot

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOutsideOperatingHours means the requested time is before opening
	// or after the last seating.
	ErrOutsideOperatingHours = errors.New("time outside operating hours")
	// ErrTooFarAhead means the requested date is beyond the advance booking
	// horizon.
	ErrTooFarAhead = errors.New("date too far in advance")
	// ErrInPast means the requested start has already passed.
	ErrInPast = errors.New("time is in the past")
)

// WindowError describes why a requested reservation start was refused.  It
// wraps one of the sentinel errors above so callers can use errors.Is.
type WindowError struct {
	Reason    error
	Requested time.Time
	Detail    string
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *WindowError) Unwrap() error { return e.Reason }

// Rules captures the restaurant's booking window.  Open and Close bound the
// accepted start times (both inclusive); MaxAdvanceMonths caps how far
// ahead a date may be booked.
type Rules struct {
	Open             Clock
	Close            Clock
	MaxAdvanceMonths int
	Location         *time.Location
}

// DefaultRules returns 11:00–22:00, two months ahead, in loc.
func DefaultRules(loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{Open: NewClock(11, 0), Close: NewClock(22, 0), MaxAdvanceMonths: 2, Location: loc}
}

// Validate checks an online reservation start against the booking window.
// now is the current instant; it is converted into the rules' location so
// "today" is the restaurant's today.
func (r Rules) Validate(start, now time.Time) error {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	start = Truncate(start.In(loc))
	now = Truncate(now.In(loc))

	c := ClockOf(start)
	if c < r.Open || c > r.Close {
		return &WindowError{
			Reason:    ErrOutsideOperatingHours,
			Requested: start,
			Detail:    fmt.Sprintf("requested %s, bookings are accepted between %s and %s", c, r.Open, r.Close),
		}
	}
	if start.Before(now) {
		return &WindowError{
			Reason:    ErrInPast,
			Requested: start,
			Detail:    fmt.Sprintf("requested %s %s is before now (%s %s)", FormatDate(start), c, FormatDate(now), ClockOf(now)),
		}
	}
	if r.MaxAdvanceMonths > 0 {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		limit := today.AddDate(0, r.MaxAdvanceMonths, 0)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		if day.After(limit) {
			return &WindowError{
				Reason:    ErrTooFarAhead,
				Requested: start,
				Detail:    fmt.Sprintf("requested %s, latest bookable date is %s", FormatDate(day), FormatDate(limit)),
			}
		}
	}
	return nil
}
