// Package slot holds the date and time helpers every booking decision is
// built on.  Reservations are stored as a calendar date ("2006-01-02") plus a
// wall-clock time with minute precision ("15:04") in the restaurant's local
// time zone.  All comparisons in this package are done at minute granularity;
// seconds and sub-second parts are dropped before any arithmetic.
package slot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the storage and wire format of reservation dates.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format of reservation times.
	ClockLayout = "15:04"
)

// ErrInvalidDate is returned when a date string cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// ErrInvalidTime is returned when a clock string cannot be parsed.
var ErrInvalidTime = errors.New("invalid time")

// Clock is a wall-clock time expressed as minutes after midnight.  The zero
// value is midnight.  Valid values are in [0, 1440).
type Clock int

// NewClock builds a Clock from an hour and minute pair.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

// ParseClock parses "HH:MM" or "HH:MM:SS" (the form MySQL returns for TIME
// columns).  Seconds, when present, are validated and then discarded.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}
	return NewClock(h, m), nil
}

// ClockOf returns the wall-clock minute of t in t's own location.
func ClockOf(t time.Time) Clock { return NewClock(t.Hour(), t.Minute()) }

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// String formats the clock as "HH:MM".
func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

// Sub returns c - other in minutes.  The result is negative when c is
// earlier than other.
func (c Clock) Sub(other Clock) int { return int(c) - int(other) }

// ParseDate parses a "YYYY-MM-DD" string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Combine joins a date string and a clock string into a single instant in
// loc.  It is the canonical way to turn a stored reservation into a start
// time.
func Combine(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return At(d, c), nil
}

// At places clock c on the calendar day of d, keeping d's location.
func At(d time.Time, c Clock) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, d.Location())
}

// Truncate drops seconds and sub-second precision.
func Truncate(t time.Time) time.Time { return t.Truncate(time.Minute) }

// MinutesBetween returns to - from in whole minutes after truncating both
// instants to the minute.
func MinutesBetween(from, to time.Time) int {
	return int(Truncate(to).Sub(Truncate(from)) / time.Minute)
}

// FormatDate formats t as "YYYY-MM-DD".
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// FormatClock formats t as "HH:MM".
func FormatClock(t time.Time) string { return t.Format(ClockLayout) }

// Split returns the date and clock strings of t in loc.
func Split(t time.Time, loc *time.Location) (string, string) {
	if loc != nil {
		t = t.In(loc)
	}
	return FormatDate(t), FormatClock(t)
}
