package slot

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    Clock
		wantErr bool
	}{
		{name: "hh:mm", input: "18:00", want: NewClock(18, 0)},
		{name: "mysql time", input: "17:25:00", want: NewClock(17, 25)},
		{name: "padded", input: " 09:05 ", want: NewClock(9, 5)},
		{name: "bad hour", input: "24:00", wantErr: true},
		{name: "bad minute", input: "12:60", wantErr: true},
		{name: "single digit minute", input: "12:5", wantErr: true},
		{name: "garbage", input: "noon", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseClock(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTime) {
					t.Fatalf("expected ErrInvalidTime, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestClockSubAndString(t *testing.T) {
	a := NewClock(18, 0)
	b := NewClock(17, 25)
	if d := a.Sub(b); d != 35 {
		t.Fatalf("expected 35 minutes, got %d", d)
	}
	if d := b.Sub(a); d != -35 {
		t.Fatalf("expected -35 minutes, got %d", d)
	}
	if s := b.String(); s != "17:25" {
		t.Fatalf("unexpected format %q", s)
	}
}

func TestCombineAndMinutesBetween(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	start, err := Combine("2026-10-19", "18:00", loc)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if start.Location() != loc || start.Hour() != 18 {
		t.Fatalf("unexpected start %v", start)
	}
	now := start.Add(20*time.Minute + 42*time.Second)
	if m := MinutesBetween(start, now); m != 20 {
		t.Fatalf("expected 20 minutes, got %d", m)
	}
	if _, err := Combine("2026-13-01", "18:00", loc); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestRulesValidate(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	rules := DefaultRules(loc)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, loc)

	cases := []struct {
		name  string
		start time.Time
		want  error
	}{
		{name: "later today", start: time.Date(2026, 10, 19, 19, 0, 0, 0, loc)},
		{name: "opening minute", start: time.Date(2026, 10, 20, 11, 0, 0, 0, loc)},
		{name: "last seating", start: time.Date(2026, 10, 20, 22, 0, 0, 0, loc)},
		{name: "before opening", start: time.Date(2026, 10, 20, 10, 59, 0, 0, loc), want: ErrOutsideOperatingHours},
		{name: "after close", start: time.Date(2026, 10, 20, 22, 1, 0, 0, loc), want: ErrOutsideOperatingHours},
		{name: "earlier today", start: time.Date(2026, 10, 19, 11, 30, 0, 0, loc), want: ErrInPast},
		{name: "exactly two months", start: time.Date(2026, 12, 19, 12, 0, 0, 0, loc)},
		{name: "beyond two months", start: time.Date(2026, 12, 20, 12, 0, 0, 0, loc), want: ErrTooFarAhead},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := rules.Validate(tc.start, now)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var we *WindowError
			if !errors.As(err, &we) || we.Detail == "" {
				t.Fatalf("expected a WindowError with detail, got %#v", err)
			}
		})
	}
}
