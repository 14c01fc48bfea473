package booking

import (
	"errors"
	"testing"
	"time"
)

func TestDecideCheckIn(t *testing.T) {
	start := time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC)
	paid := CheckInSubject{Code: "BK0000000001", Status: StatusReserve, Payment: PaymentSuccess, Start: start}

	cases := []struct {
		name    string
		subject CheckInSubject
		at      time.Time
		want    CheckInDecision
		err     error
	}{
		{name: "on time", subject: paid, at: start, want: CheckInSeat},
		{name: "window opens", subject: paid, at: start.Add(-5 * time.Minute), want: CheckInSeat},
		{name: "window closes", subject: paid, at: start.Add(15 * time.Minute), want: CheckInSeat},
		{name: "too early", subject: paid, at: start.Add(-6 * time.Minute), want: CheckInRejected, err: ErrTooEarly},
		// Twenty minutes late.
		{name: "expired", subject: paid, at: start.Add(20 * time.Minute), want: CheckInNoShow, err: ErrCheckInExpired},
		{name: "already scanned", subject: func() CheckInSubject { s := paid; s.QRScanned = true; s.Status = StatusSeated; return s }(),
			at: start, want: CheckInRejected, err: ErrAlreadyScanned},
		{name: "no show", subject: func() CheckInSubject { s := paid; s.Status = StatusNoShow; return s }(),
			at: start.Add(21 * time.Minute), want: CheckInRejected, err: ErrAlreadyFinalized},
		{name: "unpaid", subject: func() CheckInSubject { s := paid; s.Payment = PaymentPlaced; return s }(),
			at: start, want: CheckInRejected, err: ErrPaymentIncomplete},
		{name: "still a cart", subject: func() CheckInSubject { s := paid; s.Status = StatusPending; s.Payment = PaymentPending; return s }(),
			at: start, want: CheckInRejected, err: ErrIllegalTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecideCheckIn(tc.subject, tc.at)
			if got != tc.want {
				t.Fatalf("expected decision %d, got %d", tc.want, got)
			}
			if tc.err == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestCheckInErrorCarriesWindow(t *testing.T) {
	start := time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC)
	_, err := DecideCheckIn(CheckInSubject{Code: "BK1", Status: StatusReserve, Payment: PaymentSuccess, Start: start},
		start.Add(-time.Hour))
	var ce *CheckInError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CheckInError, got %v", err)
	}
	if !ce.WindowOpen.Equal(start.Add(-5*time.Minute)) || !ce.WindowClose.Equal(start.Add(15*time.Minute)) {
		t.Fatalf("unexpected window %s - %s", ce.WindowOpen, ce.WindowClose)
	}
	if ce.Error() == "" {
		t.Fatal("empty message")
	}
}
