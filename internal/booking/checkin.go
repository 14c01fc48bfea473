package booking

import (
	"errors"
	"fmt"
	"time"
)

const (
	// CheckInEarly is how long before the start a QR scan is accepted.
	CheckInEarly = 5 * time.Minute
	// CheckInLate is how long after the start a QR scan is accepted.  A scan
	// after that turns the booking into a no-show.
	CheckInLate = 15 * time.Minute
)

var (
	ErrAlreadyScanned    = errors.New("qr code already scanned")
	ErrAlreadyFinalized  = errors.New("booking already finalized")
	ErrPaymentIncomplete = errors.New("payment not completed")
	ErrCheckInExpired    = errors.New("check-in window expired")
	ErrTooEarly          = errors.New("too early to check in")
)

// CheckInError explains a refused scan.  Window bounds are always set so
// clients can show when the scan would have been accepted.
type CheckInError struct {
	Reason      error
	Code        string
	Status      Status
	Start       time.Time
	WindowOpen  time.Time
	WindowClose time.Time
	At          time.Time
}

func (e *CheckInError) Error() string {
	switch e.Reason {
	case ErrAlreadyFinalized:
		return fmt.Sprintf("%s: booking %s is %s", e.Reason, e.Code, e.Status)
	case ErrCheckInExpired, ErrTooEarly:
		return fmt.Sprintf("%s: booking %s starts %s, scans accepted %s to %s",
			e.Reason, e.Code, e.Start.Format("15:04"), e.WindowOpen.Format("15:04"), e.WindowClose.Format("15:04"))
	}
	return fmt.Sprintf("%s: booking %s", e.Reason, e.Code)
}

func (e *CheckInError) Unwrap() error { return e.Reason }

// CheckInSubject is what the validator needs to know about a booking.
type CheckInSubject struct {
	Code      string
	Status    Status
	Payment   PaymentStatus
	QRScanned bool
	Start     time.Time
}

// CheckInDecision is the state change a scan causes.
type CheckInDecision int

const (
	// CheckInRejected: nothing changes.
	CheckInRejected CheckInDecision = iota
	// CheckInSeat: reserve -> seated.
	CheckInSeat
	// CheckInNoShow: reserve -> no_show, and the scan still fails.
	CheckInNoShow
)

// Window returns the accepted scan interval around start.
func Window(start time.Time) (time.Time, time.Time) {
	return start.Add(-CheckInEarly), start.Add(CheckInLate)
}

// DecideCheckIn validates a QR scan at now.  An expired scan returns
// CheckInNoShow together with an ErrCheckInExpired error: the caller must
// persist the no-show and still report the failure.
func DecideCheckIn(s CheckInSubject, now time.Time) (CheckInDecision, error) {
	open, closeAt := Window(s.Start)
	fail := func(reason error) *CheckInError {
		return &CheckInError{Reason: reason, Code: s.Code, Status: s.Status, Start: s.Start,
			WindowOpen: open, WindowClose: closeAt, At: now}
	}
	if s.QRScanned {
		return CheckInRejected, fail(ErrAlreadyScanned)
	}
	if s.Status.Final() {
		return CheckInRejected, fail(ErrAlreadyFinalized)
	}
	if s.Status != StatusReserve {
		return CheckInRejected, &TransitionError{From: s.Status, Event: EventCheckIn}
	}
	if s.Payment != PaymentSuccess {
		return CheckInRejected, fail(ErrPaymentIncomplete)
	}
	if now.After(closeAt) {
		return CheckInNoShow, fail(ErrCheckInExpired)
	}
	if now.Before(open) {
		return CheckInRejected, fail(ErrTooEarly)
	}
	return CheckInSeat, nil
}
