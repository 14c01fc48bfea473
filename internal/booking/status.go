// Package booking is the pure core of the reservation engine: booking and
// payment statuses with their legal transitions, the table capacity rules,
// the slot conflict detector, the QR check-in window and cart arithmetic.
// Nothing in here performs I/O; the service package applies the decisions
// made here inside database transactions.
package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	// StatusNone is the state of a booking that does not exist yet.
	StatusNone      Status = ""
	StatusPending   Status = "pending"
	StatusReserve   Status = "reserve"
	StatusSeated    Status = "seated"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusReserve, StatusSeated, StatusCompleted, StatusNoShow, StatusCancelled:
		return s, nil
	}
	return StatusNone, fmt.Errorf("unknown booking status %q", raw)
}

// Blocking reports whether a booking in this status occupies its tables for
// conflict detection.
func (s Status) Blocking() bool { return s == StatusReserve || s == StatusSeated }

// Final reports whether no further transition is possible.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusNoShow || s == StatusCancelled
}

// PaymentStatus is the payment sub-state of a booking.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPlaced    PaymentStatus = "placed"
	PaymentSuccess   PaymentStatus = "success"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
)

// ParsePaymentStatus converts a stored value into a PaymentStatus.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	p := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PaymentPending, PaymentPlaced, PaymentSuccess, PaymentExpired, PaymentCancelled:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment status %q", raw)
}

// Event is something that happens to a booking.
type Event string

const (
	EventOpen           Event = "open"             // first cart add or reservation intent
	EventWalkIn         Event = "walk_in"          // staff seats guests without a reservation
	EventCheckout       Event = "checkout"         // customer starts payment
	EventPaymentSuccess Event = "payment_success"  // gateway confirms payment
	EventPaymentFailed  Event = "payment_failed"   // gateway reports expiry or cancellation
	EventComplete       Event = "complete"         // staff closes the booking
	EventNoShow         Event = "no_show"          // staff marks the party absent
	EventCheckIn        Event = "check_in"         // QR scanned inside the window
	EventCheckInExpired Event = "check_in_expired" // QR scanned after the window
	EventCancel         Event = "cancel"           // staff cancels a reservation
	EventDiscard        Event = "discard"          // customer abandons the cart; row is deleted
)

// ErrIllegalTransition is wrapped by every TransitionError.
var ErrIllegalTransition = errors.New("illegal booking transition")

// TransitionError reports an event that is not allowed in the current state.
type TransitionError struct {
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("%s: cannot apply %q to a booking in status %q", ErrIllegalTransition, e.Event, from)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

type transitionKey struct {
	from  Status
	event Event
}

var transitions = map[transitionKey]Status{
	{StatusNone, EventOpen}:              StatusPending,
	{StatusNone, EventWalkIn}:            StatusSeated,
	{StatusPending, EventCheckout}:       StatusReserve,
	{StatusPending, EventDiscard}:        StatusCancelled,
	{StatusReserve, EventPaymentFailed}:  StatusCancelled,
	{StatusReserve, EventComplete}:       StatusCompleted,
	{StatusSeated, EventComplete}:        StatusCompleted,
	{StatusReserve, EventNoShow}:         StatusNoShow,
	{StatusSeated, EventNoShow}:          StatusNoShow,
	{StatusReserve, EventCheckIn}:        StatusSeated,
	{StatusReserve, EventCheckInExpired}: StatusNoShow,
	{StatusReserve, EventCancel}:         StatusCancelled,
}

// Transition returns the status a booking moves to when ev happens in from.
// EventDiscard yields StatusCancelled; callers delete the row instead of
// storing that status.
func Transition(from Status, ev Event) (Status, error) {
	to, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return from, &TransitionError{From: from, Event: ev}
	}
	return to, nil
}

// CanTransition reports whether ev is legal in from.
func CanTransition(from Status, ev Event) bool {
	_, ok := transitions[transitionKey{from, ev}]
	return ok
}

// PaymentResult is the gateway outcome carried by a verified callback.
type PaymentResult string

const (
	ResultSuccess PaymentResult = "success"
	ResultPending PaymentResult = "pending"
	ResultExpire  PaymentResult = "expire"
	ResultCancel  PaymentResult = "cancel"
)

// CallbackOutcome tells the caller which side effects a callback needs.
type CallbackOutcome int

const (
	// OutcomeNoop means the callback must not change anything.
	OutcomeNoop CallbackOutcome = iota
	// OutcomePaid means payment moved placed -> success; issue the QR code.
	OutcomePaid
	// OutcomeFailed means the reservation is cancelled and its tables freed.
	OutcomeFailed
)

// PaymentState is the part of a booking a payment callback looks at.
type PaymentState struct {
	Status  Status
	Payment PaymentStatus
}

// ApplyPaymentResult decides what a verified payment callback does.
// Re-delivery of a success for an already paid booking is a no-op, as is a
// failure for a booking that is already closed.
func ApplyPaymentResult(cur PaymentState, res PaymentResult) (PaymentState, CallbackOutcome, error) {
	if cur.Payment == PaymentSuccess {
		return cur, OutcomeNoop, nil
	}
	switch res {
	case ResultPending:
		return cur, OutcomeNoop, nil
	case ResultSuccess:
		if cur.Status != StatusReserve || cur.Payment != PaymentPlaced {
			return cur, OutcomeNoop, &TransitionError{From: cur.Status, Event: EventPaymentSuccess}
		}
		return PaymentState{Status: StatusReserve, Payment: PaymentSuccess}, OutcomePaid, nil
	case ResultExpire, ResultCancel:
		if cur.Status.Final() {
			return cur, OutcomeNoop, nil
		}
		to, err := Transition(cur.Status, EventPaymentFailed)
		if err != nil {
			return cur, OutcomeNoop, err
		}
		pay := PaymentExpired
		if res == ResultCancel {
			pay = PaymentCancelled
		}
		return PaymentState{Status: to, Payment: pay}, OutcomeFailed, nil
	}
	return cur, OutcomeNoop, fmt.Errorf("unknown payment result %q", res)
}
