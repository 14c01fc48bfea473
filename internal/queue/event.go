// Package queue carries booking events over RabbitMQ.  The service
// publishes one event per committed lifecycle change; the consumer appends
// them to logs/booking.log.
package queue

import "time"

// EventType names a booking lifecycle change.
type EventType string

const (
	EventReserved  EventType = "booking.reserved"
	EventPaid      EventType = "booking.paid"
	EventSeated    EventType = "booking.seated"
	EventCompleted EventType = "booking.completed"
	EventNoShow    EventType = "booking.no_show"
	EventCancelled EventType = "booking.cancelled"
)

// BookingEvent is published after a lifecycle change has been committed.
// It carries enough for downstream consumers to log or notify without
// querying the database.
type BookingEvent struct {
	Type          EventType `json:"type"`
	BookingID     uint64    `json:"booking_id"`
	Code          string    `json:"code"`
	UserID        *uint64   `json:"user_id,omitempty"`
	WalkIn        bool      `json:"walk_in"`
	PartySize     int       `json:"party_size"`
	Date          string    `json:"reservation_date,omitempty"`
	Time          string    `json:"reservation_time,omitempty"`
	Tables        []string  `json:"tables"`
	Status        string    `json:"booking_status"`
	PaymentStatus string    `json:"payment_status"`
	Total         int64     `json:"total"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
