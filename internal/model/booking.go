package model

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// Booking is a reservation, a cart or a walk-in seating.  It corresponds
// to a row in the `bookings` table; the tables it occupies live in
// `booking_tables` and are loaded into TableIDs.
//
// Fields:
//
//	ID             – primary key identifier.
//	Code           – unique human readable code printed on receipts and QR images.
//	UserID         – customer who owns the booking (nil for walk-ins).
//	GuestName      – name given at the door (walk-ins only).
//	PartySize      – number of guests.
//	Date, Time     – reservation start in restaurant local time (YYYY-MM-DD, HH:MM).
//	Status         – lifecycle state.
//	PaymentStatus  – payment sub-state.
//	TotalPrice     – sum of item subtotals, whole currency units.
//	QRScanned      – true once the QR code has been accepted at the door.
//	CheckinTime    – when the party was seated.
//	CheckoutTime   – when the booking was completed.
//	PaymentToken   – gateway session token issued at checkout.
//	PaymentURL     – gateway redirect URL issued at checkout.
//	PaymentOrderID – gateway order id of the checkout attempt that placed the booking.
//	PlacedAt       – when checkout handed the booking to the gateway.
//	WalkIn         – true for bookings created by staff at the door.
type Booking struct {
	ID             uint64                `json:"id"`
	Code           string                `json:"code"`
	UserID         *uint64               `json:"user_id,omitempty"`
	GuestName      *string               `json:"guest_name,omitempty"`
	PartySize      int                   `json:"party_size"`
	Date           string                `json:"reservation_date"`
	Time           string                `json:"reservation_time"`
	Status         booking.Status        `json:"booking_status"`
	PaymentStatus  booking.PaymentStatus `json:"payment_status"`
	TotalPrice     int64                 `json:"total_price"`
	QRScanned      bool                  `json:"qr_scanned"`
	CheckinTime    *time.Time            `json:"checkin_time,omitempty"`
	CheckoutTime   *time.Time            `json:"checkout_time,omitempty"`
	PaymentToken   *string               `json:"payment_token,omitempty"`
	PaymentURL     *string               `json:"payment_url,omitempty"`
	PaymentOrderID *string               `json:"payment_order_id,omitempty"`
	PlacedAt       *time.Time            `json:"placed_at,omitempty"`
	WalkIn         bool                  `json:"walk_in"`
	TableIDs       []uint64              `json:"table_ids"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// HasSlot reports whether a reservation date and time have been chosen.
func (b *Booking) HasSlot() bool { return b.Date != "" && b.Time != "" }

// Start returns the reservation start as an instant in loc.
func (b *Booking) Start(loc *time.Location) (time.Time, error) {
	return slot.Combine(b.Date, b.Time, loc)
}

// OwnedBy reports whether userID owns the booking.
func (b *Booking) OwnedBy(userID uint64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// BookingFilter narrows staff and customer booking listings.  Zero values
// mean "any".
type BookingFilter struct {
	UserID *uint64
	Date   string
	Status booking.Status
	Limit  int
	Offset int
}
