package model

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
)

// Menu is a row of the menu catalog.  Prices are whole currency units.
type Menu struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	IsActive bool   `json:"is_active"`
}

// BookingItem is one line of a booking's order.  UnitPrice is captured
// from the menu when the line is created and never changes afterwards;
// Subtotal is always Quantity*UnitPrice.
//
// Fields:
//
//	ID        – primary key identifier.
//	BookingID – booking the line belongs to.
//	MenuID    – menu entry ordered.
//	MenuName  – menu name at the time of ordering.
//	Quantity  – at least one.
//	UnitPrice – price snapshot.
//	Subtotal  – Quantity*UnitPrice.
//	Source    – online (cart) or walk_in (added by staff).
type BookingItem struct {
	ID        uint64             `json:"id"`
	BookingID uint64             `json:"booking_id"`
	MenuID    uint64             `json:"menu_id"`
	MenuName  string             `json:"menu_name"`
	Quantity  int                `json:"quantity"`
	UnitPrice int64              `json:"unit_price"`
	Subtotal  int64              `json:"subtotal"`
	Source    booking.ItemSource `json:"source"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SetQuantity updates the quantity and keeps the subtotal in step.
func (i *BookingItem) SetQuantity(q int) {
	i.Quantity = q
	i.Subtotal = booking.Subtotal(q, i.UnitPrice)
}

// ItemsTotal sums the subtotals of items.
func ItemsTotal(items []BookingItem) int64 {
	subs := make([]int64, 0, len(items))
	for _, it := range items {
		subs = append(subs, it.Subtotal)
	}
	return booking.Total(subs...)
}

// WalkInPayment records how a walk-in bill was settled.  A booking has at
// most one.  AmountPaid and ChangeAmount are only set for cash.
type WalkInPayment struct {
	ID            uint64                `json:"id"`
	BookingID     uint64                `json:"booking_id"`
	PaymentMethod booking.PaymentMethod `json:"payment_method"`
	TotalAmount   int64                 `json:"total_amount"`
	AmountPaid    *int64                `json:"amount_paid,omitempty"`
	ChangeAmount  *int64                `json:"change_amount,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}
