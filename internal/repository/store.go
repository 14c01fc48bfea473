package repository

import (
	"context"
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
)

// Reader is the read side shared by stores and transactions.  Lookups of
// a single row return ErrNotFound when it does not exist.
type Reader interface {
	BookingByID(ctx context.Context, id uint64) (*model.Booking, error)
	BookingByCode(ctx context.Context, code string) (*model.Booking, error)
	// PendingBooking returns the user's cart, or ErrNotFound.
	PendingBooking(ctx context.Context, userID uint64) (*model.Booking, error)
	ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)

	Items(ctx context.Context, bookingID uint64) ([]model.BookingItem, error)
	ItemByID(ctx context.Context, id uint64) (*model.BookingItem, error)
	WalkInPayment(ctx context.Context, bookingID uint64) (*model.WalkInPayment, error)

	// TablesByIDs returns the existing tables among ids ordered by id.
	TablesByIDs(ctx context.Context, ids []uint64) ([]model.Table, error)
	ListTables(ctx context.Context, activeOnly bool) ([]model.Table, error)
	// Occupancy returns one row per (blocking booking, table) on date.
	// A nil tableIDs means every table.
	Occupancy(ctx context.Context, date string, tableIDs []uint64) ([]booking.Occupancy, error)

	MenuByID(ctx context.Context, id uint64) (*model.Menu, error)
	ListMenus(ctx context.Context) ([]model.Menu, error)

	// ReservedUnscanned lists paid reservations dated on or before date
	// whose QR code has not been scanned.
	ReservedUnscanned(ctx context.Context, date string) ([]model.Booking, error)
	// PlacedBefore lists reservations still waiting for the gateway that
	// were placed before cutoff.
	PlacedBefore(ctx context.Context, cutoff time.Time) ([]model.Booking, error)
}

// Tx is a unit of work.  Lock methods take row locks held until the
// transaction ends.
type Tx interface {
	Reader

	LockTables(ctx context.Context, ids []uint64) ([]model.Table, error)
	LockBooking(ctx context.Context, id uint64) (*model.Booking, error)
	LockPendingBooking(ctx context.Context, userID uint64) (*model.Booking, error)

	// CreateBooking inserts b with its table links and fills in ID and
	// timestamps.  It returns ErrPendingExists when b is pending and its
	// user already owns a pending booking.
	CreateBooking(ctx context.Context, b *model.Booking) error
	// UpdateBooking writes every mutable column of b except the table links.
	UpdateBooking(ctx context.Context, b *model.Booking) error
	SetBookingTables(ctx context.Context, bookingID uint64, tableIDs []uint64) error
	// DeleteBooking removes the booking, its items and its table links.
	DeleteBooking(ctx context.Context, id uint64) error
	// SetPaymentStatus moves the payment status from -> to and reports
	// whether the row was in from.
	SetPaymentStatus(ctx context.Context, id uint64, from, to booking.PaymentStatus) (bool, error)
	// CheckIn seats a reserve booking whose QR code was not scanned yet and
	// reports whether it did.
	CheckIn(ctx context.Context, id uint64, at time.Time) (bool, error)
	SetTotal(ctx context.Context, bookingID uint64, total int64) error

	// ItemFor returns the line merging (booking, menu, source), or ErrNotFound.
	ItemFor(ctx context.Context, bookingID, menuID uint64, source booking.ItemSource) (*model.BookingItem, error)
	CreateItem(ctx context.Context, it *model.BookingItem) error
	UpdateItem(ctx context.Context, it *model.BookingItem) error
	DeleteItem(ctx context.Context, id uint64) error

	CreateWalkInPayment(ctx context.Context, p *model.WalkInPayment) error
}

// Store gives access to committed data and runs transactions.  fn's error
// rolls the transaction back and is returned unchanged.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
