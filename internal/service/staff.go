package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/invoice"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// transition applies a staff event to a booking under its lock.  mutate
// may adjust the booking before it is written.
func (s *Service) transition(ctx context.Context, bookingID uint64, ev booking.Event, mutate func(b *model.Booking)) (*model.Booking, error) {
	var updated *model.Booking
	err := s.withLocks(ctx, []string{lock.BookingKey(bookingID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.LockBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			next, err := booking.Transition(b.Status, ev)
			if err != nil {
				return err
			}
			b.Status = next
			if mutate != nil {
				mutate(b)
			}
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			updated, err = tx.BookingByID(ctx, b.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"code": updated.Code, "event": ev, "status": updated.Status}).Info("booking updated by staff")
	return updated, nil
}

// Complete closes a reserved or seated booking and records the checkout
// time.
func (s *Service) Complete(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	done := s.opts.Now().UTC()
	b, err := s.transition(ctx, bookingID, booking.EventComplete, func(b *model.Booking) {
		b.CheckoutTime = &done
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, queue.EventCompleted, b, "")
	return b, nil
}

// MarkNoShow records that the party never arrived.
func (s *Service) MarkNoShow(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := s.transition(ctx, bookingID, booking.EventNoShow, nil)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, queue.EventNoShow, b, "marked by staff")
	return b, nil
}

// CancelBooking cancels a reservation.  A payment that already succeeded
// keeps its status; refunds happen outside this service.
func (s *Service) CancelBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	b, err := s.transition(ctx, bookingID, booking.EventCancel, func(b *model.Booking) {
		if b.PaymentStatus != booking.PaymentSuccess {
			b.PaymentStatus = booking.PaymentCancelled
		}
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, queue.EventCancelled, b, "cancelled by staff")
	return b, nil
}

// ListBookings lists bookings for staff.
func (s *Service) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	return s.store.ListBookings(ctx, f)
}

// BookingDetail returns a booking with its items and tables.
func (s *Service) BookingDetail(ctx context.Context, bookingID uint64) (*BookingView, error) {
	b, err := s.store.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return view(ctx, s.store, b)
}

// Invoice builds the receipt of a completed booking.
func (s *Service) Invoice(ctx context.Context, bookingID uint64) (invoice.Invoice, error) {
	v, err := s.BookingDetail(ctx, bookingID)
	if err != nil {
		return invoice.Invoice{}, err
	}
	pay, err := s.store.WalkInPayment(ctx, bookingID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return invoice.Invoice{}, err
	}
	return invoice.Build(*v.Booking, v.Items, v.Tables, pay)
}
