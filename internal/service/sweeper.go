package service

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// SweepNoShows marks paid reservations whose check-in window has closed
// without a scan as no-shows.  It returns how many bookings changed.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.ReservedUnscanned(ctx, slot.FormatDate(now))
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs *multierror.Error
	)
	for i := range due {
		start, err := due[i].Start(s.Location())
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, closeAt := booking.Window(start); !now.After(closeAt) {
			continue
		}
		b, changed, err := s.sweepOne(ctx, due[i].ID, func(b *model.Booking) (bool, error) {
			if b.Status != booking.StatusReserve || b.QRScanned {
				return false, nil
			}
			next, err := booking.Transition(b.Status, booking.EventCheckInExpired)
			if err != nil {
				return false, err
			}
			b.Status = next
			return true, nil
		})
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if changed {
			n++
			s.emit(ctx, queue.EventNoShow, b, "check-in window expired")
		}
	}
	if n > 0 {
		s.log.WithField("count", n).Info("no-shows swept")
	}
	return n, errs.ErrorOrNil()
}

// ExpireUnpaid cancels reservations whose payment was placed longer than
// PaymentHold ago and never confirmed, freeing their tables.
func (s *Service) ExpireUnpaid(ctx context.Context) (int, error) {
	cutoff := s.opts.Now().UTC().Add(-s.opts.PaymentHold)
	due, err := s.store.PlacedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs *multierror.Error
	)
	for i := range due {
		b, changed, err := s.sweepOne(ctx, due[i].ID, func(b *model.Booking) (bool, error) {
			next, outcome, err := booking.ApplyPaymentResult(
				booking.PaymentState{Status: b.Status, Payment: b.PaymentStatus}, booking.ResultExpire)
			if err != nil || outcome != booking.OutcomeFailed || b.PaymentStatus != booking.PaymentPlaced {
				return false, err
			}
			b.Status, b.PaymentStatus = next.Status, next.Payment
			return true, nil
		})
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if changed {
			n++
			s.emit(ctx, queue.EventCancelled, b, "payment not confirmed in time")
		}
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"count": n, "cutoff": cutoff.Format("15:04:05")}).Info("unpaid reservations expired")
	}
	return n, errs.ErrorOrNil()
}

// sweepOne re-reads a booking under its lock and writes it when decide
// says it changed.
func (s *Service) sweepOne(ctx context.Context, id uint64, decide func(b *model.Booking) (bool, error)) (*model.Booking, bool, error) {
	var (
		out     *model.Booking
		changed bool
	)
	err := s.withLocks(ctx, []string{lock.BookingKey(id)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.LockBooking(ctx, id)
			if err != nil {
				return err
			}
			if changed, err = decide(b); err != nil || !changed {
				return err
			}
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			out, err = tx.BookingByID(ctx, id)
			return err
		})
	})
	return out, changed, err
}
