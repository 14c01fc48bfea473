package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// CheckIn handles a QR scan at the door.  Inside the window the booking is
// seated.  A scan after the window marks the booking as a no-show, keeps
// that change and still fails with booking.ErrCheckInExpired.
func (s *Service) CheckIn(ctx context.Context, code string) (*model.Booking, error) {
	found, err := s.store.BookingByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		decision booking.CheckInDecision
		refusal  error
		updated  *model.Booking
	)
	err = s.withLocks(ctx, []string{lock.BookingKey(found.ID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.LockBooking(ctx, found.ID)
			if err != nil {
				return err
			}
			subject := booking.CheckInSubject{Code: b.Code, Status: b.Status, Payment: b.PaymentStatus, QRScanned: b.QRScanned}
			if b.HasSlot() {
				if subject.Start, err = b.Start(s.Location()); err != nil {
					return err
				}
			}
			decision, refusal = booking.DecideCheckIn(subject, now)
			switch decision {
			case booking.CheckInSeat:
				ok, err := tx.CheckIn(ctx, b.ID, now)
				if err != nil {
					return err
				}
				if !ok {
					decision = booking.CheckInRejected
					refusal = &booking.CheckInError{Reason: booking.ErrAlreadyScanned, Code: b.Code, Status: b.Status}
					return nil
				}
			case booking.CheckInNoShow:
				next, err := booking.Transition(b.Status, booking.EventCheckInExpired)
				if err != nil {
					return err
				}
				b.Status = next
				if err := tx.UpdateBooking(ctx, b); err != nil {
					return err
				}
			default:
				return nil
			}
			updated, err = tx.BookingByID(ctx, b.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"code": code, "at": now.Format("15:04")})
	switch decision {
	case booking.CheckInSeat:
		log.Info("guest checked in")
		s.emit(ctx, queue.EventSeated, updated, "")
		return updated, nil
	case booking.CheckInNoShow:
		log.Info("late scan; booking marked no-show")
		s.emit(ctx, queue.EventNoShow, updated, "check-in window expired")
	default:
		log.WithError(refusal).Debug("check-in refused")
	}
	return nil, refusal
}
