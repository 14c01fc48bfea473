package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// WalkInRequest seats guests who arrive without a reservation.
type WalkInRequest struct {
	GuestName string
	PartySize int
	TableIDs  []uint64
}

// WalkInResult is the seated booking with the conflict report for now.
type WalkInResult struct {
	Booking *model.Booking         `json:"booking"`
	Report  booking.ConflictReport `json:"availability"`
}

// CreateWalkIn seats a party at the door.  Tables may be pushed together
// (only sufficiency is checked) but must pass the conflict detector for
// the current minute.  The booking skips reservation and payment and is
// created seated, paid and scanned.
func (s *Service) CreateWalkIn(ctx context.Context, req WalkInRequest) (*WalkInResult, error) {
	now := s.now()
	date, clock := slot.FormatDate(now), slot.ClockOf(now)

	var res WalkInResult
	err := s.withLocks(ctx, lock.TableKeys(date, req.TableIDs), func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			tables, err := loadTables(ctx, tx.LockTables, req.TableIDs)
			if err != nil {
				return err
			}
			if err := booking.ValidateWalkInSelection(model.TableInfos(tables), req.PartySize); err != nil {
				return err
			}
			occ, err := tx.Occupancy(ctx, date, req.TableIDs)
			if err != nil {
				return err
			}
			res.Report = booking.CheckAvailability(date, req.TableIDs, clock, occ, 0)
			if err := res.Report.Err(); err != nil {
				return err
			}
			status, err := booking.Transition(booking.StatusNone, booking.EventWalkIn)
			if err != nil {
				return err
			}
			seatedAt := now.UTC()
			b := &model.Booking{
				Code:          booking.NewCode(),
				PartySize:     req.PartySize,
				Date:          date,
				Time:          clock.String(),
				Status:        status,
				PaymentStatus: booking.PaymentSuccess,
				QRScanned:     true,
				CheckinTime:   &seatedAt,
				WalkIn:        true,
				TableIDs:      req.TableIDs,
			}
			if name := strings.TrimSpace(req.GuestName); name != "" {
				b.GuestName = &name
			}
			if err := tx.CreateBooking(ctx, b); err != nil {
				return err
			}
			res.Booking = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"code": res.Booking.Code, "party_size": req.PartySize, "tables": req.TableIDs}).Info("walk-in seated")
	s.emit(ctx, queue.EventSeated, res.Booking, "walk-in")
	return &res, nil
}

// ItemRequest is a menu entry and how many of it to add.
type ItemRequest struct {
	MenuID   uint64
	Quantity int
}

// AddWalkInItems adds items to a seated booking on behalf of staff.  Lines
// merge by menu within the walk_in source and the total is recomputed.
func (s *Service) AddWalkInItems(ctx context.Context, bookingID uint64, reqs []ItemRequest) (*BookingView, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no items given", ErrInvalidQuantity)
	}
	for _, r := range reqs {
		if r.Quantity < 1 {
			return nil, fmt.Errorf("%w: menu %d quantity %d", ErrInvalidQuantity, r.MenuID, r.Quantity)
		}
	}
	var out *BookingView
	err := s.withLocks(ctx, []string{lock.BookingKey(bookingID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.LockBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if b.Status != booking.StatusSeated {
				return fmt.Errorf("%w: booking %s is %s", ErrNotSeated, b.Code, b.Status)
			}
			for _, r := range reqs {
				m, err := orderable(ctx, tx, r.MenuID)
				if err != nil {
					return err
				}
				if _, err := mergeItem(ctx, tx, b.ID, m, booking.SourceWalkIn, r.Quantity); err != nil {
					return err
				}
			}
			if _, err := recomputeTotal(ctx, tx, b.ID); err != nil {
				return err
			}
			if b, err = tx.BookingByID(ctx, b.ID); err != nil {
				return err
			}
			out, err = view(ctx, tx, b)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SettleRequest is a point-of-sale payment.  Tendered is required for cash.
type SettleRequest struct {
	Method   booking.PaymentMethod
	Tendered *int64
}

// SettleResult is the completed booking and its payment record.
type SettleResult struct {
	Booking *model.Booking       `json:"booking"`
	Payment *model.WalkInPayment `json:"payment"`
}

// Settle takes payment at the table and completes the booking.  Walk-ins
// pay their whole total; seated online reservations were paid in advance
// and only owe the items staff added at the table.
func (s *Service) Settle(ctx context.Context, bookingID uint64, req SettleRequest) (*SettleResult, error) {
	var res SettleResult
	err := s.withLocks(ctx, []string{lock.BookingKey(bookingID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.LockBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if b.Status != booking.StatusSeated {
				return fmt.Errorf("%w: booking %s is %s", ErrNotSeated, b.Code, b.Status)
			}
			if _, err := tx.WalkInPayment(ctx, b.ID); err == nil {
				return fmt.Errorf("%w: booking %s is already settled", repository.ErrConflict, b.Code)
			}
			items, err := tx.Items(ctx, b.ID)
			if err != nil {
				return err
			}
			due := amountDue(b, items)
			if due <= 0 {
				return fmt.Errorf("%w: booking %s", ErrNothingToSettle, b.Code)
			}
			change, err := booking.Change(req.Method, due, req.Tendered)
			if err != nil {
				return err
			}
			p := &model.WalkInPayment{BookingID: b.ID, PaymentMethod: req.Method, TotalAmount: due}
			if req.Method == booking.MethodCash {
				paid := *req.Tendered
				p.AmountPaid = &paid
				p.ChangeAmount = &change
			}
			if err := tx.CreateWalkInPayment(ctx, p); err != nil {
				return err
			}
			next, err := booking.Transition(b.Status, booking.EventComplete)
			if err != nil {
				return err
			}
			done := s.opts.Now().UTC()
			b.Status = next
			b.CheckoutTime = &done
			b.TotalPrice = model.ItemsTotal(items)
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			res.Payment = p
			res.Booking, err = tx.BookingByID(ctx, b.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"code": res.Booking.Code, "method": req.Method, "amount": res.Payment.TotalAmount}).Info("bill settled")
	s.emit(ctx, queue.EventCompleted, res.Booking, "settled by "+string(req.Method))
	return &res, nil
}

func amountDue(b *model.Booking, items []model.BookingItem) int64 {
	if b.WalkIn {
		return model.ItemsTotal(items)
	}
	var due int64
	for _, it := range items {
		if it.Source == booking.SourceWalkIn {
			due += it.Subtotal
		}
	}
	return due
}
