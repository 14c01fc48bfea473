package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/payment"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
)

// CheckoutResult is a reservation handed to the payment gateway.
type CheckoutResult struct {
	Booking *model.Booking         `json:"booking"`
	Session payment.Session        `json:"payment"`
	Report  booking.ConflictReport `json:"availability"`
}

// Checkout turns the user's cart into a reservation awaiting payment.  The
// slot is validated again under the table locks, the total is recomputed
// from the items and a gateway session is requested, all inside one
// transaction: when the gateway fails or times out nothing is kept and the
// cart can be checked out again.  Every attempt sends its own order id.
func (s *Service) Checkout(ctx context.Context, userID uint64) (*CheckoutResult, error) {
	cart, err := s.store.PendingBooking(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cart.HasSlot() || len(cart.TableIDs) == 0 {
		return nil, ErrNoSlot
	}
	keys := append([]string{lock.UserKey(userID)}, lock.TableKeys(cart.Date, cart.TableIDs)...)

	var res CheckoutResult
	err = s.withLocks(ctx, keys, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			// Table rows first, before any other read, so a reservation
			// committed while waiting here is visible to the checks below.
			tables, err := loadTables(ctx, tx.LockTables, cart.TableIDs)
			if err != nil {
				return err
			}
			b, err := tx.LockPendingBooking(ctx, userID)
			if err != nil {
				return err
			}
			if b.ID != cart.ID || b.Date != cart.Date || !sameIDs(b.TableIDs, cart.TableIDs) {
				return fmt.Errorf("%w: cart changed during checkout", repository.ErrConflict)
			}
			at, err := s.parseSlot(b.Date, b.Time)
			if err != nil {
				return err
			}
			if err := booking.ValidateSelection(model.TableInfos(tables), b.PartySize); err != nil {
				return err
			}
			items, err := tx.Items(ctx, b.ID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return ErrEmptyCart
			}
			occ, err := tx.Occupancy(ctx, at.date, b.TableIDs)
			if err != nil {
				return err
			}
			res.Report = booking.CheckAvailability(at.date, b.TableIDs, at.clock, occ, b.ID)
			if err := res.Report.Err(); err != nil {
				return err
			}

			next, err := booking.Transition(b.Status, booking.EventCheckout)
			if err != nil {
				return err
			}
			now := s.opts.Now().UTC()
			b.Status = next
			b.PaymentStatus = booking.PaymentPlaced
			b.TotalPrice = model.ItemsTotal(items)
			b.PlacedAt = &now
			orderID := booking.NewOrderID(b.Code)
			b.PaymentOrderID = &orderID

			gctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
			defer cancel()
			sess, err := s.gateway.CreateSession(gctx, sessionRequest(b, items))
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"code": b.Code, "order_id": orderID}).Warn("checkout rolled back")
				return err
			}
			b.PaymentToken = &sess.Token
			b.PaymentURL = &sess.RedirectURL
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			res.Session = sess
			res.Booking, err = tx.BookingByID(ctx, b.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "code": res.Booking.Code, "total": res.Booking.TotalPrice}).Info("checkout placed")
	s.emit(ctx, queue.EventReserved, res.Booking, "")
	return &res, nil
}

func sessionRequest(b *model.Booking, items []model.BookingItem) payment.SessionRequest {
	req := payment.SessionRequest{OrderID: *b.PaymentOrderID, Amount: b.TotalPrice}
	for _, it := range items {
		req.Items = append(req.Items, payment.LineItem{
			ID:       strconv.FormatUint(it.MenuID, 10),
			Name:     it.MenuName,
			Price:    it.UnitPrice,
			Quantity: it.Quantity,
		})
	}
	if b.UserID != nil {
		req.CustomerName = "customer-" + strconv.FormatUint(*b.UserID, 10)
	}
	return req
}

func sameIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uint64]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// CallbackResult reports what a payment notification did.
type CallbackResult struct {
	Code    string                  `json:"code"`
	Outcome booking.CallbackOutcome `json:"-"`
	Status  booking.Status          `json:"booking_status"`
	Payment booking.PaymentStatus   `json:"payment_status"`
}

// HandlePaymentNotification verifies a gateway notification and applies
// it.  Repeated deliveries are harmless: a success for an already paid
// booking changes nothing, and the placed -> success step is a
// compare-and-swap so concurrent duplicates apply it once.  Notifications
// for an order id other than the one that placed the booking belong to an
// abandoned checkout attempt; they are acknowledged and logged, never
// applied.
func (s *Service) HandlePaymentNotification(ctx context.Context, body []byte) (*CallbackResult, error) {
	n, err := s.gateway.ParseNotification(body)
	if err != nil {
		return nil, err
	}
	found, err := s.store.BookingByCode(ctx, booking.CodeFromOrderID(n.OrderID))
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"code": found.Code, "order_id": n.OrderID, "transaction_status": n.TransactionStatus})

	var (
		res     = CallbackResult{Code: found.Code}
		updated *model.Booking
	)
	err = s.withLocks(ctx, []string{lock.BookingKey(found.ID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			b, err := tx.LockBooking(ctx, found.ID)
			if err != nil {
				return err
			}
			if b.PaymentOrderID == nil || *b.PaymentOrderID != n.OrderID {
				// The customer may have been charged for it; staff refund
				// from this log line.
				log.WithFields(logrus.Fields{"booking_status": b.Status, "gross_amount": n.GrossAmount}).
					Warn("payment notification for an abandoned checkout attempt ignored")
				res.Outcome = booking.OutcomeNoop
				updated = b
				return nil
			}
			if n.Result == booking.ResultSuccess && n.GrossAmount != b.TotalPrice {
				return fmt.Errorf("%w: notified %d, booking total %d", ErrAmountMismatch, n.GrossAmount, b.TotalPrice)
			}
			cur := booking.PaymentState{Status: b.Status, Payment: b.PaymentStatus}
			next, outcome, err := booking.ApplyPaymentResult(cur, n.Result)
			if errors.Is(err, booking.ErrIllegalTransition) {
				log.WithField("booking_status", b.Status).Warn("payment notification ignored for booking in this state")
				outcome, next = booking.OutcomeNoop, cur
			} else if err != nil {
				return err
			}
			switch outcome {
			case booking.OutcomePaid:
				ok, err := tx.SetPaymentStatus(ctx, b.ID, booking.PaymentPlaced, booking.PaymentSuccess)
				if err != nil {
					return err
				}
				if !ok {
					outcome = booking.OutcomeNoop
				}
			case booking.OutcomeFailed:
				b.Status = next.Status
				b.PaymentStatus = next.Payment
				if err := tx.UpdateBooking(ctx, b); err != nil {
					return err
				}
			}
			res.Outcome = outcome
			updated, err = tx.BookingByID(ctx, b.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	res.Status = updated.Status
	res.Payment = updated.PaymentStatus
	switch res.Outcome {
	case booking.OutcomePaid:
		log.Info("payment confirmed")
		s.emit(ctx, queue.EventPaid, updated, "")
	case booking.OutcomeFailed:
		log.Info("payment failed; reservation cancelled")
		s.emit(ctx, queue.EventCancelled, updated, "payment "+string(n.Result))
	default:
		log.Debug("payment notification changed nothing")
	}
	return &res, nil
}

// BookingForUser returns one of the user's bookings by code.
func (s *Service) BookingForUser(ctx context.Context, userID uint64, code string) (*BookingView, error) {
	b, err := s.store.BookingByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(userID) {
		return nil, repository.ErrForbidden
	}
	return view(ctx, s.store, b)
}

// BookingQR renders the check-in QR code of a paid reservation.
func (s *Service) BookingQR(ctx context.Context, userID uint64, code string) ([]byte, error) {
	b, err := s.store.BookingByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(userID) {
		return nil, repository.ErrForbidden
	}
	if b.PaymentStatus != booking.PaymentSuccess {
		return nil, fmt.Errorf("%w: booking %s is %s", booking.ErrPaymentIncomplete, b.Code, b.PaymentStatus)
	}
	return s.qr.PNG(b.Code)
}

// MyBookings lists the user's bookings.
func (s *Service) MyBookings(ctx context.Context, userID uint64, limit, offset int) ([]model.Booking, error) {
	uid := userID
	return s.store.ListBookings(ctx, model.BookingFilter{UserID: &uid, Limit: limit, Offset: offset})
}
