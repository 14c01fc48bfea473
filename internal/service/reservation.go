package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// ReservationRequest is a customer's choice of slot and tables.
type ReservationRequest struct {
	Date      string
	Time      string
	PartySize int
	TableIDs  []uint64
}

// ReservationResult is the updated cart together with the conflict report
// the slot produced.  Report.Warnings may be non-empty on success.
type ReservationResult struct {
	Booking *model.Booking
	Report  booking.ConflictReport
}

// slotRequest is a parsed and window-checked reservation start.
type slotRequest struct {
	date  string
	clock slot.Clock
}

func (s *Service) parseSlot(date, clock string) (slotRequest, error) {
	start, err := slot.Combine(date, clock, s.Location())
	if err != nil {
		return slotRequest{}, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	if err := s.opts.Rules.Validate(start, s.now()); err != nil {
		return slotRequest{}, err
	}
	return slotRequest{date: slot.FormatDate(start), clock: slot.ClockOf(start)}, nil
}

// loadTables fetches the rows for ids with load, failing when an id is
// unknown or repeated.
func loadTables(ctx context.Context, load func(context.Context, []uint64) ([]model.Table, error), ids []uint64) ([]model.Table, error) {
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, &booking.CapacityError{Reason: booking.ErrInvalidSelection,
				Detail: fmt.Sprintf("table #%d selected more than once", id)}
		}
		seen[id] = true
	}
	tables, err := load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(tables) != len(ids) {
		found := make(map[uint64]bool, len(tables))
		for _, t := range tables {
			found[t.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, &booking.CapacityError{Reason: booking.ErrInvalidSelection,
					Detail: fmt.Sprintf("table #%d does not exist", id)}
			}
		}
	}
	return tables, nil
}

// SetReservation records the slot a customer wants on their cart,
// creating the cart when it does not exist.  The selection must pass the
// capacity rules and the conflict detector; pending carts do not hold
// their tables, so the slot is checked again at checkout.
func (s *Service) SetReservation(ctx context.Context, userID uint64, req ReservationRequest) (*ReservationResult, error) {
	at, err := s.parseSlot(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	keys := append([]string{lock.UserKey(userID)}, lock.TableKeys(at.date, req.TableIDs)...)

	var res ReservationResult
	err = s.withLocks(ctx, keys, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			tables, err := loadTables(ctx, tx.LockTables, req.TableIDs)
			if err != nil {
				return err
			}
			if err := booking.ValidateSelection(model.TableInfos(tables), req.PartySize); err != nil {
				return err
			}
			cart, err := s.cartForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			occ, err := tx.Occupancy(ctx, at.date, req.TableIDs)
			if err != nil {
				return err
			}
			res.Report = booking.CheckAvailability(at.date, req.TableIDs, at.clock, occ, cart.ID)
			if err := res.Report.Err(); err != nil {
				return err
			}
			cart.Date = at.date
			cart.Time = at.clock.String()
			cart.PartySize = req.PartySize
			if err := tx.UpdateBooking(ctx, cart); err != nil {
				return err
			}
			if err := tx.SetBookingTables(ctx, cart.ID, req.TableIDs); err != nil {
				return err
			}
			res.Booking, err = tx.BookingByID(ctx, cart.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "code": res.Booking.Code, "slot": at.date + " " + at.clock.String(),
		"warnings": len(res.Report.Warnings)}).Info("reservation slot set")
	return &res, nil
}

// cartForUpdate locks the user's pending booking, creating it when absent.
func (s *Service) cartForUpdate(ctx context.Context, tx repository.Tx, userID uint64) (*model.Booking, error) {
	cart, err := tx.LockPendingBooking(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	status, err := booking.Transition(booking.StatusNone, booking.EventOpen)
	if err != nil {
		return nil, err
	}
	uid := userID
	cart = &model.Booking{
		Code:          booking.NewCode(),
		UserID:        &uid,
		PartySize:     1,
		Status:        status,
		PaymentStatus: booking.PaymentPending,
		TableIDs:      []uint64{},
	}
	if err := tx.CreateBooking(ctx, cart); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "code": cart.Code}).Debug("cart opened")
	return cart, nil
}

// AvailabilityQuery asks whether tables are free at a slot.
type AvailabilityQuery struct {
	Date      string
	Time      string
	TableIDs  []uint64
	PartySize int
}

// Availability runs the conflict detector for a prospective slot without
// changing anything.  When PartySize is set the capacity rules are applied
// too.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (booking.ConflictReport, error) {
	at, err := s.parseSlot(q.Date, q.Time)
	if err != nil {
		return booking.ConflictReport{}, err
	}
	tables, err := loadTables(ctx, s.store.TablesByIDs, q.TableIDs)
	if err != nil {
		return booking.ConflictReport{}, err
	}
	if q.PartySize > 0 {
		if err := booking.ValidateSelection(model.TableInfos(tables), q.PartySize); err != nil {
			return booking.ConflictReport{}, err
		}
	}
	occ, err := s.store.Occupancy(ctx, at.date, q.TableIDs)
	if err != nil {
		return booking.ConflictReport{}, err
	}
	return booking.CheckAvailability(at.date, q.TableIDs, at.clock, occ, 0), nil
}

// TableState is one table on the staff floor view.
type TableState struct {
	Table    model.Table       `json:"table"`
	Relation booking.Relation  `json:"relation"`
	Bookings []booking.Finding `json:"bookings"`
}

// Occupancy classifies every table against the blocking bookings of date
// as seen from a start at clock.  An empty clock means now.
func (s *Service) Occupancy(ctx context.Context, date, clock string) ([]TableState, error) {
	now := s.now()
	if date == "" {
		date = slot.FormatDate(now)
	}
	if _, err := slot.ParseDate(date, s.Location()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	at := slot.ClockOf(now)
	if clock != "" {
		c, err := slot.ParseClock(clock)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
		}
		at = c
	}
	tables, err := s.store.ListTables(ctx, false)
	if err != nil {
		return nil, err
	}
	occ, err := s.store.Occupancy(ctx, date, nil)
	if err != nil {
		return nil, err
	}
	out := make([]TableState, 0, len(tables))
	for _, t := range tables {
		rep := booking.CheckAvailability(date, []uint64{t.ID}, at, occ, 0)
		st := TableState{Table: t, Relation: booking.RelationClear, Bookings: append(rep.Blocked, rep.Warnings...)}
		switch {
		case len(rep.Blocked) > 0:
			st.Relation = rep.Blocked[0].Relation
		case len(rep.Warnings) > 0:
			st.Relation = booking.RelationWarn
		}
		out = append(out, st)
	}
	return out, nil
}

// Tables lists the tables that can be reserved.
func (s *Service) Tables(ctx context.Context) ([]model.Table, error) {
	return s.store.ListTables(ctx, true)
}
