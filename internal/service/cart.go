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
)

// BookingView is a booking with its lines and tables.
type BookingView struct {
	Booking *model.Booking      `json:"booking"`
	Items   []model.BookingItem `json:"items"`
	Tables  []model.Table       `json:"tables"`
}

func view(ctx context.Context, r repository.Reader, b *model.Booking) (*BookingView, error) {
	items, err := r.Items(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	tables, err := r.TablesByIDs(ctx, b.TableIDs)
	if err != nil {
		return nil, err
	}
	return &BookingView{Booking: b, Items: items, Tables: tables}, nil
}

// GetCart returns the user's pending booking, or repository.ErrNotFound.
func (s *Service) GetCart(ctx context.Context, userID uint64) (*BookingView, error) {
	b, err := s.store.PendingBooking(ctx, userID)
	if err != nil {
		return nil, err
	}
	return view(ctx, s.store, b)
}

// recomputeTotal sets the booking total to the sum of its item subtotals.
func recomputeTotal(ctx context.Context, tx repository.Tx, bookingID uint64) (int64, error) {
	items, err := tx.Items(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	total := model.ItemsTotal(items)
	if err := tx.SetTotal(ctx, bookingID, total); err != nil {
		return 0, err
	}
	return total, nil
}

// orderable loads a menu entry that may be ordered.
func orderable(ctx context.Context, tx repository.Tx, menuID uint64) (*model.Menu, error) {
	m, err := tx.MenuByID(ctx, menuID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrMenuUnavailable, m.Name)
	}
	return m, nil
}

// mergeItem adds quantity of menu to the booking's line for source,
// creating the line at the current menu price when it does not exist.
func mergeItem(ctx context.Context, tx repository.Tx, bookingID uint64, m *model.Menu, source booking.ItemSource, quantity int) (*model.BookingItem, error) {
	it, err := tx.ItemFor(ctx, bookingID, m.ID, source)
	switch {
	case err == nil:
		it.SetQuantity(it.Quantity + quantity)
		if err := tx.UpdateItem(ctx, it); err != nil {
			return nil, err
		}
		return it, nil
	case errors.Is(err, repository.ErrNotFound):
		it = &model.BookingItem{
			BookingID: bookingID,
			MenuID:    m.ID,
			MenuName:  m.Name,
			UnitPrice: m.Price,
			Source:    source,
		}
		it.SetQuantity(quantity)
		if err := tx.CreateItem(ctx, it); err != nil {
			return nil, err
		}
		return it, nil
	}
	return nil, err
}

// AddItem puts one unit of menuID into the user's cart, opening the cart
// when needed.  Adding a menu already in the cart increments its line.
func (s *Service) AddItem(ctx context.Context, userID, menuID uint64) (*model.BookingItem, error) {
	var item *model.BookingItem
	err := s.withLocks(ctx, []string{lock.UserKey(userID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			m, err := orderable(ctx, tx, menuID)
			if err != nil {
				return err
			}
			cart, err := s.cartForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			if item, err = mergeItem(ctx, tx, cart.ID, m, booking.SourceOnline, 1); err != nil {
				return err
			}
			_, err = recomputeTotal(ctx, tx, cart.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "menu_id": menuID, "quantity": item.Quantity}).Debug("cart item added")
	return item, nil
}

// cartItem locks the user's cart and returns the item if it belongs to it.
func cartItem(ctx context.Context, tx repository.Tx, userID, itemID uint64) (*model.Booking, *model.BookingItem, error) {
	cart, err := tx.LockPendingBooking(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	it, err := tx.ItemByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if it.BookingID != cart.ID {
		owner, err := tx.BookingByID(ctx, it.BookingID)
		if err == nil && !owner.OwnedBy(userID) {
			return nil, nil, repository.ErrForbidden
		}
		return nil, nil, fmt.Errorf("%w: item %d is not in the cart", repository.ErrNotFound, itemID)
	}
	return cart, it, nil
}

// UpdateQuantity changes a cart line by delta.  The quantity never drops
// below one; RemoveItem deletes a line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID uint64, delta int) (*model.BookingItem, error) {
	var item *model.BookingItem
	err := s.withLocks(ctx, []string{lock.UserKey(userID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			cart, it, err := cartItem(ctx, tx, userID, itemID)
			if err != nil {
				return err
			}
			if q := booking.ApplyDelta(it.Quantity, delta); q != it.Quantity {
				it.SetQuantity(q)
				if err := tx.UpdateItem(ctx, it); err != nil {
					return err
				}
			}
			item = it
			_, err = recomputeTotal(ctx, tx, cart.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID uint64) error {
	return s.withLocks(ctx, []string{lock.UserKey(userID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			cart, it, err := cartItem(ctx, tx, userID, itemID)
			if err != nil {
				return err
			}
			if err := tx.DeleteItem(ctx, it.ID); err != nil {
				return err
			}
			_, err = recomputeTotal(ctx, tx, cart.ID)
			return err
		})
	})
}

// CancelCart abandons the user's pending booking: its items, table links
// and the row itself are deleted.
func (s *Service) CancelCart(ctx context.Context, userID uint64) error {
	var code string
	err := s.withLocks(ctx, []string{lock.UserKey(userID)}, func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			cart, err := tx.LockPendingBooking(ctx, userID)
			if err != nil {
				return err
			}
			if _, err := booking.Transition(cart.Status, booking.EventDiscard); err != nil {
				return err
			}
			code = cart.Code
			return tx.DeleteBooking(ctx, cart.ID)
		})
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "code": code}).Info("cart discarded")
	return nil
}

// Menus lists the menu entries on sale.
func (s *Service) Menus(ctx context.Context) ([]model.Menu, error) {
	all, err := s.store.ListMenus(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}
