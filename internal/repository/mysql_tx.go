package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
)

// mysqlTx implements Tx on a *sql.Tx.
type mysqlTx struct {
	*queries
}

func (t *mysqlTx) locking() *queries { return &queries{q: t.q, lock: " FOR UPDATE"} }

// LockTables locks the table rows so that concurrent reservations of the
// same tables serialize on them until commit.
func (t *mysqlTx) LockTables(ctx context.Context, ids []uint64) ([]model.Table, error) {
	if len(ids) == 0 {
		return []model.Table{}, nil
	}
	in, args := inClause(ids)
	return t.scanTables(ctx, `SELECT `+tableColumns+` FROM tables WHERE id IN `+in+` ORDER BY id FOR UPDATE`, args...)
}

// Occupancy is a locking read inside a transaction.  A plain select would
// answer from the snapshot taken by the transaction's first read and miss
// a reservation committed while this transaction waited in LockTables.
func (t *mysqlTx) Occupancy(ctx context.Context, date string, tableIDs []uint64) ([]booking.Occupancy, error) {
	return (&queries{q: t.q, lock: " FOR SHARE"}).Occupancy(ctx, date, tableIDs)
}

func (t *mysqlTx) LockBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return t.locking().BookingByID(ctx, id)
}

func (t *mysqlTx) LockPendingBooking(ctx context.Context, userID uint64) (*model.Booking, error) {
	return t.locking().PendingBooking(ctx, userID)
}

func (t *mysqlTx) ItemFor(ctx context.Context, bookingID, menuID uint64, source booking.ItemSource) (*model.BookingItem, error) {
	q := `SELECT ` + itemColumns + ` FROM booking_items WHERE booking_id = ? AND menu_id = ? AND source = ? FOR UPDATE`
	it, err := scanItem(t.q.QueryRowContext(ctx, q, bookingID, menuID, string(source)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

// CreateBooking inserts the booking row and its table links, then reads the
// row back to pick up generated defaults.
func (t *mysqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings
        (code, user_id, guest_name, party_size, reservation_date, reservation_time,
         booking_status, payment_status, total_price, qr_scanned, checkin_time, checkout_time,
         payment_token, payment_url, payment_order_id, placed_at, is_walk_in)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.q.ExecContext(ctx, q,
		b.Code, nullUint(b.UserID), b.GuestName, b.PartySize, nullIfEmpty(b.Date), nullIfEmpty(b.Time),
		string(b.Status), string(b.PaymentStatus), b.TotalPrice, b.QRScanned, b.CheckinTime, b.CheckoutTime,
		b.PaymentToken, b.PaymentURL, b.PaymentOrderID, b.PlacedAt, b.WalkIn)
	if err != nil {
		return mapWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := t.SetBookingTables(ctx, uint64(id), b.TableIDs); err != nil {
		return err
	}
	stored, err := t.BookingByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*b = *stored
	return nil
}

func (t *mysqlTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	const q = `UPDATE bookings SET
        guest_name = ?, party_size = ?, reservation_date = ?, reservation_time = ?,
        booking_status = ?, payment_status = ?, total_price = ?, qr_scanned = ?,
        checkin_time = ?, checkout_time = ?, payment_token = ?, payment_url = ?, payment_order_id = ?,
        placed_at = ?
        WHERE id = ?`
	res, err := t.q.ExecContext(ctx, q,
		b.GuestName, b.PartySize, nullIfEmpty(b.Date), nullIfEmpty(b.Time),
		string(b.Status), string(b.PaymentStatus), b.TotalPrice, b.QRScanned,
		b.CheckinTime, b.CheckoutTime, b.PaymentToken, b.PaymentURL, b.PaymentOrderID, b.PlacedAt, b.ID)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

// SetBookingTables replaces the table links of a booking with a single
// bulk insert.
func (t *mysqlTx) SetBookingTables(ctx context.Context, bookingID uint64, tableIDs []uint64) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM booking_tables WHERE booking_id = ?`, bookingID); err != nil {
		return err
	}
	if len(tableIDs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_tables (booking_id, table_id) VALUES `)
	args := make([]any, 0, len(tableIDs)*2)
	for i, id := range tableIDs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?)")
		args = append(args, bookingID, id)
	}
	if _, err := t.q.ExecContext(ctx, sb.String(), args...); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (t *mysqlTx) DeleteBooking(ctx context.Context, id uint64) error {
	for _, q := range []string{
		`DELETE FROM booking_items WHERE booking_id = ?`,
		`DELETE FROM booking_tables WHERE booking_id = ?`,
	} {
		if _, err := t.q.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := t.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *mysqlTx) SetPaymentStatus(ctx context.Context, id uint64, from, to booking.PaymentStatus) (bool, error) {
	const q = `UPDATE bookings SET payment_status = ? WHERE id = ? AND payment_status = ?`
	res, err := t.q.ExecContext(ctx, q, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *mysqlTx) CheckIn(ctx context.Context, id uint64, at time.Time) (bool, error) {
	const q = `UPDATE bookings SET booking_status = 'seated', qr_scanned = 1, checkin_time = ?
               WHERE id = ? AND booking_status = 'reserve' AND qr_scanned = 0`
	res, err := t.q.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *mysqlTx) SetTotal(ctx context.Context, bookingID uint64, total int64) error {
	_, err := t.q.ExecContext(ctx, `UPDATE bookings SET total_price = ? WHERE id = ?`, total, bookingID)
	return err
}

func (t *mysqlTx) CreateItem(ctx context.Context, it *model.BookingItem) error {
	const q = `INSERT INTO booking_items (booking_id, menu_id, menu_name, quantity, unit_price, subtotal, source)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := t.q.ExecContext(ctx, q, it.BookingID, it.MenuID, it.MenuName, it.Quantity, it.UnitPrice, it.Subtotal, string(it.Source))
	if err != nil {
		return mapWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := t.ItemByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*it = *stored
	return nil
}

func (t *mysqlTx) UpdateItem(ctx context.Context, it *model.BookingItem) error {
	res, err := t.q.ExecContext(ctx, `UPDATE booking_items SET quantity = ?, subtotal = ? WHERE id = ?`, it.Quantity, it.Subtotal, it.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *mysqlTx) DeleteItem(ctx context.Context, id uint64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM booking_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *mysqlTx) CreateWalkInPayment(ctx context.Context, p *model.WalkInPayment) error {
	const q = `INSERT INTO walk_in_payments (booking_id, payment_method, total_amount, amount_paid, change_amount)
               VALUES (?, ?, ?, ?, ?)`
	res, err := t.q.ExecContext(ctx, q, p.BookingID, string(p.PaymentMethod), p.TotalAmount, p.AmountPaid, p.ChangeAmount)
	if err != nil {
		return mapWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = time.Now().UTC()
	return nil
}

// requireRow turns an update or delete that matched nothing into
// ErrNotFound.  The DSN sets clientFoundRows so unchanged rows still count.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ Tx    = (*mysqlTx)(nil)
	_ Store = (*MySQLStore)(nil)
)
