package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so that every query can
// run either on the pool or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries implements Reader over a dbtx.  All dates and times are stored
// in restaurant local time; DATE and TIME columns are formatted by MySQL
// so no driver time zone conversion applies to them.
type queries struct {
	q dbtx
	// lock is appended to selects that must read the latest committed rows
	// inside a transaction rather than its snapshot.
	lock string
}

// MySQLStore is the production Store.
type MySQLStore struct {
	*queries
	db *sql.DB
}

// NewMySQLStore returns a store bound to db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{queries: &queries{q: db}, db: db}
}

// DB exposes the underlying pool for health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

// WithinTx runs fn inside a database transaction.  The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *MySQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if err := fn(ctx, &mysqlTx{queries: &queries{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

const bookingColumns = `b.id, b.code, b.user_id, b.guest_name, b.party_size,
       DATE_FORMAT(b.reservation_date, '%Y-%m-%d'), TIME_FORMAT(b.reservation_time, '%H:%i'),
       b.booking_status, b.payment_status, b.total_price, b.qr_scanned,
       b.checkin_time, b.checkout_time, b.payment_token, b.payment_url, b.payment_order_id, b.placed_at,
       b.is_walk_in, b.created_at, b.updated_at`

func scanBooking(s scanner) (*model.Booking, error) {
	var (
		b                           model.Booking
		userID                      sql.NullInt64
		guest, date, clock          sql.NullString
		token, url, orderID         sql.NullString
		status, payment             string
		checkin, checkout, placedAt sql.NullTime
	)
	err := s.Scan(&b.ID, &b.Code, &userID, &guest, &b.PartySize, &date, &clock,
		&status, &payment, &b.TotalPrice, &b.QRScanned,
		&checkin, &checkout, &token, &url, &orderID, &placedAt,
		&b.WalkIn, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		id := uint64(userID.Int64)
		b.UserID = &id
	}
	b.GuestName = fromNullString(guest)
	b.Date = date.String
	b.Time = clock.String
	b.Status = booking.Status(status)
	b.PaymentStatus = booking.PaymentStatus(payment)
	b.CheckinTime = fromNullTime(checkin)
	b.CheckoutTime = fromNullTime(checkout)
	b.PaymentToken = fromNullString(token)
	b.PaymentURL = fromNullString(url)
	b.PaymentOrderID = fromNullString(orderID)
	b.PlacedAt = fromNullTime(placedAt)
	b.TableIDs = []uint64{}
	return &b, nil
}

func (r *queries) oneBooking(ctx context.Context, where string, args ...any) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b WHERE ` + where + ` LIMIT 1` + r.lock
	b, err := scanBooking(r.q.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.attachTables(ctx, []*model.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *queries) manyBookings(ctx context.Context, q string, args ...any) ([]model.Booking, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ptrs []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachTables(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0, len(ptrs))
	for _, b := range ptrs {
		out = append(out, *b)
	}
	return out, nil
}

// attachTables loads booking_tables for all bookings in one query.  It
// takes the same lock as the booking select so a locking lookup does not
// open the transaction's read snapshot.
func (r *queries) attachTables(ctx context.Context, bookings []*model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Booking, len(bookings))
	ids := make([]uint64, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}
	in, args := inClause(ids)
	q := `SELECT booking_id, table_id FROM booking_tables WHERE booking_id IN ` + in + ` ORDER BY booking_id, table_id` + r.lock
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var bookingID, tableID uint64
		if err := rows.Scan(&bookingID, &tableID); err != nil {
			return err
		}
		if b, ok := byID[bookingID]; ok {
			b.TableIDs = append(b.TableIDs, tableID)
		}
	}
	return rows.Err()
}

func (r *queries) BookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.oneBooking(ctx, `b.id = ?`, id)
}

func (r *queries) BookingByCode(ctx context.Context, code string) (*model.Booking, error) {
	return r.oneBooking(ctx, `b.code = ?`, code)
}

func (r *queries) PendingBooking(ctx context.Context, userID uint64) (*model.Booking, error) {
	return r.oneBooking(ctx, `b.user_id = ? AND b.booking_status = 'pending'`, userID)
}

// ListBookings returns bookings matching f ordered by slot, newest carts
// last.  Limit defaults to 100.
func (r *queries) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != nil {
		conds = append(conds, `b.user_id = ?`)
		args = append(args, *f.UserID)
	}
	if f.Date != "" {
		conds = append(conds, `b.reservation_date = ?`)
		args = append(args, f.Date)
	}
	if f.Status != booking.StatusNone {
		conds = append(conds, `b.booking_status = ?`)
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings b`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` ORDER BY b.reservation_date IS NULL, b.reservation_date, b.reservation_time, b.id LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)
	return r.manyBookings(ctx, q, args...)
}

const itemColumns = `id, booking_id, menu_id, menu_name, quantity, unit_price, subtotal, source, created_at, updated_at`

func scanItem(s scanner) (*model.BookingItem, error) {
	var it model.BookingItem
	var source string
	if err := s.Scan(&it.ID, &it.BookingID, &it.MenuID, &it.MenuName, &it.Quantity,
		&it.UnitPrice, &it.Subtotal, &source, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Source = booking.ItemSource(source)
	return &it, nil
}

func (r *queries) Items(ctx context.Context, bookingID uint64) ([]model.BookingItem, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM booking_items WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []model.BookingItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *queries) ItemByID(ctx context.Context, id uint64) (*model.BookingItem, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM booking_items WHERE id = ?`+r.lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

func (r *queries) WalkInPayment(ctx context.Context, bookingID uint64) (*model.WalkInPayment, error) {
	const q = `SELECT id, booking_id, payment_method, total_amount, amount_paid, change_amount, created_at
               FROM walk_in_payments WHERE booking_id = ?`
	var (
		p            model.WalkInPayment
		method       string
		paid, change sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx, q, bookingID).Scan(&p.ID, &p.BookingID, &method, &p.TotalAmount, &paid, &change, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.PaymentMethod = booking.PaymentMethod(method)
	p.AmountPaid = fromNullInt(paid)
	p.ChangeAmount = fromNullInt(change)
	return &p, nil
}

const tableColumns = `id, name, capacity, pos_x, pos_y, is_active, created_at, updated_at`

func (r *queries) scanTables(ctx context.Context, q string, args ...any) ([]model.Table, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tables := []model.Table{}
	for rows.Next() {
		var t model.Table
		if err := rows.Scan(&t.ID, &t.Name, &t.Capacity, &t.PosX, &t.PosY, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *queries) TablesByIDs(ctx context.Context, ids []uint64) ([]model.Table, error) {
	if len(ids) == 0 {
		return []model.Table{}, nil
	}
	in, args := inClause(ids)
	return r.scanTables(ctx, `SELECT `+tableColumns+` FROM tables WHERE id IN `+in+` ORDER BY id`, args...)
}

func (r *queries) ListTables(ctx context.Context, activeOnly bool) ([]model.Table, error) {
	q := `SELECT ` + tableColumns + ` FROM tables`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	return r.scanTables(ctx, q+` ORDER BY id`)
}

func (r *queries) Occupancy(ctx context.Context, date string, tableIDs []uint64) ([]booking.Occupancy, error) {
	q := `SELECT b.id, b.code, bt.table_id, t.name, TIME_FORMAT(b.reservation_time, '%H:%i'), b.booking_status
          FROM booking_tables bt
          JOIN bookings b ON b.id = bt.booking_id
          JOIN tables t ON t.id = bt.table_id
          WHERE b.reservation_date = ? AND b.booking_status IN ('reserve', 'seated')`
	args := []any{date}
	if tableIDs != nil {
		if len(tableIDs) == 0 {
			return []booking.Occupancy{}, nil
		}
		in, inArgs := inClause(tableIDs)
		q += ` AND bt.table_id IN ` + in
		args = append(args, inArgs...)
	}
	q += ` ORDER BY bt.table_id, b.reservation_time` + r.lock
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []booking.Occupancy{}
	for rows.Next() {
		var (
			o             booking.Occupancy
			clock, status string
		)
		if err := rows.Scan(&o.BookingID, &o.Code, &o.TableID, &o.TableName, &clock, &status); err != nil {
			return nil, err
		}
		start, err := slot.ParseClock(clock)
		if err != nil {
			return nil, fmt.Errorf("booking %d: %w", o.BookingID, err)
		}
		o.Start = start
		o.Status = booking.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *queries) MenuByID(ctx context.Context, id uint64) (*model.Menu, error) {
	var m model.Menu
	err := r.q.QueryRowContext(ctx, `SELECT id, name, price, is_active FROM menus WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Price, &m.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *queries) ListMenus(ctx context.Context) ([]model.Menu, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, price, is_active FROM menus ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	menus := []model.Menu{}
	for rows.Next() {
		var m model.Menu
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.IsActive); err != nil {
			return nil, err
		}
		menus = append(menus, m)
	}
	return menus, rows.Err()
}

func (r *queries) ReservedUnscanned(ctx context.Context, date string) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b
          WHERE b.booking_status = 'reserve' AND b.payment_status = 'success'
            AND b.qr_scanned = 0 AND b.reservation_date <= ?
          ORDER BY b.reservation_date, b.reservation_time, b.id`
	return r.manyBookings(ctx, q, date)
}

func (r *queries) PlacedBefore(ctx context.Context, cutoff time.Time) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings b
          WHERE b.booking_status = 'reserve' AND b.payment_status = 'placed' AND b.placed_at < ?
          ORDER BY b.placed_at, b.id`
	return r.manyBookings(ctx, q, cutoff.UTC())
}

// inClause renders "(?, ?, ?)" with matching arguments.
func inClause(ids []uint64) (string, []any) {
	args := make([]any, 0, len(ids))
	marks := make([]string, 0, len(ids))
	for _, id := range ids {
		marks = append(marks, "?")
		args = append(args, id)
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func fromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
