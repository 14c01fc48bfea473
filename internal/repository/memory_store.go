package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// MemoryStore keeps everything in process.  Transactions run one at a
// time against a private copy of the data that replaces the committed
// state only when the callback succeeds, which gives the same isolation a
// fully locking database would.  Reads outside a transaction see the last
// committed state and never wait for a running one, but writers queue
// behind each other: a checkout waiting up to PAYMENT_TIMEOUT on the
// gateway delays every other write.  It backs STORE_DRIVER=memory for a
// single instance and the service and handler tests.
type MemoryStore struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.Mutex // guards st
	st   *memState
}

type memState struct {
	nextBooking uint64
	nextItem    uint64
	nextPayment uint64
	bookings    map[uint64]model.Booking
	items       map[uint64]model.BookingItem
	tables      map[uint64]model.Table
	menus       map[uint64]model.Menu
	payments    map[uint64]model.WalkInPayment // keyed by booking id
	now         func() time.Time
}

// NewMemoryStore returns a store seeded with tables and menus.
func NewMemoryStore(tables []model.Table, menus []model.Menu) *MemoryStore {
	now := func() time.Time { return time.Now().UTC() }
	st := &memState{
		bookings: map[uint64]model.Booking{},
		items:    map[uint64]model.BookingItem{},
		tables:   map[uint64]model.Table{},
		menus:    map[uint64]model.Menu{},
		payments: map[uint64]model.WalkInPayment{},
		now:      now,
	}
	for _, t := range tables {
		st.tables[t.ID] = t
	}
	for _, m := range menus {
		st.menus[m.ID] = m
	}
	return &MemoryStore{st: st}
}

// SetClock replaces the clock used for created_at and updated_at.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.now = now
}

// WithinTx runs fn against a copy of the data and commits the copy when
// fn returns nil.  fn must not open another transaction on the store.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	work := m.read().clone()
	if err := fn(ctx, &memTx{memState: work}); err != nil {
		return err
	}
	m.mu.Lock()
	m.st = work
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) read() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

func (m *MemoryStore) BookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return m.read().BookingByID(ctx, id)
}

func (m *MemoryStore) BookingByCode(ctx context.Context, code string) (*model.Booking, error) {
	return m.read().BookingByCode(ctx, code)
}

func (m *MemoryStore) PendingBooking(ctx context.Context, userID uint64) (*model.Booking, error) {
	return m.read().PendingBooking(ctx, userID)
}

func (m *MemoryStore) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	return m.read().ListBookings(ctx, f)
}

func (m *MemoryStore) Items(ctx context.Context, bookingID uint64) ([]model.BookingItem, error) {
	return m.read().Items(ctx, bookingID)
}

func (m *MemoryStore) ItemByID(ctx context.Context, id uint64) (*model.BookingItem, error) {
	return m.read().ItemByID(ctx, id)
}

func (m *MemoryStore) WalkInPayment(ctx context.Context, bookingID uint64) (*model.WalkInPayment, error) {
	return m.read().WalkInPayment(ctx, bookingID)
}

func (m *MemoryStore) TablesByIDs(ctx context.Context, ids []uint64) ([]model.Table, error) {
	return m.read().TablesByIDs(ctx, ids)
}

func (m *MemoryStore) ListTables(ctx context.Context, activeOnly bool) ([]model.Table, error) {
	return m.read().ListTables(ctx, activeOnly)
}

func (m *MemoryStore) Occupancy(ctx context.Context, date string, tableIDs []uint64) ([]booking.Occupancy, error) {
	return m.read().Occupancy(ctx, date, tableIDs)
}

func (m *MemoryStore) MenuByID(ctx context.Context, id uint64) (*model.Menu, error) {
	return m.read().MenuByID(ctx, id)
}

func (m *MemoryStore) ListMenus(ctx context.Context) ([]model.Menu, error) {
	return m.read().ListMenus(ctx)
}

func (m *MemoryStore) ReservedUnscanned(ctx context.Context, date string) ([]model.Booking, error) {
	return m.read().ReservedUnscanned(ctx, date)
}

func (m *MemoryStore) PlacedBefore(ctx context.Context, cutoff time.Time) ([]model.Booking, error) {
	return m.read().PlacedBefore(ctx, cutoff)
}

// clone deep copies the state.  Committed states are never mutated, so a
// reader holding an old pointer sees a consistent snapshot.
func (s *memState) clone() *memState {
	c := &memState{
		nextBooking: s.nextBooking,
		nextItem:    s.nextItem,
		nextPayment: s.nextPayment,
		bookings:    make(map[uint64]model.Booking, len(s.bookings)),
		items:       make(map[uint64]model.BookingItem, len(s.items)),
		tables:      make(map[uint64]model.Table, len(s.tables)),
		menus:       make(map[uint64]model.Menu, len(s.menus)),
		payments:    make(map[uint64]model.WalkInPayment, len(s.payments)),
		now:         s.now,
	}
	for k, v := range s.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.tables {
		c.tables[k] = v
	}
	for k, v := range s.menus {
		c.menus[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func copyBooking(b model.Booking) model.Booking {
	b.TableIDs = append([]uint64{}, b.TableIDs...)
	return b
}

func (s *memState) BookingByID(_ context.Context, id uint64) (*model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyBooking(b)
	return &c, nil
}

func (s *memState) BookingByCode(_ context.Context, code string) (*model.Booking, error) {
	for _, b := range s.bookings {
		if b.Code == code {
			c := copyBooking(b)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) PendingBooking(_ context.Context, userID uint64) (*model.Booking, error) {
	for _, b := range s.bookings {
		if b.Status == booking.StatusPending && b.OwnedBy(userID) {
			c := copyBooking(b)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) ListBookings(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, b := range s.bookings {
		if f.UserID != nil && !b.OwnedBy(*f.UserID) {
			continue
		}
		if f.Date != "" && b.Date != f.Date {
			continue
		}
		if f.Status != booking.StatusNone && b.Status != f.Status {
			continue
		}
		out = append(out, copyBooking(b))
	}
	sortBookings(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []model.Booking{}, nil
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortBookings orders like the MySQL listing: dated bookings by slot,
// then undated carts, ties by id.
func sortBookings(bs []model.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if (a.Date == "") != (b.Date == "") {
			return b.Date == ""
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
}

func (s *memState) Items(_ context.Context, bookingID uint64) ([]model.BookingItem, error) {
	out := []model.BookingItem{}
	for _, it := range s.items {
		if it.BookingID == bookingID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) ItemByID(_ context.Context, id uint64) (*model.BookingItem, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (s *memState) WalkInPayment(_ context.Context, bookingID uint64) (*model.WalkInPayment, error) {
	p, ok := s.payments[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *memState) TablesByIDs(_ context.Context, ids []uint64) ([]model.Table, error) {
	out := []model.Table{}
	seen := map[uint64]bool{}
	for _, id := range ids {
		if t, ok := s.tables[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) ListTables(_ context.Context, activeOnly bool) ([]model.Table, error) {
	out := []model.Table{}
	for _, t := range s.tables {
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) Occupancy(_ context.Context, date string, tableIDs []uint64) ([]booking.Occupancy, error) {
	var want map[uint64]bool
	if tableIDs != nil {
		want = make(map[uint64]bool, len(tableIDs))
		for _, id := range tableIDs {
			want[id] = true
		}
	}
	out := []booking.Occupancy{}
	for _, b := range s.bookings {
		if b.Date != date || !b.Status.Blocking() {
			continue
		}
		start, err := slot.ParseClock(b.Time)
		if err != nil {
			return nil, err
		}
		for _, tid := range b.TableIDs {
			if want != nil && !want[tid] {
				continue
			}
			out = append(out, booking.Occupancy{
				BookingID: b.ID,
				Code:      b.Code,
				TableID:   tid,
				TableName: s.tables[tid].Name,
				Start:     start,
				Status:    b.Status,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableID != out[j].TableID {
			return out[i].TableID < out[j].TableID
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (s *memState) MenuByID(_ context.Context, id uint64) (*model.Menu, error) {
	m, ok := s.menus[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *memState) ListMenus(_ context.Context) ([]model.Menu, error) {
	out := make([]model.Menu, 0, len(s.menus))
	for _, m := range s.menus {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) ReservedUnscanned(_ context.Context, date string) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, b := range s.bookings {
		if b.Status == booking.StatusReserve && b.PaymentStatus == booking.PaymentSuccess &&
			!b.QRScanned && b.Date != "" && b.Date <= date {
			out = append(out, copyBooking(b))
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *memState) PlacedBefore(_ context.Context, cutoff time.Time) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, b := range s.bookings {
		if b.Status == booking.StatusReserve && b.PaymentStatus == booking.PaymentPlaced &&
			b.PlacedAt != nil && b.PlacedAt.Before(cutoff) {
			out = append(out, copyBooking(b))
		}
	}
	sortBookings(out)
	return out, nil
}

// memTx implements Tx on a private copy of the state.  Locks are implicit
// because transactions never overlap.
type memTx struct {
	*memState
}

func (t *memTx) LockTables(ctx context.Context, ids []uint64) ([]model.Table, error) {
	return t.TablesByIDs(ctx, ids)
}

func (t *memTx) LockBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	return t.BookingByID(ctx, id)
}

func (t *memTx) LockPendingBooking(ctx context.Context, userID uint64) (*model.Booking, error) {
	return t.PendingBooking(ctx, userID)
}

func (t *memTx) CreateBooking(_ context.Context, b *model.Booking) error {
	for _, other := range t.bookings {
		if other.Code == b.Code {
			return ErrConflict
		}
		if b.Status == booking.StatusPending && b.UserID != nil &&
			other.Status == booking.StatusPending && other.OwnedBy(*b.UserID) {
			return ErrPendingExists
		}
	}
	for _, tid := range b.TableIDs {
		if _, ok := t.tables[tid]; !ok {
			return ErrNotFound
		}
	}
	t.nextBooking++
	now := t.now()
	b.ID = t.nextBooking
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.TableIDs == nil {
		b.TableIDs = []uint64{}
	}
	t.bookings[b.ID] = copyBooking(*b)
	return nil
}

func (t *memTx) UpdateBooking(_ context.Context, b *model.Booking) error {
	cur, ok := t.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if b.Status == booking.StatusPending && cur.Status != booking.StatusPending && b.UserID != nil {
		for id, other := range t.bookings {
			if id != b.ID && other.Status == booking.StatusPending && other.OwnedBy(*b.UserID) {
				return ErrPendingExists
			}
		}
	}
	next := copyBooking(*b)
	next.TableIDs = cur.TableIDs
	next.Code = cur.Code
	next.UserID = cur.UserID
	next.WalkIn = cur.WalkIn
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = t.now()
	t.bookings[b.ID] = next
	return nil
}

func (t *memTx) SetBookingTables(_ context.Context, bookingID uint64, tableIDs []uint64) error {
	b, ok := t.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	for _, tid := range tableIDs {
		if _, ok := t.tables[tid]; !ok {
			return ErrNotFound
		}
	}
	b.TableIDs = append([]uint64{}, tableIDs...)
	sort.Slice(b.TableIDs, func(i, j int) bool { return b.TableIDs[i] < b.TableIDs[j] })
	t.bookings[bookingID] = b
	return nil
}

func (t *memTx) DeleteBooking(_ context.Context, id uint64) error {
	if _, ok := t.bookings[id]; !ok {
		return ErrNotFound
	}
	for iid, it := range t.items {
		if it.BookingID == id {
			delete(t.items, iid)
		}
	}
	delete(t.bookings, id)
	return nil
}

func (t *memTx) SetPaymentStatus(_ context.Context, id uint64, from, to booking.PaymentStatus) (bool, error) {
	b, ok := t.bookings[id]
	if !ok || b.PaymentStatus != from {
		return false, nil
	}
	b.PaymentStatus = to
	b.UpdatedAt = t.now()
	t.bookings[id] = b
	return true, nil
}

func (t *memTx) CheckIn(_ context.Context, id uint64, at time.Time) (bool, error) {
	b, ok := t.bookings[id]
	if !ok || b.Status != booking.StatusReserve || b.QRScanned {
		return false, nil
	}
	at = at.UTC()
	b.Status = booking.StatusSeated
	b.QRScanned = true
	b.CheckinTime = &at
	b.UpdatedAt = t.now()
	t.bookings[id] = b
	return true, nil
}

func (t *memTx) SetTotal(_ context.Context, bookingID uint64, total int64) error {
	b, ok := t.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.TotalPrice = total
	t.bookings[bookingID] = b
	return nil
}

func (t *memTx) ItemFor(_ context.Context, bookingID, menuID uint64, source booking.ItemSource) (*model.BookingItem, error) {
	for _, it := range t.items {
		if it.BookingID == bookingID && it.MenuID == menuID && it.Source == source {
			c := it
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CreateItem(ctx context.Context, it *model.BookingItem) error {
	if _, ok := t.bookings[it.BookingID]; !ok {
		return ErrNotFound
	}
	if _, err := t.ItemFor(ctx, it.BookingID, it.MenuID, it.Source); err == nil {
		return ErrConflict
	}
	t.nextItem++
	now := t.now()
	it.ID = t.nextItem
	it.CreatedAt = now
	it.UpdatedAt = now
	t.items[it.ID] = *it
	return nil
}

func (t *memTx) UpdateItem(_ context.Context, it *model.BookingItem) error {
	cur, ok := t.items[it.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Quantity = it.Quantity
	cur.Subtotal = it.Subtotal
	cur.UpdatedAt = t.now()
	t.items[it.ID] = cur
	*it = cur
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, id uint64) error {
	if _, ok := t.items[id]; !ok {
		return ErrNotFound
	}
	delete(t.items, id)
	return nil
}

func (t *memTx) CreateWalkInPayment(_ context.Context, p *model.WalkInPayment) error {
	if _, ok := t.bookings[p.BookingID]; !ok {
		return ErrNotFound
	}
	if _, dup := t.payments[p.BookingID]; dup {
		return ErrConflict
	}
	t.nextPayment++
	p.ID = t.nextPayment
	p.CreatedAt = t.now()
	t.payments[p.BookingID] = *p
	return nil
}

var (
	_ Tx    = (*memTx)(nil)
	_ Store = (*MemoryStore)(nil)
)
