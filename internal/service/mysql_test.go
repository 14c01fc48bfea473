package service

import (
	"context"
	"errors"
	"io"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/payment"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// Users 8001-8099 belong to these tests; their rows are removed before
// and after each run.
const mysqlUser = 8000

// openLocks grants every lock immediately, leaving the database as the
// only thing that serializes competing checkouts.
type openLocks struct{}

func (openLocks) Lock(context.Context, ...string) (func(), error) { return func() {}, nil }

type mysqlFixture struct {
	svc    *Service
	store  *repository.MySQLStore
	gw     *payment.Fake
	events *queue.Recorder
}

func newMySQLFixture(t *testing.T) *mysqlFixture {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reset := func() {
		if _, err := db.Exec(`DELETE FROM bookings WHERE user_id BETWEEN ? AND ?`, mysqlUser, mysqlUser+99); err != nil {
			t.Fatalf("clear bookings: %v", err)
		}
	}
	reset()
	t.Cleanup(reset)

	clock := &testClock{}
	clock.at(t, "12:00")
	store := repository.NewMySQLStore(db)
	gw := payment.NewFake(testKey)
	events := &queue.Recorder{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := New(Deps{
		Store:   store,
		Locks:   openLocks{},
		Gateway: gw,
		Events:  events,
		Log:     log,
	}, Options{
		Rules:          slot.DefaultRules(time.UTC),
		PaymentTimeout: 5 * time.Second,
		PaymentHold:    30 * time.Minute,
		Now:            clock.Now,
	})
	return &mysqlFixture{svc: svc, store: store, gw: gw, events: events}
}

func (f *mysqlFixture) reserve(t *testing.T, userID uint64, hhmm string, party int, tables ...uint64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.SetReservation(ctx, userID, ReservationRequest{Date: testDate, Time: hhmm, PartySize: party, TableIDs: tables}); err != nil {
		t.Fatalf("SetReservation: %v", err)
	}
	if _, err := f.svc.AddItem(ctx, userID, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
}

func TestMySQLConcurrentCheckoutGrantsSlotOnce(t *testing.T) {
	f := newMySQLFixture(t)
	ctx := context.Background()
	const users = 8
	for i := uint64(1); i <= users; i++ {
		f.reserve(t, mysqlUser+i, "18:00", 4, 5)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		conflicts int
	)
	for i := uint64(1); i <= users; i++ {
		wg.Add(1)
		go func(u uint64) {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, booking.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("user %d: unexpected error %v", u, err)
			}
		}(mysqlUser + i)
	}
	wg.Wait()
	if granted != 1 || conflicts != users-1 {
		t.Fatalf("expected one grant and %d conflicts, got %d and %d", users-1, granted, conflicts)
	}
	occ, err := f.store.Occupancy(ctx, testDate, []uint64{5})
	if err != nil {
		t.Fatal(err)
	}
	if len(occ) != 1 {
		t.Fatalf("expected one blocking booking on table 5, got %+v", occ)
	}
}

func TestMySQLDuplicateNotificationsApplyOnce(t *testing.T) {
	f := newMySQLFixture(t)
	ctx := context.Background()
	u := uint64(mysqlUser + 50)
	f.reserve(t, u, "19:00", 2, 1)
	res, err := f.svc.Checkout(ctx, u)
	if err != nil {
		t.Fatal(err)
	}
	body := f.gw.Notify(orderID(t, res.Booking), "settlement", res.Booking.TotalPrice)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.HandlePaymentNotification(ctx, body)
			if err != nil {
				t.Error(err)
				return
			}
			if out.Outcome == booking.OutcomePaid {
				mu.Lock()
				paid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if paid != 1 {
		t.Fatalf("settlement applied %d times", paid)
	}
	got, err := f.store.BookingByCode(ctx, res.Booking.Code)
	if err != nil || got.PaymentStatus != booking.PaymentSuccess {
		t.Fatalf("unexpected booking %+v %v", got, err)
	}
	if types := f.events.Types(); !reflect.DeepEqual(types, []queue.EventType{queue.EventReserved, queue.EventPaid}) {
		t.Fatalf("unexpected events %v", types)
	}
}
