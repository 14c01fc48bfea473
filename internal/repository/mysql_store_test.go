package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/model"
)

// Rows written here use their own date and user ids so that other
// packages testing against the same database are not disturbed.
const (
	mysqlDate   = "2030-03-14"
	mysqlUserLo = 9000
	mysqlUserHi = 9099
)

// openMySQL connects to TEST_MYSQL_DSN, migrates it and removes bookings
// left over from earlier runs.  Without the variable the test is skipped.
func openMySQL(t *testing.T) *MySQLStore {
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
		const q = `DELETE FROM bookings WHERE reservation_date = ? OR user_id BETWEEN ? AND ?`
		if _, err := db.Exec(q, mysqlDate, mysqlUserLo, mysqlUserHi); err != nil {
			t.Fatalf("clear bookings: %v", err)
		}
	}
	reset()
	t.Cleanup(reset)
	return NewMySQLStore(db)
}

func create(t *testing.T, s Store, b *model.Booking) error {
	t.Helper()
	return s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateBooking(ctx, b)
	})
}

func reserved(userID uint64, clock string, payment booking.PaymentStatus, tables ...uint64) *model.Booking {
	return &model.Booking{Code: booking.NewCode(), UserID: uid(userID), PartySize: 2, Date: mysqlDate, Time: clock,
		Status: booking.StatusReserve, PaymentStatus: payment, TableIDs: tables}
}

func TestMySQLOnePendingPerUser(t *testing.T) {
	s := openMySQL(t)
	ctx := context.Background()
	cart := func() *model.Booking {
		return &model.Booking{Code: booking.NewCode(), UserID: uid(9001), PartySize: 1,
			Status: booking.StatusPending, PaymentStatus: booking.PaymentPending}
	}
	if err := create(t, s, cart()); err != nil {
		t.Fatalf("first cart: %v", err)
	}
	if err := create(t, s, cart()); !errors.Is(err, ErrPendingExists) {
		t.Fatalf("expected ErrPendingExists, got %v", err)
	}

	// Once the cart is checked out the user may open another one.
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.LockPendingBooking(ctx, 9001)
		if err != nil {
			return err
		}
		b.Status, b.PaymentStatus = booking.StatusReserve, booking.PaymentPlaced
		b.Date, b.Time = mysqlDate, "19:00"
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := create(t, s, cart()); err != nil {
		t.Fatalf("second cart after checkout: %v", err)
	}
}

func TestMySQLUpdateOfUnchangedRowIsFound(t *testing.T) {
	s := openMySQL(t)
	ctx := context.Background()
	b := reserved(9002, "19:00", booking.PaymentPlaced, 2)
	if err := create(t, s, b); err != nil {
		t.Fatal(err)
	}
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, cur)
	})
	if err != nil {
		t.Fatalf("rewriting identical values must not be ErrNotFound: %v", err)
	}
	err = s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		missing := *b
		missing.ID = b.ID + 1_000_000
		return tx.UpdateBooking(ctx, &missing)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing row, got %v", err)
	}
}

func TestMySQLPaymentCompareAndSet(t *testing.T) {
	s := openMySQL(t)
	ctx := context.Background()
	b := reserved(9003, "19:00", booking.PaymentPlaced, 1)
	if err := create(t, s, b); err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				ok, err := tx.SetPaymentStatus(ctx, b.ID, booking.PaymentPlaced, booking.PaymentSuccess)
				if ok {
					mu.Lock()
					applied++
					mu.Unlock()
				}
				return err
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("placed -> success applied %d times", applied)
	}
	got, err := s.BookingByID(ctx, b.ID)
	if err != nil || got.PaymentStatus != booking.PaymentSuccess {
		t.Fatalf("unexpected booking %+v %v", got, err)
	}
}

func TestMySQLCheckInGuard(t *testing.T) {
	s := openMySQL(t)
	ctx := context.Background()
	b := reserved(9004, "18:00", booking.PaymentSuccess, 3)
	if err := create(t, s, b); err != nil {
		t.Fatal(err)
	}
	checkIn := func() bool {
		var ok bool
		err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			ok, err = tx.CheckIn(ctx, b.ID, b.CreatedAt)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return ok
	}
	if !checkIn() {
		t.Fatal("first scan must seat the booking")
	}
	if checkIn() {
		t.Fatal("second scan must change nothing")
	}
	got, err := s.BookingByID(ctx, b.ID)
	if err != nil || got.Status != booking.StatusSeated || !got.QRScanned || got.CheckinTime == nil {
		t.Fatalf("unexpected booking %+v %v", got, err)
	}
}

func TestMySQLOccupancySeesCommitsAfterSnapshot(t *testing.T) {
	s := openMySQL(t)
	ctx := context.Background()
	other := reserved(9005, "12:00", booking.PaymentSuccess, 3)
	if err := create(t, s, other); err != nil {
		t.Fatal(err)
	}

	snapshot := make(chan struct{})
	committed := make(chan struct{})
	done := make(chan error, 1)
	var occ []booking.Occupancy
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			// A plain read opens the transaction's snapshot.
			if _, err := tx.BookingByID(ctx, other.ID); err != nil {
				close(snapshot)
				return err
			}
			close(snapshot)
			<-committed
			if _, err := tx.LockTables(ctx, []uint64{5}); err != nil {
				return err
			}
			var err error
			occ, err = tx.Occupancy(ctx, mysqlDate, []uint64{5})
			return err
		})
	}()
	<-snapshot

	rival := reserved(9006, "18:00", booking.PaymentPlaced, 5)
	err := create(t, s, rival)
	close(committed)
	if err != nil {
		<-done
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if len(occ) != 1 || occ[0].BookingID != rival.ID {
		t.Fatalf("occupancy inside the older transaction missed the rival booking: %+v", occ)
	}
}
