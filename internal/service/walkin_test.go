package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/invoice"
	"github.com/iliyamo/table-reservation/internal/repository"
)

func int64p(v int64) *int64 { return &v }

func TestWalkInLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Staff may push two tables together even when one would do.
	res, err := f.svc.CreateWalkIn(ctx, WalkInRequest{GuestName: " Budi ", PartySize: 3, TableIDs: []uint64{4, 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := res.Booking
	if b.Status != booking.StatusSeated || b.PaymentStatus != booking.PaymentSuccess || !b.QRScanned || b.CheckinTime == nil || !b.WalkIn {
		t.Fatalf("unexpected walk-in %+v", b)
	}
	if b.Date != testDate || b.Time != "12:00" || b.GuestName == nil || *b.GuestName != "Budi" || b.UserID != nil {
		t.Fatalf("unexpected walk-in slot or guest %+v", b)
	}

	if _, err := f.svc.AddWalkInItems(ctx, b.ID, []ItemRequest{{MenuID: 1, Quantity: 2}, {MenuID: 4, Quantity: 1}}); err != nil {
		t.Fatal(err)
	}
	v, err := f.svc.AddWalkInItems(ctx, b.ID, []ItemRequest{{MenuID: 1, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Items) != 2 || v.Booking.TotalPrice != 3*35000+8000 {
		t.Fatalf("items not merged: total %d items %+v", v.Booking.TotalPrice, v.Items)
	}
	for _, it := range v.Items {
		if it.Source != booking.SourceWalkIn {
			t.Fatalf("expected walk_in source, got %+v", it)
		}
	}
	if _, err := f.svc.AddWalkInItems(ctx, b.ID, []ItemRequest{{MenuID: 1, Quantity: 0}}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	if _, err := f.svc.Settle(ctx, b.ID, SettleRequest{Method: booking.MethodCash, Tendered: int64p(100000)}); !errors.Is(err, booking.ErrInsufficientTender) {
		t.Fatalf("expected ErrInsufficientTender, got %v", err)
	}
	settled, err := f.svc.Settle(ctx, b.ID, SettleRequest{Method: booking.MethodCash, Tendered: int64p(120000)})
	if err != nil {
		t.Fatal(err)
	}
	if settled.Booking.Status != booking.StatusCompleted || settled.Booking.CheckoutTime == nil {
		t.Fatalf("booking not completed: %+v", settled.Booking)
	}
	if settled.Payment.TotalAmount != 113000 || *settled.Payment.AmountPaid != 120000 || *settled.Payment.ChangeAmount != 7000 {
		t.Fatalf("unexpected payment %+v", settled.Payment)
	}
	if _, err := f.svc.Settle(ctx, b.ID, SettleRequest{Method: booking.MethodQRIS}); !errors.Is(err, ErrNotSeated) {
		t.Fatalf("expected ErrNotSeated on second settlement, got %v", err)
	}

	inv, err := f.svc.Invoice(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Total != 113000 || inv.PaymentMethod != booking.MethodCash || len(inv.Tables) != 2 {
		t.Fatalf("unexpected invoice %+v", inv)
	}
}

func TestWalkInRespectsReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.paid(t, 1, "12:20", 4, 5)
	f.paid(t, 2, "18:00", 4, 4)

	// 12:00 is 20 minutes before the T5 reservation.
	_, err := f.svc.CreateWalkIn(ctx, WalkInRequest{PartySize: 2, TableIDs: []uint64{5}})
	var ce *booking.ConflictError
	if !errors.As(err, &ce) || ce.Report.Blocked[0].Relation != booking.RelationTooClose {
		t.Fatalf("expected too-close conflict, got %v", err)
	}

	res, err := f.svc.CreateWalkIn(ctx, WalkInRequest{PartySize: 2, TableIDs: []uint64{4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Report.Warnings) != 1 || res.Report.Warnings[0].OtherStart != "18:00" {
		t.Fatalf("expected a warning about the 18:00 booking, got %+v", res.Report)
	}

	// The seated walk-in now blocks later starts on T4.
	if _, err := f.svc.CreateWalkIn(ctx, WalkInRequest{PartySize: 2, TableIDs: []uint64{4}}); !errors.Is(err, booking.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if _, err := f.svc.CreateWalkIn(ctx, WalkInRequest{PartySize: 9, TableIDs: []uint64{6}}); !errors.Is(err, booking.ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
}

func TestSettleOnlineReservationChargesTableItemsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.paid(t, 1, "12:30", 2, 1)
	f.clock.at(t, "12:30")
	if _, err := f.svc.CheckIn(ctx, b.Code); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Settle(ctx, b.ID, SettleRequest{Method: booking.MethodDebit}); !errors.Is(err, ErrNothingToSettle) {
		t.Fatalf("prepaid booking without extras: expected ErrNothingToSettle, got %v", err)
	}
	if _, err := f.svc.AddWalkInItems(ctx, b.ID, []ItemRequest{{MenuID: 5, Quantity: 2}}); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Settle(ctx, b.ID, SettleRequest{Method: booking.MethodDebit})
	if err != nil {
		t.Fatal(err)
	}
	if res.Payment.TotalAmount != 36000 || res.Payment.AmountPaid != nil || res.Booking.TotalPrice != 35000+36000 {
		t.Fatalf("unexpected settlement %+v / %+v", res.Payment, res.Booking)
	}
}

func TestStaffTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart := f.reserve(t, 1, "19:00", 2, 1)
	if _, err := f.svc.Complete(ctx, cart.ID); !errors.Is(err, booking.ErrIllegalTransition) {
		t.Fatalf("pending cannot complete: got %v", err)
	}
	res, err := f.svc.Checkout(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	cancelled, err := f.svc.CancelBooking(ctx, res.Booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != booking.StatusCancelled || cancelled.PaymentStatus != booking.PaymentCancelled {
		t.Fatalf("unexpected cancelled booking %+v", cancelled)
	}
	if _, err := f.svc.MarkNoShow(ctx, res.Booking.ID); !errors.Is(err, booking.ErrIllegalTransition) {
		t.Fatalf("cancelled cannot become no_show: got %v", err)
	}

	paid := f.paid(t, 2, "19:00", 2, 2)
	noShow, err := f.svc.MarkNoShow(ctx, paid.ID)
	if err != nil || noShow.Status != booking.StatusNoShow {
		t.Fatalf("unexpected no-show result %+v %v", noShow, err)
	}

	other := f.paid(t, 3, "20:00", 2, 3)
	done, err := f.svc.Complete(ctx, other.ID)
	if err != nil || done.Status != booking.StatusCompleted || done.CheckoutTime == nil {
		t.Fatalf("unexpected completion %+v %v", done, err)
	}
	inv, err := f.svc.Invoice(ctx, other.ID)
	if err != nil || !inv.Online || inv.Total != 35000 {
		t.Fatalf("unexpected invoice %+v %v", inv, err)
	}
	if _, err := f.svc.Invoice(ctx, paid.ID); !errors.Is(err, invoice.ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, 999); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.paid(t, 1, "12:30", 2, 1)

	f.clock.at(t, "12:20")
	f.reserve(t, 2, "19:00", 2, 2)
	placed, err := f.svc.Checkout(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.at(t, "12:45")
	if n, err := f.svc.SweepNoShows(ctx); err != nil || n != 0 {
		t.Fatalf("window still open: swept %d, err %v", n, err)
	}
	if n, err := f.svc.ExpireUnpaid(ctx); err != nil || n != 0 {
		t.Fatalf("hold not over: expired %d, err %v", n, err)
	}

	f.clock.at(t, "12:46")
	if n, err := f.svc.SweepNoShows(ctx); err != nil || n != 1 {
		t.Fatalf("expected one no-show, got %d, err %v", n, err)
	}
	b, _ := f.store.BookingByID(ctx, paid.ID)
	if b.Status != booking.StatusNoShow {
		t.Fatalf("expected no_show, got %s", b.Status)
	}

	f.clock.at(t, "12:51")
	if n, err := f.svc.ExpireUnpaid(ctx); err != nil || n != 1 {
		t.Fatalf("expected one expiry, got %d, err %v", n, err)
	}
	b, _ = f.store.BookingByID(ctx, placed.Booking.ID)
	if b.Status != booking.StatusCancelled || b.PaymentStatus != booking.PaymentExpired {
		t.Fatalf("unexpected expired booking %+v", b)
	}
	if n, _ := f.svc.ExpireUnpaid(ctx); n != 0 {
		t.Fatalf("second sweep must find nothing, got %d", n)
	}
}
