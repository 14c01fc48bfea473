package invoice

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
)

func TestBuildRequiresCompleted(t *testing.T) {
	_, err := Build(model.Booking{Code: "BK1", Status: booking.StatusSeated}, nil, nil, nil)
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}

func TestBuildWalkInCash(t *testing.T) {
	guest := "Budi"
	paid, change := int64(100000), int64(17000)
	b := model.Booking{Code: "BKABCDEF0123", GuestName: &guest, PartySize: 3, Status: booking.StatusCompleted, WalkIn: true}
	items := []model.BookingItem{
		{MenuName: "Nasi Goreng", Quantity: 2, UnitPrice: 35000, Subtotal: 70000, Source: booking.SourceWalkIn},
		{MenuName: "Es Teh", Quantity: 1, UnitPrice: 13000, Subtotal: 13000, Source: booking.SourceWalkIn},
	}
	tables := []model.Table{{ID: 3, Name: "T3"}}
	pay := &model.WalkInPayment{PaymentMethod: booking.MethodCash, TotalAmount: 83000, AmountPaid: &paid, ChangeAmount: &change}

	inv, err := Build(b, items, tables, pay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Total != 83000 || inv.Customer != "Budi" || len(inv.Lines) != 2 || inv.Online {
		t.Fatalf("unexpected invoice %+v", inv)
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BKABCDEF0123", "Nasi Goreng", "Rp83.000", "Paid by cash", "change Rp17.000", "Tables: T3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("receipt missing %q:\n%s", want, out)
		}
	}
}

func TestMoney(t *testing.T) {
	cases := map[int64]string{0: "Rp0", 999: "Rp999", 1000: "Rp1.000", 1234567: "Rp1.234.567", -5000: "-Rp5.000"}
	for in, want := range cases {
		if got := Money(in); got != want {
			t.Fatalf("Money(%d): expected %q, got %q", in, want, got)
		}
	}
}
