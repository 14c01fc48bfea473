// Package invoice builds the printable receipt for a completed booking.
// It only reads booking, item, table and payment data.
package invoice

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/model"
)

// ErrNotCompleted is returned for bookings that have not been completed.
var ErrNotCompleted = errors.New("invoice is only available for completed bookings")

// Line is one receipt line.
type Line struct {
	Name      string             `json:"name"`
	Quantity  int                `json:"quantity"`
	UnitPrice int64              `json:"unit_price"`
	Subtotal  int64              `json:"subtotal"`
	Source    booking.ItemSource `json:"source"`
}

// Invoice is the receipt data.  Tendered and Change are only set for cash
// settlements of walk-ins.
type Invoice struct {
	Code          string                `json:"code"`
	Customer      string                `json:"customer"`
	PartySize     int                   `json:"party_size"`
	Date          string                `json:"reservation_date"`
	Time          string                `json:"reservation_time"`
	Tables        []string              `json:"tables"`
	Lines         []Line                `json:"lines"`
	Total         int64                 `json:"total"`
	PaymentMethod booking.PaymentMethod `json:"payment_method,omitempty"`
	Online        bool                  `json:"online_payment"`
	Tendered      *int64                `json:"tendered,omitempty"`
	Change        *int64                `json:"change,omitempty"`
	CheckinTime   *time.Time            `json:"checkin_time,omitempty"`
	CheckoutTime  *time.Time            `json:"checkout_time,omitempty"`
}

// Build assembles the invoice of b.  pay is the walk-in settlement, nil for
// bookings paid online.
func Build(b model.Booking, items []model.BookingItem, tables []model.Table, pay *model.WalkInPayment) (Invoice, error) {
	if b.Status != booking.StatusCompleted {
		return Invoice{}, fmt.Errorf("%w: %s is %s", ErrNotCompleted, b.Code, b.Status)
	}
	inv := Invoice{
		Code:         b.Code,
		Customer:     customer(b),
		PartySize:    b.PartySize,
		Date:         b.Date,
		Time:         b.Time,
		Total:        model.ItemsTotal(items),
		CheckinTime:  b.CheckinTime,
		CheckoutTime: b.CheckoutTime,
	}
	for _, t := range tables {
		inv.Tables = append(inv.Tables, t.Name)
	}
	for _, it := range items {
		inv.Lines = append(inv.Lines, Line{
			Name:      it.MenuName,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
			Source:    it.Source,
		})
	}
	if pay != nil {
		inv.PaymentMethod = pay.PaymentMethod
		inv.Tendered = pay.AmountPaid
		inv.Change = pay.ChangeAmount
	} else {
		inv.Online = b.PaymentStatus == booking.PaymentSuccess
	}
	return inv, nil
}

func customer(b model.Booking) string {
	switch {
	case b.GuestName != nil && *b.GuestName != "":
		return *b.GuestName
	case b.UserID != nil:
		return "customer #" + strconv.FormatUint(*b.UserID, 10)
	}
	return "guest"
}

// WriteText prints inv as a plain text receipt.
func WriteText(w io.Writer, inv Invoice) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Booking %s\n", inv.Code)
	fmt.Fprintf(&sb, "Customer: %s (party of %d)\n", inv.Customer, inv.PartySize)
	if inv.Date != "" {
		fmt.Fprintf(&sb, "Reserved: %s %s\n", inv.Date, inv.Time)
	}
	if len(inv.Tables) > 0 {
		fmt.Fprintf(&sb, "Tables: %s\n", strings.Join(inv.Tables, ", "))
	}
	sb.WriteString("\n")
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Item\tQty\tPrice\tSubtotal\t")
	for _, l := range inv.Lines {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", l.Name, l.Quantity, Money(l.UnitPrice), Money(l.Subtotal))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t\n", Money(inv.Total))
	if err := tw.Flush(); err != nil {
		return err
	}

	sb.Reset()
	switch {
	case inv.PaymentMethod != "":
		fmt.Fprintf(&sb, "\nPaid by %s", inv.PaymentMethod)
		if inv.Tendered != nil {
			fmt.Fprintf(&sb, ": tendered %s", Money(*inv.Tendered))
		}
		if inv.Change != nil {
			fmt.Fprintf(&sb, ", change %s", Money(*inv.Change))
		}
		sb.WriteString("\n")
	case inv.Online:
		sb.WriteString("\nPaid online\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Money formats whole currency units with dot thousands separators, the
// way rupiah amounts are printed.
func Money(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-Rp" + string(out)
	}
	return "Rp" + string(out)
}
