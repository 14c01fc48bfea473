package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ItemSource separates items ordered online from items added by staff at
// the table.  Items merge only within the same source.
type ItemSource string

const (
	SourceOnline ItemSource = "online"
	SourceWalkIn ItemSource = "walk_in"
)

// PaymentMethod is how a walk-in bill is settled at the point of sale.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodQRIS   PaymentMethod = "qris"
	MethodDebit  PaymentMethod = "debit"
	MethodKredit PaymentMethod = "kredit"
)

// ParsePaymentMethod validates a point-of-sale payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case MethodCash, MethodQRIS, MethodDebit, MethodKredit:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

// ErrInsufficientTender means the cash handed over does not cover the bill.
var ErrInsufficientTender = errors.New("amount tendered is less than the total")

// Subtotal is quantity times the captured unit price.
func Subtotal(quantity int, unitPrice int64) int64 { return int64(quantity) * unitPrice }

// ApplyDelta returns the quantity after adding delta.  The result never
// drops below one; removing an item is a separate action.
func ApplyDelta(quantity, delta int) int {
	q := quantity + delta
	if q < 1 {
		return 1
	}
	return q
}

// Total sums item subtotals.
func Total(subtotals ...int64) int64 {
	var sum int64
	for _, s := range subtotals {
		sum += s
	}
	return sum
}

// Change computes the change for a settlement.  Only cash carries a
// tendered amount; other methods are charged the exact total.
func Change(method PaymentMethod, total int64, tendered *int64) (int64, error) {
	if method != MethodCash {
		return 0, nil
	}
	if tendered == nil || *tendered < total {
		got := int64(0)
		if tendered != nil {
			got = *tendered
		}
		return 0, fmt.Errorf("%w: tendered %d, total %d", ErrInsufficientTender, got, total)
	}
	return *tendered - total, nil
}

// NewCode returns a fresh human readable booking code such as
// "BK3F9A0C12DE".  It is printed on receipts and encoded in the QR image.
func NewCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "BK" + strings.ToUpper(raw[:10])
}

// NewOrderID returns the gateway order id for one checkout attempt of the
// booking with code, such as "BK3F9A0C12DE-7C41B0".  The gateway accepts an
// order id only once, so every attempt gets its own.
func NewOrderID(code string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return code + "-" + strings.ToUpper(raw[:6])
}

// CodeFromOrderID returns the booking code an order id was issued for.
func CodeFromOrderID(orderID string) string {
	code, _, _ := strings.Cut(orderID, "-")
	return code
}
