// Package payment talks to the external payment gateway: it opens a
// checkout session for a booking and verifies the signed notifications the
// gateway posts back.
package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/table-reservation/internal/booking"
)

var (
	// ErrGateway wraps every failure to obtain a session, including timeouts.
	ErrGateway = errors.New("payment gateway error")
	// ErrInvalidSignature means a notification failed verification and must
	// not be trusted.
	ErrInvalidSignature = errors.New("invalid payment notification signature")
	// ErrMalformedNotification means the body could not be decoded.
	ErrMalformedNotification = errors.New("malformed payment notification")
)

// LineItem is one priced line sent to the gateway.
type LineItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// SessionRequest describes the payment to collect.  OrderID identifies one
// checkout attempt of a booking and comes back in notifications.
type SessionRequest struct {
	OrderID      string
	Amount       int64
	Items        []LineItem
	CustomerName string
}

// Session is what the customer needs to pay.
type Session struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// Notification is a verified gateway callback.
type Notification struct {
	OrderID           string
	Result            booking.PaymentResult
	TransactionStatus string
	FraudStatus       string
	PaymentType       string
	TransactionID     string
	GrossAmount       int64
}

// Gateway is the contract the booking service depends on.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	ParseNotification(body []byte) (Notification, error)
}

// notificationBody is the gateway's wire format.  Amounts are decimal
// strings such as "83000.00".
type notificationBody struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

// Sign computes the notification signature:
// hex(sha512(order_id + status_code + gross_amount + server_key)).
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// parseNotification decodes and verifies body with serverKey.
func parseNotification(body []byte, serverKey string) (Notification, error) {
	var n notificationBody
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.SignatureKey == "" {
		return Notification{}, fmt.Errorf("%w: missing fields", ErrMalformedNotification)
	}
	want := Sign(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(n.SignatureKey)), []byte(want)) != 1 {
		return Notification{}, ErrInvalidSignature
	}
	amount, err := parseAmount(n.GrossAmount)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: gross_amount %q", ErrMalformedNotification, n.GrossAmount)
	}
	return Notification{
		OrderID:           n.OrderID,
		Result:            MapStatus(n.TransactionStatus, n.FraudStatus),
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		PaymentType:       n.PaymentType,
		TransactionID:     n.TransactionID,
		GrossAmount:       amount,
	}, nil
}

// MapStatus converts the gateway's transaction and fraud status into a
// booking.PaymentResult.  Statuses that say nothing final (including
// refunds and challenged captures) map to ResultPending and are ignored.
func MapStatus(transactionStatus, fraudStatus string) booking.PaymentResult {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return booking.ResultSuccess
		case "deny":
			return booking.ResultCancel
		}
		return booking.ResultPending
	case "settlement":
		return booking.ResultSuccess
	case "expire":
		return booking.ResultExpire
	case "deny", "cancel", "failure":
		return booking.ResultCancel
	}
	return booking.ResultPending
}

func parseAmount(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("fractional amount %q", s)
	}
	return strconv.ParseInt(whole, 10, 64)
}

// FormatAmount renders an amount the way the gateway sends it back.
func FormatAmount(v int64) string { return strconv.FormatInt(v, 10) + ".00" }
