package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is a Gateway that never leaves the process.  It backs
// PAYMENT_DRIVER=fake for local development and the service tests.
// Notifications are verified exactly like the real gateway's, with
// ServerKey.  Like the real gateway it takes an order id on arrival and
// rejects it afterwards, even when the caller gave up waiting.
type Fake struct {
	ServerKey string
	// Err, when set, is returned by CreateSession wrapped in ErrGateway.
	Err error
	// Delay is waited before answering, honouring ctx.
	Delay time.Duration

	mu       sync.Mutex
	sessions []SessionRequest
	attempts []string
	taken    map[string]bool
}

// NewFake returns a Fake verifying notifications with serverKey.
func NewFake(serverKey string) *Fake { return &Fake{ServerKey: serverKey} }

func (f *Fake) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	f.mu.Lock()
	if f.taken == nil {
		f.taken = map[string]bool{}
	}
	reused := f.taken[req.OrderID]
	f.taken[req.OrderID] = true
	f.attempts = append(f.attempts, req.OrderID)
	f.mu.Unlock()
	if reused {
		return Session{}, fmt.Errorf("%w: order_id %s has already been taken", ErrGateway, req.OrderID)
	}
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return Session{}, fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
		case <-time.After(f.Delay):
		}
	}
	if f.Err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrGateway, f.Err)
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, req)
	f.mu.Unlock()
	token := "fake-" + req.OrderID
	return Session{Token: token, RedirectURL: "https://pay.example.test/" + token}, nil
}

func (f *Fake) ParseNotification(body []byte) (Notification, error) {
	return parseNotification(body, f.ServerKey)
}

// Sessions returns the requests seen so far.
func (f *Fake) Sessions() []SessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionRequest(nil), f.sessions...)
}

// Attempts returns every order id received, including rejected and
// abandoned ones.
func (f *Fake) Attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

// Notify builds a correctly signed notification body for orderID.
func (f *Fake) Notify(orderID, transactionStatus string, amount int64) []byte {
	return SignedNotification(f.ServerKey, orderID, transactionStatus, amount)
}

// SignedNotification renders a notification body signed with serverKey.
func SignedNotification(serverKey, orderID, transactionStatus string, amount int64) []byte {
	gross := FormatAmount(amount)
	code := "200"
	if transactionStatus == "pending" {
		code = "201"
	} else if transactionStatus != "settlement" && transactionStatus != "capture" {
		code = "202"
	}
	return []byte(fmt.Sprintf(`{"order_id":%q,"status_code":%q,"gross_amount":%q,"signature_key":%q,"transaction_status":%q,"fraud_status":"accept","payment_type":"qris"}`,
		orderID, code, gross, Sign(orderID, code, gross, serverKey), transactionStatus))
}

var _ Gateway = (*Fake)(nil)
