package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Midtrans is a Gateway backed by the Midtrans Snap API.
type Midtrans struct {
	serverKey string
	baseURL   string
	client    *http.Client
	timeout   time.Duration
}

// NewMidtrans returns a Snap client.  baseURL is the Snap host, for
// example https://app.sandbox.midtrans.com.  timeout bounds every session
// request even when the caller's context has no deadline.
func NewMidtrans(serverKey, baseURL string, timeout time.Duration, client *http.Client) *Midtrans {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://app.sandbox.midtrans.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Midtrans{serverKey: serverKey, baseURL: base, client: client, timeout: timeout}
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []LineItem `json:"item_details,omitempty"`
	CustomerDetails *struct {
		FirstName string `json:"first_name"`
	} `json:"customer_details,omitempty"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

// CreateSession opens a Snap transaction for req.
func (m *Midtrans) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var body snapRequest
	body.TransactionDetails.OrderID = req.OrderID
	body.TransactionDetails.GrossAmount = req.Amount
	body.ItemDetails = req.Items
	if req.CustomerName != "" {
		body.CustomerDetails = &struct {
			FirstName string `json:"first_name"`
		}{FirstName: req.CustomerName}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Session{}, fmt.Errorf("%w: encode request: %v", ErrGateway, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/snap/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(m.serverKey, "")

	res, err := m.client.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	var out snapResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Session{}, fmt.Errorf("%w: status %d: undecodable body", ErrGateway, res.StatusCode)
	}
	if res.StatusCode >= 300 || out.Token == "" {
		msg := strings.Join(out.ErrorMessages, "; ")
		if msg == "" {
			msg = "no token returned"
		}
		return Session{}, fmt.Errorf("%w: status %d: %s", ErrGateway, res.StatusCode, msg)
	}
	return Session{Token: out.Token, RedirectURL: out.RedirectURL}, nil
}

// ParseNotification verifies a notification with the server key.
func (m *Midtrans) ParseNotification(body []byte) (Notification, error) {
	return parseNotification(body, m.serverKey)
}

var _ Gateway = (*Midtrans)(nil)
