package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
)

func TestMidtransCreateSession(t *testing.T) {
	var got snapRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/snap/v1/transactions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "server-key" || pass != "" {
			t.Errorf("unexpected basic auth %q %q %v", user, pass, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"tok-1","redirect_url":"https://pay/tok-1"}`))
	}))
	defer srv.Close()

	m := NewMidtrans("server-key", srv.URL, time.Second, nil)
	s, err := m.CreateSession(context.Background(), SessionRequest{
		OrderID: "BK0000000001",
		Amount:  83000,
		Items:   []LineItem{{ID: "1", Name: "Nasi Goreng", Price: 35000, Quantity: 2}, {ID: "5", Name: "Kopi Susu", Price: 13000, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Token != "tok-1" || s.RedirectURL != "https://pay/tok-1" {
		t.Fatalf("unexpected session %+v", s)
	}
	if got.TransactionDetails.OrderID != "BK0000000001" || got.TransactionDetails.GrossAmount != 83000 || len(got.ItemDetails) != 2 {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestMidtransCreateSessionErrors(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_messages":["transaction_details.gross_amount is not equal to the sum of item_details"]}`))
	}))
	defer rejecting.Close()
	_, err := NewMidtrans("k", rejecting.URL, time.Second, nil).CreateSession(context.Background(), SessionRequest{OrderID: "BK1", Amount: 1})
	if !errors.Is(err, ErrGateway) || !strings.Contains(err.Error(), "gross_amount") {
		t.Fatalf("expected gateway error carrying the message, got %v", err)
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()
	_, err = NewMidtrans("k", slow.URL, 30*time.Millisecond, nil).CreateSession(context.Background(), SessionRequest{OrderID: "BK1", Amount: 1})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected timeout to surface as gateway error, got %v", err)
	}
}

func TestParseNotification(t *testing.T) {
	m := NewMidtrans("secret", "", 0, nil)

	n, err := m.ParseNotification(SignedNotification("secret", "BK1", "settlement", 83000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.OrderID != "BK1" || n.Result != booking.ResultSuccess || n.GrossAmount != 83000 {
		t.Fatalf("unexpected notification %+v", n)
	}

	if _, err := m.ParseNotification(SignedNotification("other-key", "BK1", "settlement", 83000)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	tampered := strings.Replace(string(SignedNotification("secret", "BK1", "settlement", 83000)), `"83000.00"`, `"1.00"`, 1)
	if _, err := m.ParseNotification([]byte(tampered)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered amount must fail verification, got %v", err)
	}

	if _, err := m.ParseNotification([]byte(`{`)); !errors.Is(err, ErrMalformedNotification) {
		t.Fatalf("expected ErrMalformedNotification, got %v", err)
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status, fraud string
		want          booking.PaymentResult
	}{
		{"capture", "accept", booking.ResultSuccess},
		{"capture", "challenge", booking.ResultPending},
		{"capture", "deny", booking.ResultCancel},
		{"settlement", "", booking.ResultSuccess},
		{"pending", "", booking.ResultPending},
		{"expire", "", booking.ResultExpire},
		{"deny", "", booking.ResultCancel},
		{"cancel", "", booking.ResultCancel},
		{"failure", "", booking.ResultCancel},
		{"refund", "", booking.ResultPending},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.status, tc.fraud); got != tc.want {
			t.Fatalf("MapStatus(%q, %q): expected %q, got %q", tc.status, tc.fraud, tc.want, got)
		}
	}
}

func TestFakeHonoursContext(t *testing.T) {
	f := &Fake{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.CreateSession(ctx, SessionRequest{OrderID: "BK1"}); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if len(f.Sessions()) != 0 {
		t.Fatal("timed out session must not be recorded")
	}
}

func TestFakeRejectsReusedOrderID(t *testing.T) {
	f := &Fake{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.CreateSession(ctx, SessionRequest{OrderID: "BK1-AAAAAA"}); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected timeout, got %v", err)
	}

	f.Delay = 0
	_, err := f.CreateSession(context.Background(), SessionRequest{OrderID: "BK1-AAAAAA"})
	if !errors.Is(err, ErrGateway) || !strings.Contains(err.Error(), "already been taken") {
		t.Fatalf("an abandoned order id must stay taken, got %v", err)
	}
	if _, err := f.CreateSession(context.Background(), SessionRequest{OrderID: "BK1-BBBBBB"}); err != nil {
		t.Fatalf("a fresh order id must be accepted: %v", err)
	}
	if got := f.Attempts(); len(got) != 3 || got[0] != "BK1-AAAAAA" || got[2] != "BK1-BBBBBB" {
		t.Fatalf("unexpected attempts %v", got)
	}
}
