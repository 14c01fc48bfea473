package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/payment"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/service"
	"github.com/iliyamo/table-reservation/internal/slot"
	"github.com/iliyamo/table-reservation/internal/utils"
)

const (
	jwtSecret = "handler-test-secret"
	testDate  = "2026-10-20"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) at(t *testing.T, hhmm string) {
	t.Helper()
	ts, err := slot.Combine(testDate, hhmm, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	c.t = ts
	c.mu.Unlock()
}

type env struct {
	e     *echo.Echo
	gw    *payment.Fake
	clock *clock
	staff string
	alice string
	bob   string
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, uid, role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok.Token
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := &clock{}
	c.at(t, "12:00")
	store := repository.NewMemoryStore(repository.SeedTables(), repository.SeedMenus())
	store.SetClock(c.Now)
	gw := payment.NewFake("callback-key")
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := service.New(service.Deps{Store: store, Gateway: gw, Events: &queue.Recorder{}, Log: log},
		service.Options{Rules: slot.DefaultRules(time.UTC), Now: c.Now})
	e := router.New(router.Deps{
		Handler:   handler.New(svc, log),
		JWTSecret: jwtSecret,
		RateLimit: config.RateLimitConfig{Enabled: true},
		Cache:     config.CacheConfig{Enabled: true},
		Log:       log,
	})
	return &env{
		e:     e,
		gw:    gw,
		clock: c,
		staff: token(t, 100, middleware.RoleStaff),
		alice: token(t, 1, middleware.RoleCustomer),
		bob:   token(t, 2, middleware.RoleCustomer),
	}
}

func (v *env) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		bs, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(bs)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, dst any) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body)
	}
	if dst != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
			t.Fatalf("decode %s: %v", rec.Body, err)
		}
	}
}

func reservation(clock string, party int, tables ...uint64) echo.Map {
	return echo.Map{"reservation_date": testDate, "reservation_time": clock, "party_size": party, "table_ids": tables}
}

// book runs the customer flow up to a paid reservation and returns its code.
func (v *env) book(t *testing.T, tok, clock string, party int, tables ...uint64) model.Booking {
	t.Helper()
	expect(t, v.do(t, http.MethodPut, "/v1/cart/reservation", tok, reservation(clock, party, tables...)), http.StatusOK, nil)
	expect(t, v.do(t, http.MethodPost, "/v1/cart/items", tok, echo.Map{"menu_id": 1}), http.StatusCreated, nil)
	var out struct {
		Booking model.Booking   `json:"booking"`
		Payment payment.Session `json:"payment"`
	}
	expect(t, v.do(t, http.MethodPost, "/v1/cart/checkout", tok, nil), http.StatusCreated, &out)
	if out.Payment.Token == "" || out.Booking.Status != booking.StatusReserve || out.Booking.PaymentOrderID == nil {
		t.Fatalf("unexpected checkout %+v", out)
	}
	notify := v.gw.Notify(*out.Booking.PaymentOrderID, "settlement", out.Booking.TotalPrice)
	expect(t, v.do(t, http.MethodPost, "/v1/payments/callback", "", notify), http.StatusOK, nil)
	return out.Booking
}

func TestCustomerToTableFlow(t *testing.T) {
	v := newEnv(t)
	b := v.book(t, v.alice, "18:00", 4, 4)

	// Duplicate callbacks are acknowledged.
	notify := v.gw.Notify(*b.PaymentOrderID, "settlement", b.TotalPrice)
	var cb map[string]any
	expect(t, v.do(t, http.MethodPost, "/v1/payments/callback", "", notify), http.StatusOK, &cb)
	if cb["payment_status"] != "success" {
		t.Fatalf("unexpected callback response %v", cb)
	}

	rec := v.do(t, http.MethodGet, "/v1/bookings/"+b.Code+"/qr", v.alice, nil)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("expected a png, got %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	expect(t, v.do(t, http.MethodGet, "/v1/bookings/"+b.Code+"/qr", v.bob, nil), http.StatusForbidden, nil)

	var mine struct {
		Bookings []model.Booking `json:"bookings"`
	}
	expect(t, v.do(t, http.MethodGet, "/v1/my-bookings", v.alice, nil), http.StatusOK, &mine)
	if len(mine.Bookings) != 1 || mine.Bookings[0].Code != b.Code {
		t.Fatalf("unexpected bookings %+v", mine.Bookings)
	}

	v.clock.at(t, "17:50")
	var errBody struct {
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	expect(t, v.do(t, http.MethodPost, "/v1/staff/checkin", v.staff, echo.Map{"code": b.Code}), http.StatusConflict, &errBody)
	if errBody.Details["window_open"] != "17:55" || errBody.Details["window_close"] != "18:15" {
		t.Fatalf("expected the window in the details, got %+v", errBody)
	}

	v.clock.at(t, "18:05")
	var seated model.Booking
	expect(t, v.do(t, http.MethodPost, "/v1/staff/checkin", v.staff, echo.Map{"code": b.Code}), http.StatusOK, &seated)
	if seated.Status != booking.StatusSeated || !seated.QRScanned {
		t.Fatalf("unexpected seated booking %+v", seated)
	}

	path := "/v1/staff/bookings/" + jsonID(seated.ID)
	expect(t, v.do(t, http.MethodPost, path+"/payment", v.staff, echo.Map{"payment_method": "qris"}), http.StatusUnprocessableEntity, nil)
	expect(t, v.do(t, http.MethodPost, path+"/items", v.staff, echo.Map{"items": []echo.Map{{"menu_id": 4, "quantity": 2}}}), http.StatusOK, nil)
	expect(t, v.do(t, http.MethodPost, path+"/payment", v.staff, echo.Map{"payment_method": "cash"}), http.StatusBadRequest, nil)
	var settled struct {
		Booking model.Booking       `json:"booking"`
		Payment model.WalkInPayment `json:"payment"`
	}
	expect(t, v.do(t, http.MethodPost, path+"/payment", v.staff, echo.Map{"payment_method": "cash", "amount_paid": 20000}), http.StatusOK, &settled)
	if settled.Booking.Status != booking.StatusCompleted || settled.Payment.TotalAmount != 16000 || *settled.Payment.ChangeAmount != 4000 {
		t.Fatalf("unexpected settlement %+v", settled)
	}

	rec = v.do(t, http.MethodGet, path+"/invoice?format=text", v.staff, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), b.Code) || !strings.Contains(rec.Body.String(), "Es Teh") {
		t.Fatalf("unexpected invoice %d %s", rec.Code, rec.Body)
	}
	expect(t, v.do(t, http.MethodPost, path+"/no-show", v.staff, nil), http.StatusConflict, nil)
}

func jsonID(id uint64) string {
	bs, _ := json.Marshal(id)
	return string(bs)
}

func TestReservationRejections(t *testing.T) {
	v := newEnv(t)
	v.book(t, v.bob, "18:00", 4, 5)

	cases := []struct {
		name   string
		body   any
		status int
		reason string
	}{
		{"closed", reservation("22:30", 2, 1), http.StatusUnprocessableEntity, slot.ErrOutsideOperatingHours.Error()},
		{"hoarding", reservation("18:00", 2, 1, 4), http.StatusUnprocessableEntity, booking.ErrExcessiveTableSelection.Error()},
		{"too small", reservation("18:00", 9, 7), http.StatusUnprocessableEntity, booking.ErrInsufficientCapacity.Error()},
		{"missing tables", echo.Map{"reservation_date": testDate, "reservation_time": "18:00", "party_size": 2}, http.StatusBadRequest, ""},
		{"bad time format", reservation("6pm", 2, 1), http.StatusBadRequest, ""},
		{"not json", []byte("{"), http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		var body struct {
			Error   string         `json:"error"`
			Details map[string]any `json:"details"`
		}
		rec := v.do(t, http.MethodPut, "/v1/cart/reservation", v.alice, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, rec.Code, rec.Body)
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if tc.reason != "" && body.Details["reason"] != tc.reason {
			t.Fatalf("%s: expected reason %q, got %+v", tc.name, tc.reason, body)
		}
	}

	// 18:30 on T5 starts after the paid 18:00 booking on the same table.
	var conflict struct {
		Error   string                 `json:"error"`
		Details booking.ConflictReport `json:"details"`
	}
	expect(t, v.do(t, http.MethodPut, "/v1/cart/reservation", v.alice, reservation("18:30", 4, 5)), http.StatusConflict, &conflict)
	if conflict.Details.CanProceed || len(conflict.Details.Blocked) != 1 || conflict.Details.Blocked[0].OtherStart != "18:00" {
		t.Fatalf("unexpected conflict report %+v", conflict)
	}

	var avail struct {
		Availability booking.ConflictReport `json:"availability"`
		Messages     []string               `json:"messages"`
	}
	expect(t, v.do(t, http.MethodGet, "/v1/availability?date="+testDate+"&time=15:00&tables=5", "", nil), http.StatusOK, &avail)
	if !avail.Availability.CanProceed || len(avail.Messages) != 1 {
		t.Fatalf("expected a warning-only report, got %+v", avail)
	}
	expect(t, v.do(t, http.MethodGet, "/v1/availability?date="+testDate+"&tables=5", "", nil), http.StatusBadRequest, nil)
}

func TestCartEndpoints(t *testing.T) {
	v := newEnv(t)
	expect(t, v.do(t, http.MethodGet, "/v1/cart", v.alice, nil), http.StatusNotFound, nil)
	expect(t, v.do(t, http.MethodPost, "/v1/cart/items", v.alice, echo.Map{"menu_id": 6}), http.StatusUnprocessableEntity, nil)

	var item model.BookingItem
	expect(t, v.do(t, http.MethodPost, "/v1/cart/items", v.alice, echo.Map{"menu_id": 2}), http.StatusCreated, &item)
	expect(t, v.do(t, http.MethodPatch, "/v1/cart/items/"+jsonID(item.ID), v.alice, echo.Map{"delta": 2}), http.StatusOK, &item)
	if item.Quantity != 3 || item.Subtotal != 3*28000 {
		t.Fatalf("unexpected item %+v", item)
	}
	expect(t, v.do(t, http.MethodPatch, "/v1/cart/items/"+jsonID(item.ID), v.bob, echo.Map{"delta": 1}), http.StatusNotFound, nil)
	expect(t, v.do(t, http.MethodPost, "/v1/cart/items", v.bob, echo.Map{"menu_id": 4}), http.StatusCreated, nil)
	expect(t, v.do(t, http.MethodPatch, "/v1/cart/items/"+jsonID(item.ID), v.bob, echo.Map{"delta": 1}), http.StatusForbidden, nil)
	expect(t, v.do(t, http.MethodPost, "/v1/cart/checkout", v.alice, nil), http.StatusUnprocessableEntity, nil)

	var cart service.BookingView
	expect(t, v.do(t, http.MethodGet, "/v1/cart", v.alice, nil), http.StatusOK, &cart)
	if cart.Booking.TotalPrice != 3*28000 || len(cart.Items) != 1 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	expect(t, v.do(t, http.MethodDelete, "/v1/cart/items/"+jsonID(item.ID), v.alice, nil), http.StatusNoContent, nil)
	expect(t, v.do(t, http.MethodDelete, "/v1/cart", v.alice, nil), http.StatusNoContent, nil)
	expect(t, v.do(t, http.MethodGet, "/v1/cart", v.alice, nil), http.StatusNotFound, nil)
}

func TestAccessControl(t *testing.T) {
	v := newEnv(t)
	cases := []struct {
		name   string
		method string
		path   string
		tok    string
		status int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"public tables", http.MethodGet, "/v1/tables", "", http.StatusOK},
		{"public menus", http.MethodGet, "/v1/menus", "", http.StatusOK},
		{"cart needs a token", http.MethodGet, "/v1/cart", "", http.StatusUnauthorized},
		{"staff cannot shop", http.MethodGet, "/v1/cart", v.staff, http.StatusForbidden},
		{"customer cannot check in", http.MethodPost, "/v1/staff/checkin", v.alice, http.StatusForbidden},
		{"staff listing", http.MethodGet, "/v1/staff/bookings?status=reserve", v.staff, http.StatusOK},
		{"bad status filter", http.MethodGet, "/v1/staff/bookings?status=lost", v.staff, http.StatusBadRequest},
		{"occupancy", http.MethodGet, "/v1/staff/occupancy", v.staff, http.StatusOK},
		{"unknown booking", http.MethodGet, "/v1/staff/bookings/999", v.staff, http.StatusNotFound},
		{"bad id", http.MethodPost, "/v1/staff/bookings/abc/complete", v.staff, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := v.do(t, tc.method, tc.path, tc.tok, nil)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, rec.Code, rec.Body)
		}
	}
}

func TestPaymentCallbackRejections(t *testing.T) {
	v := newEnv(t)
	expect(t, v.do(t, http.MethodPost, "/v1/payments/callback", "", payment.SignedNotification("other-key", "BK0000000000", "settlement", 1000)), http.StatusUnauthorized, nil)
	expect(t, v.do(t, http.MethodPost, "/v1/payments/callback", "", v.gw.Notify("BK0000000000", "settlement", 1000)), http.StatusNotFound, nil)
	expect(t, v.do(t, http.MethodPost, "/v1/payments/callback", "", []byte("not json")), http.StatusBadRequest, nil)
}

func TestWalkInEndpoints(t *testing.T) {
	v := newEnv(t)
	var res service.WalkInResult
	expect(t, v.do(t, http.MethodPost, "/v1/staff/walk-ins", v.staff, echo.Map{"guest_name": "Sari", "party_size": 2, "table_ids": []uint64{1}}), http.StatusCreated, &res)
	if !res.Booking.WalkIn || res.Booking.Status != booking.StatusSeated {
		t.Fatalf("unexpected walk-in %+v", res.Booking)
	}
	var conflict struct {
		Details booking.ConflictReport `json:"details"`
	}
	expect(t, v.do(t, http.MethodPost, "/v1/staff/walk-ins", v.staff, echo.Map{"party_size": 2, "table_ids": []uint64{1}}), http.StatusConflict, &conflict)
	if len(conflict.Details.Blocked) != 1 {
		t.Fatalf("expected the first walk-in to block, got %+v", conflict.Details)
	}
	expect(t, v.do(t, http.MethodPost, "/v1/staff/walk-ins", v.staff, echo.Map{"party_size": 0, "table_ids": []uint64{2}}), http.StatusBadRequest, nil)

	path := "/v1/staff/bookings/" + jsonID(res.Booking.ID)
	expect(t, v.do(t, http.MethodPost, path+"/items", v.staff, echo.Map{"items": []echo.Map{{"menu_id": 3, "quantity": 1}}}), http.StatusOK, nil)
	var settled service.SettleResult
	expect(t, v.do(t, http.MethodPost, path+"/payment", v.staff, echo.Map{"payment_method": "debit"}), http.StatusOK, &settled)
	if settled.Payment.TotalAmount != 40000 || settled.Booking.Status != booking.StatusCompleted {
		t.Fatalf("unexpected settlement %+v", settled)
	}
	var inv map[string]any
	expect(t, v.do(t, http.MethodGet, path+"/invoice", v.staff, nil), http.StatusOK, &inv)
	if inv["total"] != float64(40000) || inv["payment_method"] != "debit" {
		t.Fatalf("unexpected invoice %v", inv)
	}
}
