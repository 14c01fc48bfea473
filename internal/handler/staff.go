package handler

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/invoice"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/service"
)

type checkInRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type walkInRequest struct {
	GuestName string   `json:"guest_name" validate:"max=100"`
	PartySize int      `json:"party_size" validate:"required,min=1,max=50"`
	TableIDs  []uint64 `json:"table_ids" validate:"required,min=1,max=10,dive,min=1"`
}

type itemLine struct {
	MenuID   uint64 `json:"menu_id" validate:"required,min=1"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=99"`
}

type itemsRequest struct {
	Items []itemLine `json:"items" validate:"required,min=1,dive"`
}

type settleRequest struct {
	Method   string `json:"payment_method" validate:"required,oneof=cash qris debit kredit"`
	Tendered *int64 `json:"amount_paid" validate:"omitempty,min=0"`
}

// CheckIn handles POST /v1/staff/checkin with the scanned booking code.
func (h *Handler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	b, err := h.svc.CheckIn(c.Request().Context(), strings.TrimSpace(req.Code))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// CreateWalkIn handles POST /v1/staff/walk-ins.
func (h *Handler) CreateWalkIn(c echo.Context) error {
	var req walkInRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.svc.CreateWalkIn(c.Request().Context(), service.WalkInRequest{
		GuestName: req.GuestName,
		PartySize: req.PartySize,
		TableIDs:  req.TableIDs,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListBookings handles GET /v1/staff/bookings?date=&status=&limit=&offset=.
func (h *Handler) ListBookings(c echo.Context) error {
	limit, offset := page(c)
	f := model.BookingFilter{Date: c.QueryParam("date"), Limit: limit, Offset: offset}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := booking.ParseStatus(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		f.Status = st
	}
	list, err := h.svc.ListBookings(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "limit": limit, "offset": offset})
}

// BookingDetail handles GET /v1/staff/bookings/:id.
func (h *Handler) BookingDetail(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	v, err := h.svc.BookingDetail(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// AddItems handles POST /v1/staff/bookings/:id/items for seated parties.
func (h *Handler) AddItems(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req itemsRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	reqs := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		reqs = append(reqs, service.ItemRequest{MenuID: it.MenuID, Quantity: it.Quantity})
	}
	v, err := h.svc.AddWalkInItems(c.Request().Context(), id, reqs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Settle handles POST /v1/staff/bookings/:id/payment.  Cash requires
// amount_paid; the change is returned with the payment.
func (h *Handler) Settle(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req settleRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	method, err := booking.ParsePaymentMethod(req.Method)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if method == booking.MethodCash && req.Tendered == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_paid is required for cash"})
	}
	res, err := h.svc.Settle(c.Request().Context(), id, service.SettleRequest{Method: method, Tendered: req.Tendered})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Complete handles POST /v1/staff/bookings/:id/complete.
func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

// MarkNoShow handles POST /v1/staff/bookings/:id/no-show.
func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.transition(c, h.svc.MarkNoShow)
}

// CancelBooking handles POST /v1/staff/bookings/:id/cancel.
func (h *Handler) CancelBooking(c echo.Context) error {
	return h.transition(c, h.svc.CancelBooking)
}

func (h *Handler) transition(c echo.Context, apply func(ctx context.Context, id uint64) (*model.Booking, error)) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := apply(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Invoice handles GET /v1/staff/bookings/:id/invoice.  ?format=text returns
// the printable receipt instead of JSON.
func (h *Handler) Invoice(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	inv, err := h.svc.Invoice(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	if c.QueryParam("format") != "text" {
		return c.JSON(http.StatusOK, inv)
	}
	var buf bytes.Buffer
	if err := invoice.WriteText(&buf, inv); err != nil {
		return h.fail(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

// Occupancy handles GET /v1/staff/occupancy?date=&time=.  Both default to
// now in restaurant time.
func (h *Handler) Occupancy(c echo.Context) error {
	states, err := h.svc.Occupancy(c.Request().Context(), c.QueryParam("date"), c.QueryParam("time"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": states})
}
