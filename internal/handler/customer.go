package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/service"
)

type reservationRequest struct {
	Date      string   `json:"reservation_date" validate:"required,datetime=2006-01-02"`
	Time      string   `json:"reservation_time" validate:"required,datetime=15:04"`
	PartySize int      `json:"party_size" validate:"required,min=1,max=50"`
	TableIDs  []uint64 `json:"table_ids" validate:"required,min=1,max=10,dive,min=1"`
}

type addItemRequest struct {
	MenuID uint64 `json:"menu_id" validate:"required,min=1"`
}

type quantityRequest struct {
	Delta int `json:"delta" validate:"required,min=-99,max=99"`
}

// GetCart handles GET /v1/cart.
func (h *Handler) GetCart(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	v, err := h.svc.GetCart(c.Request().Context(), uid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// CancelCart handles DELETE /v1/cart.
func (h *Handler) CancelCart(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.svc.CancelCart(c.Request().Context(), uid); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetReservation handles PUT /v1/cart/reservation.  It chooses the date,
// time, party size and tables of the cart, creating the cart if needed.
// Warnings about nearby bookings are returned alongside the cart.
func (h *Handler) SetReservation(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req reservationRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.svc.SetReservation(c.Request().Context(), uid, service.ReservationRequest{
		Date:      req.Date,
		Time:      req.Time,
		PartySize: req.PartySize,
		TableIDs:  req.TableIDs,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": res.Booking, "availability": res.Report})
}

// AddItem handles POST /v1/cart/items.  Adding a menu already in the cart
// increments its quantity.
func (h *Handler) AddItem(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req addItemRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	it, err := h.svc.AddItem(c.Request().Context(), uid, req.MenuID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, it)
}

// UpdateItem handles PATCH /v1/cart/items/:id with {"delta": n}.  The
// quantity never drops below one.
func (h *Handler) UpdateItem(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var req quantityRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	it, err := h.svc.UpdateQuantity(c.Request().Context(), uid, id, req.Delta)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

// RemoveItem handles DELETE /v1/cart/items/:id.
func (h *Handler) RemoveItem(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	if err := h.svc.RemoveItem(c.Request().Context(), uid, id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Checkout handles POST /v1/cart/checkout.  On success the booking is
// reserved and the response carries the gateway redirect.
func (h *Handler) Checkout(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	res, err := h.svc.Checkout(c.Request().Context(), uid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// MyBookings handles GET /v1/my-bookings.
func (h *Handler) MyBookings(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	limit, offset := page(c)
	list, err := h.svc.MyBookings(c.Request().Context(), uid, limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list, "limit": limit, "offset": offset})
}

// GetBooking handles GET /v1/bookings/:code for the booking's owner.
func (h *Handler) GetBooking(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	v, err := h.svc.BookingForUser(c.Request().Context(), uid, c.Param("code"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// BookingQR handles GET /v1/bookings/:code/qr.  The PNG is only served
// once payment has succeeded.
func (h *Handler) BookingQR(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	png, err := h.svc.BookingQR(c.Request().Context(), uid, c.Param("code"))
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}
