package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/middleware"
)

// RegisterCustomer registers customer endpoints under /v1.  All routes
// require a valid JWT with the CUSTOMER role and are rate limited per user.
// Customers build a cart (slot, tables, items), check out and then view
// their bookings and QR codes.
func RegisterCustomer(e *echo.Echo, d Deps) {
	h := d.Handler
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleCustomer),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
	)
	g.GET("/cart", h.GetCart)
	g.DELETE("/cart", h.CancelCart)
	g.PUT("/cart/reservation", h.SetReservation)
	g.POST("/cart/items", h.AddItem)
	g.PATCH("/cart/items/:id", h.UpdateItem)
	g.DELETE("/cart/items/:id", h.RemoveItem)
	g.POST("/cart/checkout", h.Checkout)

	g.GET("/my-bookings", h.MyBookings)
	g.GET("/bookings/:code", h.GetBooking)
	g.GET("/bookings/:code/qr", h.BookingQR)
}
