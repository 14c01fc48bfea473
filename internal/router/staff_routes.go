package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/middleware"
)

// RegisterStaff registers front-of-house endpoints under /v1/staff for the
// STAFF and ADMIN roles.
func RegisterStaff(e *echo.Echo, d Deps) {
	h := d.Handler
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin),
	)

	// ---- Door ----
	g.POST("/checkin", h.CheckIn)
	g.POST("/walk-ins", h.CreateWalkIn)
	g.GET("/occupancy", h.Occupancy)

	// ---- Bookings ----
	g.GET("/bookings", h.ListBookings)
	g.GET("/bookings/:id", h.BookingDetail)
	g.POST("/bookings/:id/items", h.AddItems)
	g.POST("/bookings/:id/payment", h.Settle)
	g.POST("/bookings/:id/complete", h.Complete)
	g.POST("/bookings/:id/no-show", h.MarkNoShow)
	g.POST("/bookings/:id/cancel", h.CancelBooking)
	g.GET("/bookings/:id/invoice", h.Invoice)
}
