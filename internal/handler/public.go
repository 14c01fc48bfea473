package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/service"
)

// maxNotificationBytes bounds the payment callback body.
const maxNotificationBytes = 64 << 10

// Health returns a health-check handler.  When ping is set it must
// succeed within two seconds for the service to report ok.
func Health(ping func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}

// Tables handles GET /v1/tables.
func (h *Handler) Tables(c echo.Context) error {
	tables, err := h.svc.Tables(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tables": tables})
}

// Menus handles GET /v1/menus.
func (h *Handler) Menus(c echo.Context) error {
	menus, err := h.svc.Menus(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"menus": menus})
}

// Availability handles GET /v1/availability?date=&time=&tables=1,2[&party_size=].
// It always answers 200 with the conflict report; can_checkout tells the
// client whether the slot may be taken.
func (h *Handler) Availability(c echo.Context) error {
	q := service.AvailabilityQuery{Date: c.QueryParam("date"), Time: c.QueryParam("time")}
	if q.Date == "" || q.Time == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date and time are required"})
	}
	ids, err := parseIDs(c.QueryParam("tables"))
	if err != nil || len(ids) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tables must list at least one table id"})
	}
	q.TableIDs = ids
	if raw := c.QueryParam("party_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid party_size"})
		}
		q.PartySize = n
	}
	report, err := h.svc.Availability(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"availability": report, "messages": report.Messages()})
}

// PaymentCallback handles POST /v1/payments/callback from the gateway.  The
// signature is verified before anything is read from the store.  Repeated
// deliveries are answered 200 without further changes.
func (h *Handler) PaymentCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	res, err := h.svc.HandlePaymentNotification(c.Request().Context(), body)
	if err != nil {
		status, _ := MapError(err)
		h.log.WithError(err).WithField("status", status).Warn("payment notification rejected")
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
