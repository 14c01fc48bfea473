package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/booking"
	"github.com/iliyamo/table-reservation/internal/invoice"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/payment"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/service"
	"github.com/iliyamo/table-reservation/internal/slot"
)

// unprocessable lists the sentinels that mean the request was well formed
// but breaks a booking rule.
var unprocessable = []error{
	slot.ErrInvalidDate,
	slot.ErrInvalidTime,
	service.ErrInvalidSlot,
	service.ErrEmptyCart,
	service.ErrNoSlot,
	service.ErrMenuUnavailable,
	service.ErrInvalidQuantity,
	service.ErrNothingToSettle,
	booking.ErrInsufficientTender,
}

// conflicts lists the sentinels answered with 409.
var conflicts = []error{
	booking.ErrIllegalTransition,
	service.ErrNotSeated,
	repository.ErrConflict,
	repository.ErrPendingExists,
	invoice.ErrNotCompleted,
}

// MapError translates a service error into an HTTP status and response
// body.  Bodies always carry "error"; typed errors add "details".
func MapError(err error) (int, echo.Map) {
	body := echo.Map{"error": err.Error()}

	var (
		we  *slot.WindowError
		ce  *booking.CapacityError
		cfe *booking.ConflictError
		cie *booking.CheckInError
		te  *booking.TransitionError
	)
	switch {
	case errors.As(err, &we):
		body["details"] = echo.Map{"reason": we.Reason.Error(), "requested": we.Requested.Format("2006-01-02 15:04")}
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &ce):
		d := echo.Map{"reason": ce.Reason.Error(), "party_size": ce.PartySize, "total_capacity": ce.TotalCapacity}
		if ce.Table != nil {
			d["table"] = echo.Map{"id": ce.Table.ID, "name": ce.Table.Name, "capacity": ce.Table.Capacity}
		}
		body["details"] = d
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &cfe):
		body["details"] = cfe.Report
		return http.StatusConflict, body
	case errors.As(err, &cie):
		d := echo.Map{"reason": cie.Reason.Error(), "code": cie.Code, "status": cie.Status}
		if !cie.Start.IsZero() {
			d["start"] = cie.Start.Format("15:04")
			d["window_open"] = cie.WindowOpen.Format("15:04")
			d["window_close"] = cie.WindowClose.Format("15:04")
		}
		body["details"] = d
		return http.StatusConflict, body
	case errors.As(err, &te):
		body["details"] = echo.Map{"from": te.From, "event": te.Event}
		return http.StatusConflict, body
	case errors.Is(err, booking.ErrPaymentIncomplete):
		return http.StatusConflict, body
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, body
	case errors.Is(err, lock.ErrLockTimeout):
		return http.StatusServiceUnavailable, body
	case errors.Is(err, payment.ErrGateway):
		return http.StatusBadGateway, body
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized, body
	case errors.Is(err, payment.ErrMalformedNotification), errors.Is(err, service.ErrAmountMismatch):
		return http.StatusBadRequest, body
	}
	for _, s := range unprocessable {
		if errors.Is(err, s) {
			return http.StatusUnprocessableEntity, body
		}
	}
	for _, s := range conflicts {
		if errors.Is(err, s) {
			return http.StatusConflict, body
		}
	}
	return http.StatusInternalServerError, echo.Map{"error": "internal error"}
}

// fail writes err as a JSON response.  Unexpected errors are logged with
// the request path and hidden from the client.
func (h *Handler) fail(c echo.Context, err error) error {
	status, body := MapError(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.JSON(status, body)
}
