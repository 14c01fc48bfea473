package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/service"
)

// Handler exposes the booking service over HTTP.  Methods assume JWT
// authentication and role checks were done by middleware; the caller's
// user id is read once here and passed to the service explicitly.
type Handler struct {
	svc *service.Service
	log logrus.FieldLogger
}

// New returns a Handler for svc.
func New(svc *service.Service, log logrus.FieldLogger) *Handler {
	if svc == nil {
		panic("nil service passed to handler.New")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{svc: svc, log: log.WithField("component", "http")}
}

// RequestValidator adapts validator/v10 to echo's Validator interface.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator returns a RequestValidator reporting json field names.
func NewValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// bind decodes the body into dst and validates it.  The returned error is
// already written to the response.
func bind(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseIDs reads a comma separated list of positive ids.
func parseIDs(raw string) ([]uint64, error) {
	var ids []uint64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil || id == 0 {
			return nil, errors.New("invalid table id " + strconv.Quote(p))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// page reads limit and offset query parameters with a default limit of 20
// and a maximum of 100.
func page(c echo.Context) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
