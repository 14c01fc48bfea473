package router // package router defines how HTTP routes are registered for the API

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/middleware"
)

// Deps carries what route registration needs.  Redis may be nil, in which
// case rate limiting and response caching are off.
type Deps struct {
	Handler   *handler.Handler
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Log       logrus.FieldLogger
	// Ping backs the health check; nil always reports ok.
	Ping func(ctx context.Context) error
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d)
	RegisterCustomer(e, d)
	RegisterStaff(e, d)
	return e
}

// RegisterRoutes registers the routes that do not require authentication.
// The table listing is cached; the payment callback is authenticated by
// its signature instead of a token.
func RegisterRoutes(e *echo.Echo, d Deps) {
	h := d.Handler
	e.GET("/healthz", handler.Health(d.Ping))

	cache := middleware.NewRedisCache(d.Cache, d.Redis)
	e.GET("/v1/tables", h.Tables, cache)
	e.GET("/v1/menus", h.Menus, cache)
	e.GET("/v1/availability", h.Availability, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	e.POST("/v1/payments/callback", h.PaymentCallback)
}
