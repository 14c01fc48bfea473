package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/iliyamo/table-reservation/internal/slot"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	LogLevel  string // logrus level name
	LogFormat string // "text" or "json"

	StoreDriver string // "mysql" or "memory"
	DBUser      string
	DBPass      string // empty allowed
	DBHost      string
	DBPort      string
	DBName      string

	JWTSecret    string // secret used to verify access tokens
	AccessTTLMin int    // lifetime of tokens minted by cmd/devtoken

	Timezone         string // IANA zone of the restaurant
	OpenTime         string // first bookable start, HH:MM
	CloseTime        string // last bookable start, HH:MM
	MaxAdvanceMonths int

	PaymentDriver     string        // "midtrans" or "fake"
	MidtransServerKey string        // also signs payment notifications
	MidtransBaseURL   string        // empty means the sandbox
	PaymentTimeout    time.Duration // bound on the gateway call at checkout
	PaymentHold       time.Duration // unpaid reservations expire after this
	SweepInterval     time.Duration // how often the sweeper runs

	RabbitURL    string // empty publishes booking events to the log only
	EventLogPath string // where the event consumer appends lines

	LockTTL time.Duration // lifetime of a redis slot lock
}

// Load reads an optional .env file and then the environment.  Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message; everything else has a default.
func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),

		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", "mysql")),
		DBUser:      os.Getenv("DB_USER"),
		DBPass:      os.Getenv("DB_PASS"),
		DBHost:      os.Getenv("DB_HOST"),
		DBPort:      getenv("DB_PORT", "3306"),
		DBName:      os.Getenv("DB_NAME"),

		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),

		Timezone:         getenv("TIMEZONE", "Asia/Jakarta"),
		OpenTime:         getenv("OPEN_TIME", "11:00"),
		CloseTime:        getenv("CLOSE_TIME", "22:00"),
		MaxAdvanceMonths: envInt("MAX_ADVANCE_MONTHS", 2),

		PaymentDriver:     strings.ToLower(getenv("PAYMENT_DRIVER", "midtrans")),
		MidtransServerKey: os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransBaseURL:   os.Getenv("MIDTRANS_BASE_URL"),
		PaymentTimeout:    envDur("PAYMENT_TIMEOUT", 15*time.Second),
		PaymentHold:       envDur("PAYMENT_HOLD_TTL", 30*time.Minute),
		SweepInterval:     envDur("SWEEP_INTERVAL", time.Minute),

		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		EventLogPath: getenv("EVENT_LOG_PATH", "logs/booking.log"),

		LockTTL: envDur("LOCK_TTL", 30*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	switch c.StoreDriver {
	case "mysql":
		for k, v := range map[string]string{"DB_USER": c.DBUser, "DB_HOST": c.DBHost, "DB_NAME": c.DBName} {
			if v == "" {
				errs = multierror.Append(errs, fmt.Errorf("%s is required with STORE_DRIVER=mysql", k))
			}
		}
	case "memory":
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.PaymentDriver {
	case "midtrans", "fake":
		if c.MidtransServerKey == "" {
			errs = multierror.Append(errs, errors.New("MIDTRANS_SERVER_KEY is required"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown PAYMENT_DRIVER %q", c.PaymentDriver))
	}
	if _, err := c.Rules(); err != nil {
		errs = multierror.Append(errs, err)
	}
	for k, d := range map[string]time.Duration{
		"PAYMENT_TIMEOUT":  c.PaymentTimeout,
		"PAYMENT_HOLD_TTL": c.PaymentHold,
		"SWEEP_INTERVAL":   c.SweepInterval,
		"LOCK_TTL":         c.LockTTL,
	} {
		if d <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s must be positive", k))
		}
	}
	if c.PaymentHold > 0 && c.PaymentHold <= c.PaymentTimeout {
		errs = multierror.Append(errs, errors.New("PAYMENT_HOLD_TTL must be longer than PAYMENT_TIMEOUT"))
	}
	// Checkout holds its table locks across the gateway call; a lock that
	// expires first lets another instance in while the slot is undecided.
	if c.LockTTL > 0 && c.LockTTL <= c.PaymentTimeout {
		errs = multierror.Append(errs, errors.New("LOCK_TTL must be longer than PAYMENT_TIMEOUT"))
	}
	return errs.ErrorOrNil()
}

// Rules builds the booking-window rules from the hour and zone settings.
func (c Config) Rules() (slot.Rules, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return slot.Rules{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	open, err := slot.ParseClock(c.OpenTime)
	if err != nil {
		return slot.Rules{}, fmt.Errorf("OPEN_TIME: %w", err)
	}
	closeAt, err := slot.ParseClock(c.CloseTime)
	if err != nil {
		return slot.Rules{}, fmt.Errorf("CLOSE_TIME: %w", err)
	}
	if closeAt < open {
		return slot.Rules{}, errors.New("CLOSE_TIME is before OPEN_TIME")
	}
	if c.MaxAdvanceMonths < 1 {
		return slot.Rules{}, errors.New("MAX_ADVANCE_MONTHS must be at least 1")
	}
	return slot.Rules{Open: open, Close: closeAt, MaxAdvanceMonths: c.MaxAdvanceMonths, Location: loc}, nil
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
