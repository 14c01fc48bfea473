package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/payment"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/router"
	"github.com/iliyamo/table-reservation/internal/scheduler"
	"github.com/iliyamo/table-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

// closer is a named shutdown step.
type closer struct {
	name string
	fn   func() error
}

func run(cfg config.Config, log *logrus.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		var errs *multierror.Error
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].fn(); cerr != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", closers[i].name, cerr))
			}
		}
		if cerr := errs.ErrorOrNil(); cerr != nil {
			log.WithError(cerr).Error("shutdown incomplete")
			if err == nil {
				err = cerr
			}
		}
	}()

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	store, ping, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if db, ok := store.(interface{ DB() *sql.DB }); ok {
		closers = append(closers, closer{"database", db.DB().Close})
	}

	rc := config.LoadRedisConfig()
	rdb := config.NewRedisClient(rc)
	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, rc.LockPrefix, cfg.LockTTL, 0)
		closers = append(closers, closer{"redis", rdb.Close})
		log.WithField("addr", rc.Addr).Info("redis connected: distributed locks, rate limit and cache enabled")
	} else {
		log.Warn("redis unavailable: using in-process locks, rate limit and cache disabled")
	}

	var gateway payment.Gateway
	switch cfg.PaymentDriver {
	case "fake":
		gateway = payment.NewFake(cfg.MidtransServerKey)
		log.Warn("using the fake payment gateway")
	default:
		gateway = payment.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransBaseURL, cfg.PaymentTimeout, nil)
	}

	var events queue.Publisher = queue.LogPublisher{Log: log}
	if cfg.RabbitURL != "" {
		pub := queue.NewAMQPPublisher(cfg.RabbitURL, log)
		events = pub
		closers = append(closers, closer{"rabbitmq publisher", pub.Close})

		consumer := queue.NewConsumer(cfg.RabbitURL, log)
		consumer.LogPath = cfg.EventLogPath
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("booking event consumer stopped")
			}
		}()
	}

	svc := service.New(service.Deps{
		Store:   store,
		Locks:   locker,
		Gateway: gateway,
		Events:  events,
		Log:     log,
	}, service.Options{
		Rules:          rules,
		PaymentTimeout: cfg.PaymentTimeout,
		PaymentHold:    cfg.PaymentHold,
	})

	sched, err := scheduler.New(svc, cfg.SweepInterval, rules.Location, log)
	if err != nil {
		return err
	}
	sched.Start()
	closers = append(closers, closer{"scheduler", sched.Stop})

	e := router.New(router.Deps{
		Handler:   handler.New(svc, log),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Log:       log,
		Ping:      ping,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver, "tz": cfg.Timezone}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}

// openStore returns the configured store and a health probe for it.  The
// MySQL store is migrated to the latest schema first.
func openStore(cfg config.Config, log logrus.FieldLogger) (repository.Store, func(context.Context) error, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using the in-memory store: data is lost on restart, writes run one at a time and a slow payment gateway delays them all")
		return repository.NewMemoryStore(repository.SeedTables(), repository.SeedMenus()), nil, nil
	}
	db, err := database.Open(database.Settings{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName}.DSN())
	if err != nil {
		return nil, nil, err
	}
	version, err := database.Migrate(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.WithField("schema_version", version).Info("database migrated")
	return repository.NewMySQLStore(db), db.PingContext, nil
}
