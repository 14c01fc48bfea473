// Package service applies the booking core to stored data.  Every
// operation that reads state, decides with the booking package and then
// writes runs inside one repository transaction; operations that touch a
// table slot also hold the (table, date) locks for their duration.  The
// caller's user id is always passed in explicitly.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/payment"
	"github.com/iliyamo/table-reservation/internal/qr"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/slot"
)

var (
	// ErrEmptyCart means checkout was attempted without any item.
	ErrEmptyCart = errors.New("cart has no items")
	// ErrNoSlot means checkout was attempted before a date, time and tables
	// were chosen.
	ErrNoSlot = errors.New("reservation date, time and tables are required")
	// ErrMenuUnavailable means the menu entry is not on sale.
	ErrMenuUnavailable = errors.New("menu item is not available")
	// ErrInvalidQuantity means a non-positive quantity was requested.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrAmountMismatch means a payment notification reports an amount
	// other than the booking total.
	ErrAmountMismatch = errors.New("paid amount does not match booking total")
	// ErrNothingToSettle means a point-of-sale settlement has no amount due.
	ErrNothingToSettle = errors.New("nothing to settle")
	// ErrNotSeated means the booking is not at a table.
	ErrNotSeated = errors.New("booking is not seated")
	// ErrInvalidSlot means a date or time could not be parsed.
	ErrInvalidSlot = errors.New("invalid reservation date or time")
)

// Options tunes a Service.  Zero values fall back to the defaults noted.
type Options struct {
	Rules slot.Rules
	// PaymentTimeout bounds the gateway call made during checkout (15s).
	PaymentTimeout time.Duration
	// PaymentHold is how long a placed payment may stay unconfirmed before
	// the sweeper expires it (30m).
	PaymentHold time.Duration
	// LockTimeout bounds the wait for slot and booking locks (5s).
	LockTimeout time.Duration
	// Now returns the current instant; tests freeze it.
	Now func() time.Time
}

// Deps are the collaborators a Service works with.
type Deps struct {
	Store   repository.Store
	Locks   lock.Locker
	Gateway payment.Gateway
	Events  queue.Publisher
	QR      *qr.Renderer
	Log     logrus.FieldLogger
}

// Service is the reservation engine.
type Service struct {
	store   repository.Store
	locks   lock.Locker
	gateway payment.Gateway
	events  queue.Publisher
	qr      *qr.Renderer
	log     logrus.FieldLogger
	opts    Options
}

// New returns a Service.  Missing optional collaborators are replaced by
// in-process ones: a local locker, a logging publisher and a default QR
// renderer.
func New(d Deps, opts Options) *Service {
	if opts.Rules.Location == nil {
		opts.Rules = slot.DefaultRules(time.UTC)
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 15 * time.Second
	}
	if opts.PaymentHold <= 0 {
		opts.PaymentHold = 30 * time.Minute
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "booking-service")
	if d.Locks == nil {
		d.Locks = lock.NewLocalLocker()
	}
	if d.Events == nil {
		d.Events = queue.LogPublisher{Log: log}
	}
	if d.QR == nil {
		d.QR = qr.NewRenderer(qr.DefaultSize)
	}
	return &Service{
		store:   d.Store,
		locks:   d.Locks,
		gateway: d.Gateway,
		events:  d.Events,
		qr:      d.QR,
		log:     log,
		opts:    opts,
	}
}

// Location is the restaurant's time zone.
func (s *Service) Location() *time.Location { return s.opts.Rules.Location }

// now returns the current instant in restaurant time, truncated to the
// minute.
func (s *Service) now() time.Time {
	return slot.Truncate(s.opts.Now().In(s.Location()))
}

// withLocks runs fn while holding keys.
func (s *Service) withLocks(ctx context.Context, keys []string, fn func() error) error {
	lctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	unlock, err := s.locks.Lock(lctx, keys...)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// emit publishes ev for b after its change has been committed.  Failures
// are logged and otherwise ignored.
func (s *Service) emit(ctx context.Context, typ queue.EventType, b *model.Booking, reason string) {
	if b == nil {
		return
	}
	ev := queue.BookingEvent{
		Type:          typ,
		BookingID:     b.ID,
		Code:          b.Code,
		UserID:        b.UserID,
		WalkIn:        b.WalkIn,
		PartySize:     b.PartySize,
		Date:          b.Date,
		Time:          b.Time,
		Tables:        []string{},
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		Total:         b.TotalPrice,
		Reason:        reason,
		OccurredAt:    s.opts.Now().UTC(),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if tables, err := s.store.TablesByIDs(pctx, b.TableIDs); err == nil {
		for _, t := range tables {
			ev.Tables = append(ev.Tables, t.Name)
		}
	}
	if err := s.events.Publish(pctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"event": typ, "code": b.Code}).Warn("event not published")
	}
}
