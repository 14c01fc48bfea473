package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// QueueName is the durable queue booking events are routed to.
const QueueName = "booking.events"

// Publisher delivers booking events.  Implementations must be safe for
// concurrent use.  Callers treat errors as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, ev BookingEvent) error
}

// AMQPPublisher publishes persistent JSON messages to QueueName over the
// default exchange.  The connection is dialled lazily and re-dialled after
// it drops.
type AMQPPublisher struct {
	url string
	log logrus.FieldLogger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, log logrus.FieldLogger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log.WithField("component", "publisher")}
}

func (p *AMQPPublisher) connection() (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// Publish sends ev.  A channel is opened per message; channels are cheap
// and not safe to share between goroutines.
func (p *AMQPPublisher) Publish(ctx context.Context, ev BookingEvent) error {
	conn, err := p.connection()
	if err != nil {
		p.log.WithError(err).Warn("publish skipped")
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("channel open failed")
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		MessageId:    fmt.Sprintf("%s:%d:%d", ev.Type, ev.BookingID, ev.OccurredAt.UnixNano()),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", QueueName, false, false, msg); err != nil {
		p.log.WithError(err).WithField("code", ev.Code).Warn("publish failed")
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close closes the broker connection, if any.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

// LogPublisher writes events to the logger.  It stands in when no broker
// is configured.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, ev BookingEvent) error {
	p.Log.WithFields(logrus.Fields{
		"event":  ev.Type,
		"code":   ev.Code,
		"status": ev.Status,
		"total":  ev.Total,
	}).Info("booking event")
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []BookingEvent
}

func (r *Recorder) Publish(_ context.Context, ev BookingEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []BookingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BookingEvent(nil), r.events...)
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = LogPublisher{}
	_ Publisher = (*Recorder)(nil)
)
