// Package events publishes order lifecycle events for the external job engine.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Event types published by the order service.
const (
	OrderActive = "active"
	OrderDenied = "denied"
	OrderFailed = "failed"
)

const DefaultExchange = "orderflow.orders"

type Event struct {
	Type       string    `json:"type"`
	OrderID    uuid.UUID `json:"orderId"`
	Status     string    `json:"status"`
	GroupID    uuid.UUID `json:"groupId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// RoutingKey is the topic the event is published under, e.g. "order.active".
func (e Event) RoutingKey() string {
	return "order." + e.Type
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes events as persistent JSON messages on a durable topic exchange.
type AMQP struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	log      logrus.FieldLogger
}

// Dial connects to the broker at url and declares the exchange.
func Dial(url, exchange string, log logrus.FieldLogger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to message broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := newAMQP(ch, exchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQP(ch channel, exchange string, log logrus.FieldLogger) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}
	return &AMQP{channel: ch, exchange: exchange, log: log}, nil
}

func (p *AMQP) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, event.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", event.RoutingKey(), event.OrderID, err)
	}
	p.log.WithFields(logrus.Fields{"order": event.OrderID, "key": event.RoutingKey()}).Debug("Published order event")
	return nil
}

func (p *AMQP) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error                         { return nil }
