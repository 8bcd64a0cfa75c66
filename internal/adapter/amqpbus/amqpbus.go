// Package amqpbus carries catalog events over a RabbitMQ topic exchange.
// Every front binds its own exclusive queue, so each instance receives every
// event.
package amqpbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/domain"
)

const (
	ExchangeType = "topic"
	// BindingKey matches every catalog event routing key.
	BindingKey = "catalog.#"
)

// Setup dials url and declares the exchange, retrying while the broker
// starts up.
func Setup(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("rabbitmq dial failed")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "could not open channel")
	}
	if err := ch.ExchangeDeclare(exchange, ExchangeType, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "could not declare exchange")
	}
	return conn, ch, nil
}

// RoutingKey is catalog.<kind>.<book id>, e.g. catalog.purchased.7.
func RoutingKey(ev domain.CatalogEvent) string {
	return fmt.Sprintf("catalog.%s.%d", ev.Kind, ev.BookID)
}

// publishChannel is the part of *amqp.Channel the publisher needs.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch       publishChannel
	exchange string
}

func NewPublisher(ch publishChannel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.CatalogEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal catalog event")
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    ev.ID,
		Timestamp:    ev.At,
		DeliveryMode: amqp.Transient,
		Body:         body,
	})
	return errors.Wrapf(err, "publish to %s", p.exchange)
}

type Subscriber struct {
	Ch       *amqp.Channel
	Exchange string
}

func (s *Subscriber) Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error {
	q, err := s.Ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return errors.Wrap(err, "could not declare queue")
	}
	if err := s.Ch.QueueBind(q.Name, BindingKey, s.Exchange, false, nil); err != nil {
		return errors.Wrap(err, "could not bind queue")
	}
	msgs, err := s.Ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "could not start consume")
	}

	go consume(ctx, msgs, handler)
	return nil
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, handler func(ctx context.Context, raw []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := handler(hctx, d.Body); err != nil {
				log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("catalog event handler failed")
			}
			cancel()
		}
	}
}

var (
	_ domain.EventPublisher    = (*Publisher)(nil)
	_ domain.MessageSubscriber = (*Subscriber)(nil)
)
