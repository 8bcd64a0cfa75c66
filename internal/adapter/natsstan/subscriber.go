package natsstan

import (
	"context"
	"errors"
	"time"

	stan "github.com/nats-io/stan.go"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/domain"
)

const handlerTimeout = 5 * time.Second

// Subscriber delivers every catalog event to this instance. It does not use
// a queue group: each front keeps its own cache, so each must see each event.
type Subscriber struct {
	Conn    stan.Conn
	Subject string
}

func (s *Subscriber) Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error {
	sub, err := s.Conn.Subscribe(s.Subject, func(m *stan.Msg) {
		if deliver(handler, m.Data) {
			if err := m.Ack(); err != nil {
				log.Warn().Err(err).Uint64("seq", m.Sequence).Msg("ack failed")
			}
		}
	}, stan.SetManualAckMode(), stan.AckWait(10*time.Second), stan.StartWithLastReceived())
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := sub.Close(); err != nil {
			log.Debug().Err(err).Msg("close subscription")
		}
	}()
	return nil
}

// deliver runs handler with its own timeout and reports whether the message
// should be acknowledged. Malformed events are acked so they are not
// redelivered forever.
func deliver(handler func(ctx context.Context, raw []byte) error, data []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	err := handler(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrValidation):
		log.Warn().Err(err).Msg("dropping malformed catalog event")
		return true
	default:
		log.Error().Err(err).Msg("catalog event handler failed")
		return false
	}
}

var _ domain.MessageSubscriber = (*Subscriber)(nil)
