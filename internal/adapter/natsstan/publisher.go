package natsstan

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/example/book-bazaar/internal/domain"
)

// publishConn is the part of stan.Conn the publisher needs.
type publishConn interface {
	Publish(subject string, data []byte) error
}

type Publisher struct {
	conn    publishConn
	subject string
}

func NewPublisher(conn publishConn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Publish sends ev synchronously; it returns once the streaming server
// has stored the message.
func (p *Publisher) Publish(ctx context.Context, ev domain.CatalogEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal catalog event")
	}
	return errors.Wrapf(p.conn.Publish(p.subject, b), "publish to %s", p.subject)
}

var _ domain.EventPublisher = (*Publisher)(nil)
