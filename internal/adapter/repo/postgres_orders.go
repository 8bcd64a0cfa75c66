package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/example/book-bazaar/internal/domain"
)

// PostgresOrders is an order replica stored in PostgreSQL.
type PostgresOrders struct {
	pgReplica
}

func NewPostgresOrders(ctx context.Context, url string) (*PostgresOrders, error) {
	r, err := newPGReplica(ctx, url)
	if err != nil {
		return nil, err
	}
	return &PostgresOrders{pgReplica: r}, nil
}

func (r *PostgresOrders) Open(ctx context.Context) (domain.OrderConn, error) {
	c, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection")
	}
	return &pgOrderConn{conn: c}, nil
}

// EnsureSchema creates the orders table if it is missing.
func (r *PostgresOrders) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  id bigserial PRIMARY KEY,
  book_id bigint NOT NULL,
  order_date timestamptz NOT NULL DEFAULT now(),
  quantity integer NOT NULL DEFAULT 1
);`)
	return errors.Wrap(err, "ensure orders schema")
}

type pgOrderConn struct {
	conn *pgxpool.Conn
}

func (c *pgOrderConn) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := c.conn.Exec(ctx, `INSERT INTO orders(book_id, order_date, quantity) VALUES($1, $2, $3)`,
		o.BookID, o.OrderDate, o.Quantity)
	return errors.Wrapf(err, "insert order for book %d", o.BookID)
}

func (c *pgOrderConn) Close() error {
	c.conn.Release()
	return nil
}
