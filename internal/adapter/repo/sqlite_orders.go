package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/example/book-bazaar/internal/domain"
)

// SQLiteOrders is an order replica stored in a SQLite file.
type SQLiteOrders struct {
	sqliteReplica
}

func NewSQLiteOrders(path string) (*SQLiteOrders, error) {
	r, err := newSQLiteReplica(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteOrders{sqliteReplica: r}, nil
}

func (r *SQLiteOrders) Open(ctx context.Context) (domain.OrderConn, error) {
	c, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteOrderConn{conn: c}, nil
}

func (r *SQLiteOrders) EnsureSchema(ctx context.Context) error {
	if err := r.ensureDir(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  book_id INTEGER NOT NULL,
  order_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  quantity INTEGER NOT NULL DEFAULT 1
);`)
	return errors.Wrap(err, "ensure orders schema")
}

// CountOrders returns how many order rows reference bookID.
func (r *SQLiteOrders) CountOrders(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE book_id = ?`, bookID).Scan(&n)
	return n, errors.Wrap(err, "count orders")
}

type sqliteOrderConn struct {
	conn *sql.Conn
}

func (c *sqliteOrderConn) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := c.conn.ExecContext(ctx, `INSERT INTO orders(book_id, order_date, quantity) VALUES(?, ?, ?)`,
		o.BookID, o.OrderDate, o.Quantity)
	return errors.Wrapf(err, "insert order for book %d", o.BookID)
}

func (c *sqliteOrderConn) Close() error { return c.conn.Close() }
