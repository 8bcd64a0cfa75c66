package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/example/book-bazaar/internal/domain"
)

// pgReplica is one PostgreSQL replica with its own connection pool. A worker
// borrows a single pooled connection for the length of its scope.
type pgReplica struct {
	addr string
	pool *pgxpool.Pool
}

func newPGReplica(ctx context.Context, url string) (pgReplica, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return pgReplica{}, errors.Wrap(err, "parse postgres url")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return pgReplica{}, errors.Wrap(err, "create pool")
	}
	addr := fmt.Sprintf("postgres://%s:%d/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database)
	return pgReplica{addr: addr, pool: pool}, nil
}

func (r pgReplica) Addr() string { return r.addr }

func (r pgReplica) Close() error {
	r.pool.Close()
	return nil
}

// PostgresCatalog is a catalog replica stored in PostgreSQL.
type PostgresCatalog struct {
	pgReplica
}

func NewPostgresCatalog(ctx context.Context, url string) (*PostgresCatalog, error) {
	r, err := newPGReplica(ctx, url)
	if err != nil {
		return nil, err
	}
	return &PostgresCatalog{pgReplica: r}, nil
}

func (r *PostgresCatalog) Open(ctx context.Context) (domain.CatalogConn, error) {
	c, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection")
	}
	return &pgCatalogConn{conn: c}, nil
}

// EnsureSchema creates the books table if it is missing.
func (r *PostgresCatalog) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS books (
  id bigint PRIMARY KEY,
  topic text NOT NULL,
  price numeric(12,2) NOT NULL DEFAULT 0,
  quantity integer NOT NULL DEFAULT 0
);`)
	return errors.Wrap(err, "ensure books schema")
}

type pgCatalogConn struct {
	conn *pgxpool.Conn
}

const pgBookColumns = `id, topic, price::text, quantity`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (domain.Book, error) {
	var (
		b     domain.Book
		price string
	)
	if err := row.Scan(&b.ID, &b.Topic, &price, &b.Quantity); err != nil {
		return domain.Book{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Book{}, errors.Wrapf(err, "book %d price", b.ID)
	}
	b.Price = p
	return b, nil
}

func (c *pgCatalogConn) FindByID(ctx context.Context, id int64) (domain.Book, error) {
	b, err := scanBook(c.conn.QueryRow(ctx, `SELECT `+pgBookColumns+` FROM books WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Book{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Book{}, errors.Wrapf(err, "select book %d", id)
	}
	return b, nil
}

func (c *pgCatalogConn) FindByTopic(ctx context.Context, topic string) ([]domain.Book, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if domain.IsTopicAll(topic) {
		rows, err = c.conn.Query(ctx, `SELECT `+pgBookColumns+` FROM books ORDER BY id`)
	} else {
		rows, err = c.conn.Query(ctx,
			`SELECT `+pgBookColumns+` FROM books WHERE topic ILIKE '%' || $1 || '%' ESCAPE '\' ORDER BY id`,
			escapeLike(domain.NormalizeTopic(topic)))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select books by topic %q", topic)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, errors.Wrap(rows.Err(), "iterate books")
}

func (c *pgCatalogConn) DecrementStock(ctx context.Context, id int64) (domain.Book, error) {
	var out domain.Book
	err := pgx.BeginFunc(ctx, c.conn, func(tx pgx.Tx) error {
		b, err := scanBook(tx.QueryRow(ctx, `SELECT `+pgBookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "lock book %d", id)
		}
		if b.Quantity <= 0 {
			return domain.ErrOutOfStock
		}
		b.Quantity--
		if _, err := tx.Exec(ctx, `UPDATE books SET quantity = $2 WHERE id = $1`, id, b.Quantity); err != nil {
			return errors.Wrapf(err, "update book %d", id)
		}
		out = b
		return nil
	})
	return out, err
}

func (c *pgCatalogConn) UpdateBook(ctx context.Context, id int64, u domain.BookUpdate) (domain.Book, error) {
	var out domain.Book
	err := pgx.BeginFunc(ctx, c.conn, func(tx pgx.Tx) error {
		b, err := scanBook(tx.QueryRow(ctx, `SELECT `+pgBookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "lock book %d", id)
		}
		b = u.Apply(b)
		if _, err := tx.Exec(ctx, `UPDATE books SET price = $2::numeric, quantity = $3 WHERE id = $1`,
			id, b.Price.String(), b.Quantity); err != nil {
			return errors.Wrapf(err, "update book %d", id)
		}
		out = b
		return nil
	})
	return out, err
}

func (c *pgCatalogConn) UpsertBook(ctx context.Context, b domain.Book) error {
	_, err := c.conn.Exec(ctx, `INSERT INTO books(id, topic, price, quantity) VALUES($1, $2, $3::numeric, $4)
        ON CONFLICT (id) DO UPDATE SET topic = EXCLUDED.topic, price = EXCLUDED.price, quantity = EXCLUDED.quantity`,
		b.ID, b.Topic, b.Price.String(), b.Quantity)
	return errors.Wrapf(err, "upsert book %d", b.ID)
}

func (c *pgCatalogConn) Close() error {
	c.conn.Release()
	return nil
}
