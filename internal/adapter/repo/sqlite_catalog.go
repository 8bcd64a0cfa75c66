package repo

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/example/book-bazaar/internal/domain"
)

// sqliteDriver is go-sqlite3 with unicode_lower registered on every
// connection. SQLite's own lower() and LIKE fold ASCII letters only.
const sqliteDriver = "sqlite3_bazaar"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", strings.ToLower, true)
		},
	})
}

// sqliteReplica is one SQLite database file. Transactions start with
// BEGIN IMMEDIATE so a read-modify-write holds the write lock throughout.
type sqliteReplica struct {
	path string
	db   *sql.DB
}

func newSQLiteReplica(path string) (sqliteReplica, error) {
	dsn := "file:" + path + "?_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return sqliteReplica{}, errors.Wrapf(err, "open sqlite %s", path)
	}
	return sqliteReplica{path: path, db: db}, nil
}

func (r sqliteReplica) Addr() string { return "sqlite://" + r.path }

func (r sqliteReplica) Close() error { return r.db.Close() }

func (r sqliteReplica) conn(ctx context.Context) (*sql.Conn, error) {
	c, err := r.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open connection")
	}
	if err := c.PingContext(ctx); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "ping")
	}
	return c, nil
}

func (r sqliteReplica) ensureDir() error {
	if dir := filepath.Dir(r.path); dir != "." {
		return errors.Wrap(os.MkdirAll(dir, 0o755), "create data dir")
	}
	return nil
}

// SQLiteCatalog is a catalog replica stored in a SQLite file.
type SQLiteCatalog struct {
	sqliteReplica
}

func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	r, err := newSQLiteReplica(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteCatalog{sqliteReplica: r}, nil
}

func (r *SQLiteCatalog) Open(ctx context.Context) (domain.CatalogConn, error) {
	c, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteCatalogConn{conn: c}, nil
}

// EnsureSchema creates the data directory and books table if missing.
func (r *SQLiteCatalog) EnsureSchema(ctx context.Context) error {
	if err := r.ensureDir(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS books (
  id INTEGER PRIMARY KEY,
  topic TEXT NOT NULL,
  price NUMERIC NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL DEFAULT 0
);`)
	return errors.Wrap(err, "ensure books schema")
}

type sqliteCatalogConn struct {
	conn *sql.Conn
}

const sqliteBookColumns = `id, topic, CAST(price AS TEXT), quantity`

func (c *sqliteCatalogConn) FindByID(ctx context.Context, id int64) (domain.Book, error) {
	return findSQLiteBook(ctx, c.conn, id)
}

type sqliteQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findSQLiteBook(ctx context.Context, q sqliteQueryer, id int64) (domain.Book, error) {
	b, err := scanBook(q.QueryRowContext(ctx, `SELECT `+sqliteBookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Book{}, errors.Wrapf(err, "select book %d", id)
	}
	return b, nil
}

func (c *sqliteCatalogConn) FindByTopic(ctx context.Context, topic string) ([]domain.Book, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if domain.IsTopicAll(topic) {
		rows, err = c.conn.QueryContext(ctx, `SELECT `+sqliteBookColumns+` FROM books ORDER BY id`)
	} else {
		rows, err = c.conn.QueryContext(ctx,
			`SELECT `+sqliteBookColumns+` FROM books WHERE unicode_lower(topic) LIKE '%' || ? || '%' ESCAPE '\' ORDER BY id`,
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

// inTx runs fn in a BEGIN IMMEDIATE transaction on the worker's connection.
func (c *sqliteCatalogConn) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (c *sqliteCatalogConn) DecrementStock(ctx context.Context, id int64) (domain.Book, error) {
	var out domain.Book
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		b, err := findSQLiteBook(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Quantity <= 0 {
			return domain.ErrOutOfStock
		}
		b.Quantity--
		if _, err := tx.ExecContext(ctx, `UPDATE books SET quantity = ? WHERE id = ?`, b.Quantity, id); err != nil {
			return errors.Wrapf(err, "update book %d", id)
		}
		out = b
		return nil
	})
	return out, err
}

func (c *sqliteCatalogConn) UpdateBook(ctx context.Context, id int64, u domain.BookUpdate) (domain.Book, error) {
	var out domain.Book
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		b, err := findSQLiteBook(ctx, tx, id)
		if err != nil {
			return err
		}
		b = u.Apply(b)
		if _, err := tx.ExecContext(ctx, `UPDATE books SET price = ?, quantity = ? WHERE id = ?`,
			b.Price.String(), b.Quantity, id); err != nil {
			return errors.Wrapf(err, "update book %d", id)
		}
		out = b
		return nil
	})
	return out, err
}

func (c *sqliteCatalogConn) UpsertBook(ctx context.Context, b domain.Book) error {
	_, err := c.conn.ExecContext(ctx, `INSERT INTO books(id, topic, price, quantity) VALUES(?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET topic = excluded.topic, price = excluded.price, quantity = excluded.quantity`,
		b.ID, b.Topic, b.Price.String(), b.Quantity)
	return errors.Wrapf(err, "upsert book %d", b.ID)
}

func (c *sqliteCatalogConn) Close() error { return c.conn.Close() }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
