// Package memstore keeps catalog and order replicas in process memory. It
// backs mem:// replica addresses and the use-case tests, and can be told to
// fail so partial multi-replica writes can be reproduced.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/book-bazaar/internal/domain"
)

var (
	ErrDown   = errors.New("memstore: replica is down")
	ErrClosed = errors.New("memstore: connection closed")
)

// Catalog is one in-memory catalog replica.
type Catalog struct {
	name  string
	mu    sync.Mutex
	books map[int64]domain.Book

	down          atomic.Bool
	failDecrement atomic.Pointer[error]
	opens         atomic.Int64
	reads         atomic.Int64
	readDelay     atomic.Int64
}

func NewCatalog(name string, books ...domain.Book) *Catalog {
	c := &Catalog{name: name, books: make(map[int64]domain.Book, len(books))}
	for _, b := range books {
		c.books[b.ID] = b
	}
	return c
}

func (c *Catalog) Addr() string { return "mem://" + c.name }

func (c *Catalog) Open(context.Context) (domain.CatalogConn, error) {
	if c.down.Load() {
		return nil, ErrDown
	}
	c.opens.Add(1)
	return &catalogConn{c: c}, nil
}

// SetDown makes subsequent Open calls fail.
func (c *Catalog) SetDown(down bool) { c.down.Store(down) }

// FailDecrements makes DecrementStock return err; nil restores normal behaviour.
func (c *Catalog) FailDecrements(err error) {
	if err == nil {
		c.failDecrement.Store(nil)
		return
	}
	c.failDecrement.Store(&err)
}

// SetReadDelay makes FindByID and FindByTopic wait d before answering, or
// until their context is done.
func (c *Catalog) SetReadDelay(d time.Duration) { c.readDelay.Store(int64(d)) }

// Opens counts connections handed out.
func (c *Catalog) Opens() int64 { return c.opens.Load() }

// Reads counts FindByID and FindByTopic calls.
func (c *Catalog) Reads() int64 { return c.reads.Load() }

// Book returns the stored row, bypassing connection bookkeeping.
func (c *Catalog) Book(id int64) (domain.Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[id]
	return b, ok
}

type catalogConn struct {
	c      *Catalog
	closed atomic.Bool
}

func (cc *catalogConn) check() error {
	if cc.closed.Load() {
		return ErrClosed
	}
	if cc.c.down.Load() {
		return ErrDown
	}
	return nil
}

func (cc *catalogConn) wait(ctx context.Context) error {
	d := time.Duration(cc.c.readDelay.Load())
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cc *catalogConn) FindByID(ctx context.Context, id int64) (domain.Book, error) {
	if err := cc.check(); err != nil {
		return domain.Book{}, err
	}
	if err := cc.wait(ctx); err != nil {
		return domain.Book{}, err
	}
	cc.c.reads.Add(1)
	cc.c.mu.Lock()
	defer cc.c.mu.Unlock()
	b, ok := cc.c.books[id]
	if !ok {
		return domain.Book{}, domain.ErrNotFound
	}
	return b, nil
}

func (cc *catalogConn) FindByTopic(ctx context.Context, topic string) ([]domain.Book, error) {
	if err := cc.check(); err != nil {
		return nil, err
	}
	if err := cc.wait(ctx); err != nil {
		return nil, err
	}
	cc.c.reads.Add(1)
	cc.c.mu.Lock()
	defer cc.c.mu.Unlock()
	out := make([]domain.Book, 0)
	for _, b := range cc.c.books {
		if b.MatchesTopic(topic) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (cc *catalogConn) DecrementStock(_ context.Context, id int64) (domain.Book, error) {
	if err := cc.check(); err != nil {
		return domain.Book{}, err
	}
	if errp := cc.c.failDecrement.Load(); errp != nil {
		return domain.Book{}, *errp
	}
	cc.c.mu.Lock()
	defer cc.c.mu.Unlock()
	b, ok := cc.c.books[id]
	if !ok {
		return domain.Book{}, domain.ErrNotFound
	}
	if b.Quantity <= 0 {
		return domain.Book{}, domain.ErrOutOfStock
	}
	b.Quantity--
	cc.c.books[id] = b
	return b, nil
}

func (cc *catalogConn) UpdateBook(_ context.Context, id int64, u domain.BookUpdate) (domain.Book, error) {
	if err := cc.check(); err != nil {
		return domain.Book{}, err
	}
	cc.c.mu.Lock()
	defer cc.c.mu.Unlock()
	b, ok := cc.c.books[id]
	if !ok {
		return domain.Book{}, domain.ErrNotFound
	}
	b = u.Apply(b)
	cc.c.books[id] = b
	return b, nil
}

func (cc *catalogConn) UpsertBook(_ context.Context, b domain.Book) error {
	if err := cc.check(); err != nil {
		return err
	}
	cc.c.mu.Lock()
	cc.c.books[b.ID] = b
	cc.c.mu.Unlock()
	return nil
}

func (cc *catalogConn) Close() error {
	cc.closed.Store(true)
	return nil
}
