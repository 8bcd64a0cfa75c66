package memstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/example/book-bazaar/internal/domain"
)

// Orders is one in-memory order replica.
type Orders struct {
	name string
	mu   sync.Mutex
	rows []domain.Order

	down       atomic.Bool
	failInsert atomic.Pointer[error]
}

func NewOrders(name string) *Orders {
	return &Orders{name: name}
}

func (o *Orders) Addr() string { return "mem://" + o.name }

func (o *Orders) Open(context.Context) (domain.OrderConn, error) {
	if o.down.Load() {
		return nil, ErrDown
	}
	return &orderConn{o: o}, nil
}

func (o *Orders) SetDown(down bool) { o.down.Store(down) }

// FailInserts makes InsertOrder return err; nil restores normal behaviour.
func (o *Orders) FailInserts(err error) {
	if err == nil {
		o.failInsert.Store(nil)
		return
	}
	o.failInsert.Store(&err)
}

// Rows returns a copy of every stored order.
func (o *Orders) Rows() []domain.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Order(nil), o.rows...)
}

// CountFor returns how many orders reference bookID.
func (o *Orders) CountFor(bookID int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, r := range o.rows {
		if r.BookID == bookID {
			n++
		}
	}
	return n
}

type orderConn struct {
	o      *Orders
	closed atomic.Bool
}

func (oc *orderConn) InsertOrder(_ context.Context, ord domain.Order) error {
	if oc.closed.Load() {
		return ErrClosed
	}
	if oc.o.down.Load() {
		return ErrDown
	}
	if errp := oc.o.failInsert.Load(); errp != nil {
		return *errp
	}
	oc.o.mu.Lock()
	oc.o.rows = append(oc.o.rows, ord)
	oc.o.mu.Unlock()
	return nil
}

func (oc *orderConn) Close() error {
	oc.closed.Store(true)
	return nil
}
