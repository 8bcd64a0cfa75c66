package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/book-bazaar/internal/adapter/cache"
	"github.com/example/book-bazaar/internal/adapter/memstore"
	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testBooks() []domain.Book {
	return []domain.Book{
		{ID: 1, Topic: "distributed systems", Price: decimal.RequireFromString("45.50"), Quantity: 3},
		{ID: 2, Topic: "undergraduate school", Price: decimal.RequireFromString("20"), Quantity: 1},
		{ID: 7, Topic: "fiction", Price: decimal.RequireFromString("9.99"), Quantity: 2},
		{ID: 8, Topic: "Science Fiction", Price: decimal.RequireFromString("15"), Quantity: 0},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CatalogEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.CatalogEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []domain.CatalogEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.CatalogEvent(nil), p.events...)
}

// fixture wires two catalog and two order replicas held in memory.
type fixture struct {
	cat1, cat2 *memstore.Catalog
	ord1, ord2 *memstore.Orders
	cache      *cache.Memory[[]domain.Book]
	inv        *Invalidator
	pub        *recordingPublisher

	query    *QueryService
	purchase PurchaseBook
	modify   ModifyBook
}

func newFixture(t *testing.T, books ...domain.Book) *fixture {
	t.Helper()
	if books == nil {
		books = testBooks()
	}
	f := &fixture{
		cat1:  memstore.NewCatalog("catalog1", books...),
		cat2:  memstore.NewCatalog("catalog2", books...),
		ord1:  memstore.NewOrders("orders1"),
		ord2:  memstore.NewOrders("orders2"),
		cache: cache.NewMemory[[]domain.Book](100, time.Minute),
		pub:   &recordingPublisher{},
	}
	f.inv = NewInvalidator(f.cache)

	catalog, err := replica.NewSet[domain.CatalogConn]("catalog", f.cat1, f.cat2)
	require.NoError(t, err)
	orders, err := replica.NewSet[domain.OrderConn]("order", f.ord1, f.ord2)
	require.NoError(t, err)

	locks := kmutex.New()
	f.query = &QueryService{Catalog: catalog, Cache: f.cache, Invalidator: f.inv, TTL: time.Minute}
	f.purchase = PurchaseBook{
		Catalog:     catalog,
		Orders:      orders,
		Invalidator: f.inv,
		Publisher:   f.pub,
		Locks:       locks,
		Now:         func() time.Time { return fixedNow },
	}
	f.modify = ModifyBook{Catalog: catalog, Invalidator: f.inv, Publisher: f.pub, Locks: locks}
	return f
}

func (f *fixture) reads() int64 { return f.cat1.Reads() + f.cat2.Reads() }

func (f *fixture) quantities(t *testing.T, id int64) (int, int) {
	t.Helper()
	b1, ok := f.cat1.Book(id)
	require.True(t, ok)
	b2, ok := f.cat2.Book(id)
	require.True(t, ok)
	return b1.Quantity, b2.Quantity
}
