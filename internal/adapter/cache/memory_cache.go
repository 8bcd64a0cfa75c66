package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/book-bazaar/internal/domain"
)

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is an in-process cache with a per-entry ttl. The LRU bound only
// protects memory; entries normally leave through expiry or Delete.
type Memory[V any] struct {
	store  *expirable.LRU[string, memoryEntry[V]]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemory keeps at most size entries (0 means unbounded). maxTTL caps
// every entry's ttl and drives the background sweep.
func NewMemory[V any](size int, maxTTL time.Duration) *Memory[V] {
	return &Memory[V]{
		store:  expirable.NewLRU[string, memoryEntry[V]](size, nil, maxTTL),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

func (c *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	e, ok := c.store.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	// Shorter per-entry ttls expire here; the sweep drops the entry later.
	if !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Memory[V]) Set(_ context.Context, key string, v V, ttl time.Duration) {
	if c.maxTTL > 0 && ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	c.store.Add(key, memoryEntry[V]{value: v, expiresAt: c.now().Add(ttl)})
}

func (c *Memory[V]) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		c.store.Remove(k)
	}
}

func (c *Memory[V]) Len() int { return c.store.Len() }

var _ domain.Cache[[]domain.Book] = (*Memory[[]domain.Book])(nil)
