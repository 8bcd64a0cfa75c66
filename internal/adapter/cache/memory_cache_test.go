package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemory(clock *fakeClock) *Memory[string] {
	c := NewMemory[string](0, time.Hour)
	c.now = clock.Now
	return c
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(&fakeClock{now: time.Unix(1000, 0)})

	_, ok := c.Get(ctx, "product:1")
	assert.False(t, ok)

	c.Set(ctx, "product:1", "book", time.Minute)
	v, ok := c.Get(ctx, "product:1")
	require.True(t, ok)
	assert.Equal(t, "book", v)
}

func TestMemoryEntryExpires(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestMemory(clock)

	c.Set(ctx, "topic:all", "listing", 60*time.Second)

	clock.Advance(59 * time.Second)
	_, ok := c.Get(ctx, "topic:all")
	assert.True(t, ok, "entry is valid until its ttl elapses")

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "topic:all")
	assert.False(t, ok)

	c.Set(ctx, "topic:all", "fresh", 60*time.Second)
	v, ok := c.Get(ctx, "topic:all")
	require.True(t, ok, "a refill after expiry is served")
	assert.Equal(t, "fresh", v)
}

func TestMemoryTTLCappedAtMax(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewMemory[string](0, time.Minute)
	c.now = clock.Now

	c.Set(ctx, "product:1", "book", time.Hour)

	clock.Advance(59 * time.Second)
	_, ok := c.Get(ctx, "product:1")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "product:1")
	assert.False(t, ok, "ttl beyond the cache maximum is cut to it")
}

func TestMemoryPerEntryTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestMemory(clock)

	c.Set(ctx, "short", "a", time.Second)
	c.Set(ctx, "long", "b", time.Minute)
	clock.Advance(2 * time.Second)

	_, ok := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "long")
	assert.True(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestMemory(&fakeClock{now: time.Unix(1000, 0)})

	c.Set(ctx, "a", "1", time.Minute)
	c.Set(ctx, "b", "2", time.Minute)
	c.Set(ctx, "c", "3", time.Minute)
	c.Delete(ctx, "a", "b", "missing")

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemorySizeBound(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](2, time.Hour)

	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, time.Minute)
	c.Set(ctx, "c", 3, time.Minute)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry is evicted")
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](0, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(ctx, key, worker, time.Minute)
				c.Get(ctx, key)
				if j%7 == 0 {
					c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 10)
}
