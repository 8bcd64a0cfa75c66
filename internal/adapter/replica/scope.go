package replica

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrNoScope     = errors.New("replica: acquire outside of a worker scope")
	ErrScopeClosed = errors.New("replica: worker scope already released")
)

type scopeKey struct{}

// scope holds the connections one worker opened during a unit of work.
type scope struct {
	mu     sync.Mutex
	held   map[any]any
	order  []Conn
	closed bool
}

// Scoped starts a worker scope on ctx. The returned release closes every
// connection acquired inside it and must be called on every exit path. If
// ctx already carries a scope, that scope is reused and release is a no-op.
func Scoped(ctx context.Context) (context.Context, func()) {
	if scopeFrom(ctx) != nil {
		return ctx, func() {}
	}
	sc := &scope{held: make(map[any]any)}
	return context.WithValue(ctx, scopeKey{}, sc), sc.release
}

func scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	return sc
}

func (sc *scope) lookup(key any) (any, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	h, ok := sc.held[key]
	return h, ok
}

// keep records handle h for key; c is closed on release.
func (sc *scope) keep(key, h any, c Conn) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return ErrScopeClosed
	}
	sc.held[key] = h
	sc.order = append(sc.order, c)
	return nil
}

func (sc *scope) release() {
	sc.mu.Lock()
	conns := sc.order
	sc.order, sc.held, sc.closed = nil, nil, true
	sc.mu.Unlock()

	for i := len(conns) - 1; i >= 0; i-- {
		if err := conns[i].Close(); err != nil {
			log.Warn().Err(err).Msg("release replica connection")
		}
	}
}
