// Package replica selects and opens connections to the physical replicas of
// a logical store. Reads take one replica per worker scope, round-robin;
// writes walk every member in order.
package replica

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/book-bazaar/internal/domain"
)

// Conn is a connection handed out by a replica. Close releases it.
type Conn interface {
	Close() error
}

// Member is one physical replica of a logical store.
type Member[C Conn] interface {
	Addr() string
	Open(ctx context.Context) (C, error)
}

// Set is the ordered, fixed replica set of one logical store.
type Set[C Conn] struct {
	store   string
	members []Member[C]
	cursor  atomic.Uint64
}

var ErrEmptySet = errors.New("replica set has no members")

func NewSet[C Conn](store string, members ...Member[C]) (*Set[C], error) {
	if len(members) == 0 {
		return nil, ErrEmptySet
	}
	return &Set[C]{store: store, members: append([]Member[C](nil), members...)}, nil
}

func (s *Set[C]) Store() string { return s.store }

func (s *Set[C]) Len() int { return len(s.members) }

// Members returns the replicas in write order.
func (s *Set[C]) Members() []Member[C] {
	return append([]Member[C](nil), s.members...)
}

// Next advances the shared cursor by one and returns the member it lands on.
// Concurrent callers each get a distinct cursor value, but which caller gets
// which member is up to the scheduler.
func (s *Set[C]) Next() Member[C] {
	i := s.cursor.Add(1) - 1
	return s.members[i%uint64(len(s.members))]
}

// Open connects to m. Failures come back as *domain.ReplicaError; there is
// no failover to another member.
func (s *Set[C]) Open(ctx context.Context, m Member[C]) (C, error) {
	c, err := m.Open(ctx)
	if err != nil {
		var zero C
		var re *domain.ReplicaError
		if errors.As(err, &re) {
			return zero, err
		}
		return zero, &domain.ReplicaError{Store: s.store, Addr: m.Addr(), Err: err}
	}
	return c, nil
}

// Handle is a worker-owned connection together with the replica it points at.
type Handle[C Conn] struct {
	Conn C
	Addr string
}

// Acquire returns the worker's connection to this store. The first call in a
// scope picks a member round-robin; later calls in the same scope reuse it.
func (s *Set[C]) Acquire(ctx context.Context) (Handle[C], error) {
	sc := scopeFrom(ctx)
	if sc == nil {
		return Handle[C]{}, ErrNoScope
	}
	if h, ok := sc.lookup(s); ok {
		return h.(Handle[C]), nil
	}
	m := s.Next()
	log.Debug().Str("store", s.store).Str("replica", m.Addr()).Msg("acquire replica")
	c, err := s.Open(ctx, m)
	if err != nil {
		return Handle[C]{}, err
	}
	h := Handle[C]{Conn: c, Addr: m.Addr()}
	if err := sc.keep(s, h, c); err != nil {
		_ = c.Close()
		return Handle[C]{}, err
	}
	return h, nil
}

// Classify turns a failed call on addr into a *domain.ReplicaError unless
// the error is a domain answer (not found, out of stock, invalid input) or
// the caller cancelled.
func (s *Set[C]) Classify(addr string, err error) error {
	if err == nil {
		return nil
	}
	var re *domain.ReplicaError
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, context.Canceled),
		errors.As(err, &re):
		return err
	}
	return &domain.ReplicaError{Store: s.store, Addr: addr, Err: err}
}

// Close shuts down members that own resources, such as connection pools.
func (s *Set[C]) Close() error {
	var g errgroup.Group
	for _, m := range s.members {
		closer, ok := m.(io.Closer)
		if !ok {
			continue
		}
		g.Go(closer.Close)
	}
	return g.Wait()
}
