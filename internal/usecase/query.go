package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
)

// QueryService serves product reads cache-aside: cache first, then one
// catalog replica chosen round-robin, then the cache is filled.
// Not-found and empty results are never cached.
type QueryService struct {
	Catalog     *replica.Set[domain.CatalogConn]
	Cache       domain.Cache[[]domain.Book]
	Invalidator *Invalidator
	TTL         time.Duration
	Timeout     time.Duration

	group singleflight.Group
}

func (s *QueryService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultCacheTTL
	}
	return s.TTL
}

// GetProduct returns the book with the given numeric id.
func (s *QueryService) GetProduct(ctx context.Context, rawID string) (domain.Book, error) {
	start := time.Now()
	id, err := domain.ParseBookID(rawID)
	if err != nil {
		return domain.Book{}, err
	}

	key := ProductKey(id)
	if cached, ok := s.Cache.Get(ctx, key); ok && len(cached) == 1 {
		log.Debug().Str("key", key).Dur("elapsed", time.Since(start)).Msg("served from cache")
		return cached[0], nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		var b domain.Book
		err := s.withCatalog(detached(ctx), func(ctx context.Context, h replica.Handle[domain.CatalogConn]) error {
			var err error
			b, err = h.Conn.FindByID(ctx, id)
			return s.Catalog.Classify(h.Addr, err)
		})
		if err != nil {
			return nil, err
		}
		s.Cache.Set(ctx, key, []domain.Book{b}, s.ttl())
		return b, nil
	})
	log.Debug().Str("key", key).Err(err).Dur("elapsed", time.Since(start)).Msg("served from store")
	if err != nil {
		return domain.Book{}, err
	}
	return v.(domain.Book), nil
}

// GetProductsByTopic returns the books whose topic matches; "all" in any
// case matches every book. No match yields domain.ErrNotFound.
func (s *QueryService) GetProductsByTopic(ctx context.Context, topic string) ([]domain.Book, error) {
	start := time.Now()
	key := TopicKey(topic)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		log.Debug().Str("key", key).Dur("elapsed", time.Since(start)).Msg("served from cache")
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		var books []domain.Book
		err := s.withCatalog(detached(ctx), func(ctx context.Context, h replica.Handle[domain.CatalogConn]) error {
			var err error
			books, err = h.Conn.FindByTopic(ctx, topic)
			return s.Catalog.Classify(h.Addr, err)
		})
		if err != nil {
			return nil, err
		}
		if len(books) == 0 {
			return nil, domain.ErrNotFound
		}
		s.Cache.Set(ctx, key, books, s.ttl())
		if s.Invalidator != nil {
			s.Invalidator.RememberTopic(topic)
		}
		return books, nil
	})
	log.Debug().Str("key", key).Err(err).Dur("elapsed", time.Since(start)).Msg("served from store")
	if err != nil {
		return nil, err
	}
	return v.([]domain.Book), nil
}

// withCatalog runs fn on the worker's catalog connection. It joins the
// caller's scope if there is one, otherwise the connection is released
// before returning.
func (s *QueryService) withCatalog(ctx context.Context, fn func(context.Context, replica.Handle[domain.CatalogConn]) error) error {
	ctx, release := replica.Scoped(ctx)
	defer release()
	ctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	h, err := s.Catalog.Acquire(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, h)
}

// detached keeps ctx's values, the worker scope included, but drops its
// cancellation: a shared miss outlives the caller that started it.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
