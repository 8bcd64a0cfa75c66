package usecase

import (
	"context"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
)

// Receipt describes a completed purchase.
type Receipt struct {
	Book domain.Book
	// FailedOrderReplicas lists order replicas that did not record the
	// order. The stock was still taken on every catalog replica.
	FailedOrderReplicas []string
}

// Degraded reports whether some order replica missed the order row.
func (r Receipt) Degraded() bool { return len(r.FailedOrderReplicas) > 0 }

// PurchaseBook sells one unit of a book across every catalog and order
// replica. It runs in two phases: every catalog replica is checked first, so
// a missing book or empty stock aborts before anything is written, and only
// then is the stock decremented replica by replica. There is no rollback; a
// failure half way through the commit is reported as *domain.PartialWriteError.
type PurchaseBook struct {
	Catalog     *replica.Set[domain.CatalogConn]
	Orders      *replica.Set[domain.OrderConn]
	Invalidator *Invalidator
	Publisher   domain.EventPublisher
	Locks       *kmutex.Kmutex
	Timeout     time.Duration
	Now         func() time.Time
}

func (uc PurchaseBook) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

func (uc PurchaseBook) Execute(ctx context.Context, rawID string) (Receipt, error) {
	start := time.Now()
	id, err := domain.ParseBookID(rawID)
	if err != nil {
		return Receipt{}, err
	}
	if uc.Locks != nil {
		uc.Locks.Lock(id)
		defer uc.Locks.Unlock(id)
	}

	ctx, cancel := withTimeout(ctx, uc.Timeout)
	defer cancel()

	conns, err := openAll(ctx, uc.Catalog)
	if err != nil {
		return Receipt{}, err
	}
	defer closeAll(conns)

	var topic string
	for _, h := range conns {
		b, err := h.Conn.FindByID(ctx, id)
		if err != nil {
			return Receipt{}, uc.Catalog.Classify(h.Addr, err)
		}
		if b.Quantity <= 0 {
			return Receipt{}, domain.ErrOutOfStock
		}
		topic = b.Topic
	}

	var (
		book    domain.Book
		applied = make([]string, 0, len(conns))
	)
	for _, h := range conns {
		b, err := h.Conn.DecrementStock(ctx, id)
		if err != nil {
			err = uc.Catalog.Classify(h.Addr, err)
			if len(applied) == 0 {
				return Receipt{}, err
			}
			perr := &domain.PartialWriteError{Op: "purchase", Applied: applied, Err: err}
			log.Error().Err(err).Int64("book_id", id).Strs("applied", applied).Str("failed", h.Addr).Msg("purchase left catalog replicas diverged")
			if uc.Invalidator != nil {
				uc.Invalidator.Invalidate(ctx, id, topic)
			}
			return Receipt{}, perr
		}
		applied = append(applied, h.Addr)
		book = b
	}

	if uc.Invalidator != nil {
		uc.Invalidator.Invalidate(ctx, id, book.Topic)
	}

	receipt := Receipt{Book: book}
	order := domain.Order{BookID: id, OrderDate: uc.now(), Quantity: 1}
	for _, m := range uc.Orders.Members() {
		if err := insertOrder(ctx, uc.Orders, m, order); err != nil {
			log.Warn().Err(err).Int64("book_id", id).Str("replica", m.Addr()).Msg("order not recorded")
			receipt.FailedOrderReplicas = append(receipt.FailedOrderReplicas, m.Addr())
		}
	}

	publish(ctx, uc.Publisher, domain.NewCatalogEvent(domain.EventPurchased, book, uc.now()))
	log.Info().Int64("book_id", id).Int("quantity", book.Quantity).
		Bool("degraded", receipt.Degraded()).Dur("elapsed", time.Since(start)).Msg("book purchased")
	return receipt, nil
}

func insertOrder(ctx context.Context, set *replica.Set[domain.OrderConn], m replica.Member[domain.OrderConn], o domain.Order) error {
	c, err := set.Open(ctx, m)
	if err != nil {
		return err
	}
	defer c.Close()
	return set.Classify(m.Addr(), c.InsertOrder(ctx, o))
}

// openAll connects to every member of set in write order. Any failure closes
// what was opened and aborts.
func openAll[C replica.Conn](ctx context.Context, set *replica.Set[C]) ([]replica.Handle[C], error) {
	members := set.Members()
	out := make([]replica.Handle[C], 0, len(members))
	for _, m := range members {
		c, err := set.Open(ctx, m)
		if err != nil {
			closeAll(out)
			return nil, err
		}
		out = append(out, replica.Handle[C]{Conn: c, Addr: m.Addr()})
	}
	return out, nil
}

func closeAll[C replica.Conn](hs []replica.Handle[C]) {
	for _, h := range hs {
		if err := h.Conn.Close(); err != nil {
			log.Warn().Err(err).Str("replica", h.Addr).Msg("close replica connection")
		}
	}
}

func publish(ctx context.Context, p domain.EventPublisher, ev domain.CatalogEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn().Err(errors.Wrap(err, "publish catalog event")).Str("kind", string(ev.Kind)).Int64("book_id", ev.BookID).Msg("event dropped")
	}
}
