package usecase

import (
	"context"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
)

// ModifyBook changes price and/or quantity of a book on every catalog
// replica. It follows the same validate-then-commit order as PurchaseBook
// and shares its per-book lock.
type ModifyBook struct {
	Catalog     *replica.Set[domain.CatalogConn]
	Invalidator *Invalidator
	Publisher   domain.EventPublisher
	Locks       *kmutex.Kmutex
	Timeout     time.Duration
}

func (uc ModifyBook) Execute(ctx context.Context, rawID string, upd domain.BookUpdate) (domain.Book, error) {
	id, err := domain.ParseBookID(rawID)
	if err != nil {
		return domain.Book{}, err
	}
	if err := upd.Validate(); err != nil {
		return domain.Book{}, err
	}
	if uc.Locks != nil {
		uc.Locks.Lock(id)
		defer uc.Locks.Unlock(id)
	}

	ctx, cancel := withTimeout(ctx, uc.Timeout)
	defer cancel()

	conns, err := openAll(ctx, uc.Catalog)
	if err != nil {
		return domain.Book{}, err
	}
	defer closeAll(conns)

	var topic string
	for _, h := range conns {
		b, err := h.Conn.FindByID(ctx, id)
		if err != nil {
			return domain.Book{}, uc.Catalog.Classify(h.Addr, err)
		}
		topic = b.Topic
	}

	var (
		book    domain.Book
		applied = make([]string, 0, len(conns))
	)
	for _, h := range conns {
		b, err := h.Conn.UpdateBook(ctx, id, upd)
		if err != nil {
			err = uc.Catalog.Classify(h.Addr, err)
			if len(applied) == 0 {
				return domain.Book{}, err
			}
			log.Error().Err(err).Int64("book_id", id).Strs("applied", applied).Str("failed", h.Addr).Msg("modify left catalog replicas diverged")
			if uc.Invalidator != nil {
				uc.Invalidator.Invalidate(ctx, id, topic)
			}
			return domain.Book{}, &domain.PartialWriteError{Op: "modify", Applied: applied, Err: err}
		}
		applied = append(applied, h.Addr)
		book = b
	}

	if uc.Invalidator != nil {
		uc.Invalidator.Invalidate(ctx, id, book.Topic)
	}
	publish(ctx, uc.Publisher, domain.NewCatalogEvent(domain.EventModified, book, time.Now()))
	log.Info().Int64("book_id", id).Str("price", book.Price.String()).Int("quantity", book.Quantity).Msg("book modified")
	return book, nil
}
