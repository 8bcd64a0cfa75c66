package usecase

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
)

// SeedCatalog writes a list of books into every catalog replica, replacing
// rows with the same id. Replicas are seeded in parallel.
type SeedCatalog struct {
	Catalog *replica.Set[domain.CatalogConn]
}

func (uc SeedCatalog) Execute(ctx context.Context, books []domain.Book) error {
	for _, b := range books {
		if b.Quantity < 0 {
			return errors.Wrapf(domain.ErrValidation, "book %d: negative quantity", b.ID)
		}
		if b.Price.IsNegative() {
			return errors.Wrapf(domain.ErrValidation, "book %d: negative price", b.ID)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range uc.Catalog.Members() {
		m := m
		g.Go(func() error {
			c, err := uc.Catalog.Open(ctx, m)
			if err != nil {
				return err
			}
			defer c.Close()
			for _, b := range books {
				if err := c.UpsertBook(ctx, b); err != nil {
					return uc.Catalog.Classify(m.Addr(), err)
				}
			}
			log.Info().Str("replica", m.Addr()).Int("books", len(books)).Msg("catalog seeded")
			return nil
		})
	}
	return g.Wait()
}
