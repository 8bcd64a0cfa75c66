package usecase

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/domain"
)

// ApplyCatalogEvent drops local cache entries named by a catalog event
// published by any front instance, this one included.
type ApplyCatalogEvent struct {
	Invalidator *Invalidator
}

func (uc ApplyCatalogEvent) Execute(ctx context.Context, raw []byte) error {
	var ev domain.CatalogEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return errors.Wrap(domain.ErrValidation, err.Error())
	}
	if ev.BookID < 0 || ev.Kind == "" {
		return errors.Wrap(domain.ErrValidation, "catalog event without book or kind")
	}
	uc.Invalidator.Invalidate(ctx, ev.BookID, ev.Topic)
	log.Debug().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Int64("book_id", ev.BookID).Msg("catalog event applied")
	return nil
}
