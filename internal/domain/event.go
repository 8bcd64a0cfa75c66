package domain

import (
	"time"

	"github.com/google/uuid"
)

// CatalogEventKind names the write that produced a CatalogEvent.
type CatalogEventKind string

const (
	EventPurchased CatalogEventKind = "purchased"
	EventModified  CatalogEventKind = "modified"
)

// CatalogEvent tells every front instance which cached entries went stale.
type CatalogEvent struct {
	ID     string           `json:"id"`
	Kind   CatalogEventKind `json:"kind"`
	BookID int64            `json:"book_id"`
	Topic  string           `json:"topic"`
	At     time.Time        `json:"at"`
}

func NewCatalogEvent(kind CatalogEventKind, b Book, at time.Time) CatalogEvent {
	return CatalogEvent{
		ID:     uuid.NewString(),
		Kind:   kind,
		BookID: b.ID,
		Topic:  b.Topic,
		At:     at,
	}
}
