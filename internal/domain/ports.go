package domain

import (
	"context"
	"time"
)

// CatalogConn is a worker-owned connection to one catalog replica.
type CatalogConn interface {
	// FindByID returns ErrNotFound when the replica has no such book.
	FindByID(ctx context.Context, id int64) (Book, error)
	// FindByTopic returns books ordered by id; an empty result is not an error.
	FindByTopic(ctx context.Context, topic string) ([]Book, error)
	// DecrementStock takes exactly one unit in a single replica transaction.
	// It returns ErrNotFound or ErrOutOfStock without writing anything.
	DecrementStock(ctx context.Context, id int64) (Book, error)
	UpdateBook(ctx context.Context, id int64, u BookUpdate) (Book, error)
	UpsertBook(ctx context.Context, b Book) error
	Close() error
}

// OrderConn is a worker-owned connection to one order replica.
type OrderConn interface {
	InsertOrder(ctx context.Context, o Order) error
	Close() error
}

// Cache is the read-result cache shared by the whole process.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, v V, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// EventPublisher announces committed catalog writes.
type EventPublisher interface {
	Publish(ctx context.Context, ev CatalogEvent) error
}

// MessageSubscriber delivers raw catalog events; ack and redelivery belong to the adapter.
type MessageSubscriber interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error
}
