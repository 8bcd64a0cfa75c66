package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/domain"
)

// DefaultCacheTTL is how long a product or listing read stays cached.
const DefaultCacheTTL = 60 * time.Second

// ProductKey is the cache key of a single-book read.
func ProductKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// TopicKey is the cache key of a listing. Topic matching ignores case, so
// queries differing only in case share one entry.
func TopicKey(topic string) string {
	return "topic:" + domain.NormalizeTopic(topic)
}

// Invalidator drops the cache entries a catalog write made stale. It
// remembers which listings this process cached, since a changed book can
// appear under any topic query that is a substring of its topic.
type Invalidator struct {
	Cache domain.Cache[[]domain.Book]

	mu     sync.Mutex
	topics map[string]struct{}
}

func NewInvalidator(cache domain.Cache[[]domain.Book]) *Invalidator {
	return &Invalidator{Cache: cache, topics: make(map[string]struct{})}
}

// RememberTopic records that a listing for topic was cached.
func (inv *Invalidator) RememberTopic(topic string) {
	inv.mu.Lock()
	inv.topics[domain.NormalizeTopic(topic)] = struct{}{}
	inv.mu.Unlock()
}

// StaleKeys returns the keys that may hold b: its product entry, the "all"
// listing, its own topic, and every remembered listing whose query matches.
func (inv *Invalidator) StaleKeys(bookID int64, topic string) []string {
	b := domain.Book{ID: bookID, Topic: topic}
	keys := []string{ProductKey(bookID), TopicKey(domain.TopicAll)}
	if own := TopicKey(topic); own != TopicKey(domain.TopicAll) {
		keys = append(keys, own)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	for q := range inv.topics {
		if !b.MatchesTopic(q) {
			continue
		}
		delete(inv.topics, q)
		k := TopicKey(q)
		if k != TopicKey(domain.TopicAll) && k != TopicKey(topic) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Invalidate deletes every entry that may hold the book.
func (inv *Invalidator) Invalidate(ctx context.Context, bookID int64, topic string) {
	keys := inv.StaleKeys(bookID, topic)
	inv.Cache.Delete(ctx, keys...)
	log.Debug().Int64("book_id", bookID).Strs("keys", keys).Msg("cache invalidated")
}
