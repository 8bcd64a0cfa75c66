package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/domain"
)

// Redis shares cached reads between front instances. Values are stored as
// JSON under prefix+key. Redis failures degrade to cache misses.
type Redis[V any] struct {
	client *redis.Client
	prefix string
}

func NewRedis[V any](client *redis.Client, prefix string) *Redis[V] {
	return &Redis[V]{client: client, prefix: prefix}
}

func (c *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var v V
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return v, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache get")
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache decode")
		return v, false
	}
	return v, true
}

func (c *Redis[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache encode")
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, string(payload), ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis cache set")
	}
}

func (c *Redis[V]) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("redis cache delete")
	}
}

var _ domain.Cache[[]domain.Book] = (*Redis[[]domain.Book])(nil)
