package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/book-bazaar/internal/domain"
)

func TestRedisGetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis[[]domain.Book](db, "bazaar:")

	books := []domain.Book{{ID: 7, Topic: "fiction", Price: decimal.RequireFromString("9.99"), Quantity: 2}}
	payload, err := json.Marshal(books)
	require.NoError(t, err)
	mock.ExpectGet("bazaar:product:7").SetVal(string(payload))

	got, ok := c.Get(context.Background(), "product:7")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.True(t, got[0].Price.Equal(books[0].Price))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis[[]domain.Book](db, "bazaar:")

	mock.ExpectGet("bazaar:topic:all").RedisNil()
	_, ok := c.Get(context.Background(), "topic:all")
	assert.False(t, ok)

	mock.ExpectGet("bazaar:topic:all").SetErr(errors.New("connection reset"))
	_, ok = c.Get(context.Background(), "topic:all")
	assert.False(t, ok, "redis errors degrade to a miss")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSetAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis[[]domain.Book](db, "bazaar:")

	books := []domain.Book{{ID: 1, Topic: "poetry", Price: decimal.NewFromInt(5), Quantity: 1}}
	payload, err := json.Marshal(books)
	require.NoError(t, err)

	mock.ExpectSet("bazaar:topic:poetry", string(payload), 60*time.Second).SetVal("OK")
	mock.ExpectDel("bazaar:product:1", "bazaar:topic:all").SetVal(1)

	c.Set(context.Background(), "topic:poetry", books, 60*time.Second)
	c.Delete(context.Background(), "product:1", "topic:all")

	assert.NoError(t, mock.ExpectationsWereMet())
}
