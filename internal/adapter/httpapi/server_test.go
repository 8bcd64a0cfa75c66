package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/book-bazaar/internal/adapter/cache"
	"github.com/example/book-bazaar/internal/adapter/memstore"
	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
	"github.com/example/book-bazaar/internal/usecase"
)

type testEnv struct {
	srv        *Server
	cat1, cat2 *memstore.Catalog
	ord1, ord2 *memstore.Orders
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	books := []domain.Book{
		{ID: 1, Topic: "distributed systems", Price: decimal.RequireFromString("45.5"), Quantity: 3},
		{ID: 7, Topic: "fiction", Price: decimal.RequireFromString("9.99"), Quantity: 2},
		{ID: 9, Topic: "poetry", Price: decimal.RequireFromString("4"), Quantity: 0},
	}
	env := &testEnv{
		cat1: memstore.NewCatalog("http-catalog1", books...),
		cat2: memstore.NewCatalog("http-catalog2", books...),
		ord1: memstore.NewOrders("http-orders1"),
		ord2: memstore.NewOrders("http-orders2"),
	}
	catalog, err := replica.NewSet[domain.CatalogConn]("catalog", env.cat1, env.cat2)
	require.NoError(t, err)
	orders, err := replica.NewSet[domain.OrderConn]("order", env.ord1, env.ord2)
	require.NoError(t, err)

	c := cache.NewMemory[[]domain.Book](100, time.Minute)
	inv := usecase.NewInvalidator(c)
	locks := kmutex.New()
	env.srv = NewServer(
		&usecase.QueryService{Catalog: catalog, Cache: c, Invalidator: inv, TTL: time.Minute},
		usecase.PurchaseBook{Catalog: catalog, Orders: orders, Invalidator: inv, Locks: locks},
		usecase.ModifyBook{Catalog: catalog, Invalidator: inv, Locks: locks},
	)
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	env.srv.Router.ServeHTTP(rr, req)
	return rr
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	return m
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/product/7", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var b domain.Book
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, "fiction", b.Topic)
	assert.True(t, b.Price.Equal(decimal.RequireFromString("9.99")))
}

func TestGetProductErrors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/product/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodGet, "/product/404", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Product not found", decodeMessage(t, rr)["message"])

	env.cat1.SetDown(true)
	env.cat2.SetDown(true)
	rr = env.do(http.MethodGet, "/product/1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetProductsByTopic(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/products/ALL", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var books []domain.Book
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &books))
	assert.Len(t, books, 3)

	rr = env.do(http.MethodGet, "/products/cooking", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, map[string]any{"message": "No products found"}, decodeMessage(t, rr))
}

func TestPurchase(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/purchase/7/", "/purchase/7"} {
		rr := env.do(http.MethodPut, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, map[string]any{"message": "Product purchased successfully", "success": true}, decodeMessage(t, rr))
	}

	rr := env.do(http.MethodPut, "/purchase/7", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]any{"message": "Product out of stock", "success": false}, decodeMessage(t, rr))

	rr = env.do(http.MethodPut, "/purchase/404", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, decodeMessage(t, rr)["success"])

	assert.Equal(t, 2, env.ord1.CountFor(7))
	assert.Equal(t, 2, env.ord2.CountFor(7))
}

func TestPurchaseReportsDegradedOrderReplicas(t *testing.T) {
	env := newTestEnv(t)
	env.ord2.SetDown(true)

	rr := env.do(http.MethodPut, "/purchase/1/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "mem://http-orders2", rr.Header().Get("X-Degraded-Replicas"))
}

func TestPurchaseMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/purchase/7", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestModify(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/product/9", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPut, "/modify/9", `{"price":"6.25","quantity":5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var b domain.Book
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.Equal(t, 5, b.Quantity)
	assert.True(t, b.Price.Equal(decimal.RequireFromString("6.25")))

	rr = env.do(http.MethodGet, "/product/9", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.Equal(t, 5, b.Quantity, "cached product was invalidated")
}

func TestModifyErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name, path, body string
		status           int
	}{
		{"bad json", "/modify/9", `{`, http.StatusBadRequest},
		{"no fields", "/modify/9", `{}`, http.StatusBadRequest},
		{"negative quantity", "/modify/9", `{"quantity":-1}`, http.StatusBadRequest},
		{"unknown book", "/modify/404", `{"quantity":1}`, http.StatusNotFound},
		{"bad id", "/modify/x", `{"quantity":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)
	defer func() { log.Logger = prev }()

	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/product/7", "")
	require.Equal(t, http.StatusOK, rr.Code)
	reqID := rr.Header().Get("X-Request-Id")
	assert.NotEmpty(t, reqID)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &line), buf.String())
	assert.Equal(t, "request", line["message"])
	assert.Equal(t, http.MethodGet, line["method"])
	assert.Equal(t, "/product/7", line["url"])
	assert.EqualValues(t, http.StatusOK, line["status"])
	assert.Equal(t, reqID, line["req_id"])
}

func TestBadIDMessages(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/product/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]any{"message": "Product ID must be numeric"}, decodeMessage(t, rr))

	rr = env.do(http.MethodPut, "/purchase/abc/", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]any{"message": "Book ID must be a numeric value", "success": false}, decodeMessage(t, rr))

	rr = env.do(http.MethodPut, "/modify/7", `{"quantity":-3}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "quantity must not be negative", decodeMessage(t, rr)["message"])
}
