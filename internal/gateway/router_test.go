package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/storage/memory"
)

type testEnv struct {
	server *httptest.Server
	store  *memory.Store
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	store.PutProduct(domain.Product{ID: 1, Name: "Widget", Price: decimal.RequireFromString("10.00"), StockQuantity: 5, IsActive: true})
	store.PutProduct(domain.Product{ID: 2, Name: "Gadget", Price: decimal.RequireFromString("5.00"), StockQuantity: 1, IsActive: true})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("session:tok-alice", "alice"))
	require.NoError(t, mr.Set("session:tok-bob", "bob"))

	svc, err := checkout.NewService(store, nil, logger)
	require.NoError(t, err)

	router := NewRouter(Dependencies{
		Checkout: checkout.NewHandler(svc, 5*time.Second, logger),
		Orders:   orders.NewHandler(orders.NewService(store), logger),
		Cart:     cart.NewHandler(store, logger),
		Sessions: auth.NewRedisResolver(client),
		Store:    store,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Logger: logger,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: store, redis: mr}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_Healthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/orders", "/api/v1/cart", "/api/v1/orders/stats"} {
		resp := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp = env.do(t, http.MethodGet, path, "tok-unknown", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRouter_CheckoutFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/v1/cart/items/1", "tok-alice", `{"quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPut, "/api/v1/cart/items/2", "tok-alice", `{"quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[map[string]any](t, resp)
	assert.Equal(t, "25.00", view["total"])

	resp = env.do(t, http.MethodPost, "/api/v1/checkout", "tok-alice", `{"shipping_address":"1 Main St"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	receipt := decode[map[string]any](t, resp)
	assert.Equal(t, "25.00", receipt["total"])
	assert.Equal(t, "pending", receipt["status"])
	orderID, _ := receipt["order_id"].(string)
	require.NotEmpty(t, orderID)

	p1, _ := env.store.Product(1)
	p2, _ := env.store.Product(2)
	assert.Equal(t, 3, p1.StockQuantity)
	assert.Equal(t, 0, p2.StockQuantity)

	resp = env.do(t, http.MethodGet, "/api/v1/cart", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cartView := decode[map[string]any](t, resp)
	assert.Empty(t, cartView["items"])

	resp = env.do(t, http.MethodGet, "/api/v1/orders", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[domain.OrderPage](t, resp)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, orderID, page.Orders[0].ID)

	resp = env.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	order := decode[domain.Order](t, resp)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("25.00")))
	assert.Len(t, order.Items, 2)

	resp = env.do(t, http.MethodGet, "/api/v1/orders/"+orderID, "tok-bob", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/orders/stats", "tok-alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[domain.OrderStats](t, resp)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.OrderStatusPending])
}

func TestRouter_CheckoutErrors(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/checkout", "tok-bob", `{"shipping_address":"2 Side St"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/cart/items/2", "tok-bob", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/checkout", "tok-bob", `{"shipping_address":"2 Side St"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "InsufficientStock", body["kind"])
	shortfalls, _ := body["shortfalls"].([]any)
	require.Len(t, shortfalls, 1)

	resp = env.do(t, http.MethodDelete, "/api/v1/cart/items/2", "tok-bob", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/checkout", "tok-bob", `{"shipping_address":"2 Side St"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body = decode[map[string]any](t, resp)
	assert.Equal(t, "EmptyCart", body["kind"])

	resp = env.do(t, http.MethodPost, "/api/v1/checkout", "tok-bob", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_SessionBackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.redis.Close()

	resp := env.do(t, http.MethodGet, "/api/v1/cart", "tok-alice", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
