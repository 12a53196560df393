package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	key   []byte
	value []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, key, value []byte, _ ...kafkago.Header) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, key: key, value: value})
	return true
}

type testEnv struct {
	router *chi.Mux
	store  *orders.MemStore
	cache  *redisx.Cache
	redis  *miniredis.Miniredis
	pub    *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := orders.NewMemStore()
	return newTestEnvWith(t, mem, mem)
}

// newTestEnvWith serves handlers from store; mem is the store underneath it,
// used for seeding and assertions.
func newTestEnvWith(t *testing.T, mem *orders.MemStore, store orders.Store) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		router: NewRouter(),
		store:  mem,
		cache:  redisx.NewCache(rdb),
		redis:  mr,
		pub:    &fakePublisher{},
	}
	(&ProductsHandler{Store: store, Cache: env.cache, Publisher: env.pub, Service: "test"}).Register(env.router)
	(&OrdersHandler{
		Store:     store,
		Placer:    &orders.Placer{Tx: store},
		Cache:     env.cache,
		Publisher: env.pub,
		Service:   "test",
	}).Register(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, name, price string, stock int) orders.Product {
	t.Helper()
	p := orders.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, e.store.CreateProduct(context.Background(), &p))
	return p
}

func (e *testEnv) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := e.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func orderBody(items ...orders.ItemInput) map[string]any {
	return map[string]any{
		"items":            items,
		"customer_name":    "X",
		"customer_phone":   "1",
		"customer_address": "Y",
	}
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCreateOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)
	b := env.seed(t, "B", "5.00", 2)

	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(
		orders.ItemInput{ProductID: a.ID, Quantity: 2},
		orders.ItemInput{ProductID: b.ID, Quantity: 1},
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotZero(t, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, "25.00", got.TotalPrice)
	assert.Equal(t, "X", got.CustomerName)
	assert.Equal(t, "1", got.CustomerPhone)
	assert.Equal(t, "Y", got.CustomerAddress)
	assert.Equal(t, orders.StatusPending, got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "A", got.Items[0].Product.Name)
	assert.Equal(t, "10.00", got.Items[0].Product.Price)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, 3, got.Items[0].Product.Stock)

	assert.Equal(t, 3, env.stock(t, a.ID))
	assert.Equal(t, 1, env.stock(t, b.ID))

	require.Len(t, env.pub.msgs, 1)
	assert.Equal(t, orders.TopicOrderPlaced, env.pub.msgs[0].topic)
	var ev orders.Envelope
	require.NoError(t, json.Unmarshal(env.pub.msgs[0].value, &ev))
	assert.Equal(t, orders.EventOrderPlaced, ev.EventType)
	var payload orders.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, got.ID, payload.OrderID)
	assert.Equal(t, 3, payload.Items[0].RemainingStock)
}

func TestCreateOrder_InsufficientStockMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)
	b := env.seed(t, "B", "5.00", 2)

	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(
		orders.ItemInput{ProductID: a.ID, Quantity: 2},
		orders.ItemInput{ProductID: b.ID, Quantity: 5},
	))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Insufficient stock for B. Available: 2, Requested: 5", errorOf(t, rec))
	assert.Equal(t, 5, env.stock(t, a.ID))
	assert.Equal(t, 2, env.stock(t, b.ID))
	assert.Empty(t, env.pub.msgs)

	list := env.do(t, http.MethodGet, "/orders/", nil)
	assert.JSONEq(t, `[]`, list.Body.String())
}

func TestCreateOrder_ClientErrors(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)

	cases := []struct {
		name string
		body any
		want string
	}{
		{"unknown product", orderBody(orders.ItemInput{ProductID: 999, Quantity: 1}), "Product 999 does not exist"},
		{"empty items", orderBody(), "No items provided"},
		{"missing items", map[string]any{"customer_name": "X"}, "No items provided"},
		{"missing address", map[string]any{
			"items":          []orders.ItemInput{{ProductID: a.ID, Quantity: 1}},
			"customer_name":  "X",
			"customer_phone": "1",
		}, "Customer information is required (name, phone, address)"},
		{"zero quantity", orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 0}), "Invalid quantity for A: 0"},
		{"broken json", `{"items": [`, "invalid json"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/orders/create/", c.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, c.want, errorOf(t, rec))
		})
	}

	assert.Equal(t, 5, env.stock(t, a.ID))
	list, _ := env.store.ListOrders(context.Background())
	assert.Empty(t, list)
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)
	body := orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 2})

	first := env.do(t, http.MethodPost, "/orders/create/", body, HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(t, http.MethodPost, "/orders/create/", body, HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusOK, second.Code)

	var o1, o2 OrderResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &o1))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &o2))
	assert.Equal(t, o1.ID, o2.ID)
	assert.Equal(t, 3, env.stock(t, a.ID))
	assert.Len(t, env.pub.msgs, 1)
}

func TestCreateOrder_InvalidatesProductCache(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("/products/%d/", a.ID), nil).Code)
	assert.True(t, env.redis.Exists(fmt.Sprintf(redisx.KeyProduct, a.ID)))

	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 1}))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, env.redis.Exists(fmt.Sprintf(redisx.KeyProduct, a.ID)))

	var p ProductResponse
	require.NoError(t, json.Unmarshal(env.do(t, http.MethodGet, fmt.Sprintf("/products/%d/", a.ID), nil).Body.Bytes(), &p))
	assert.Equal(t, 4, p.Stock)
}

func TestProducts_CRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/products/create/", `{"name":"Monstera","description":"big leaves","price":"12.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "12.50", created.Price)
	assert.Equal(t, orders.DefaultStock, created.Stock)

	path := fmt.Sprintf("/products/%d/", created.ID)
	rec = env.do(t, http.MethodPatch, path, `{"stock": 7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var patched ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.Equal(t, 7, patched.Stock)
	assert.Equal(t, "Monstera", patched.Name)

	rec = env.do(t, http.MethodPut, path, `{"stock": 9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name, description and price are required", errorOf(t, rec))

	// PUT tanpa description ditolak, bukan diam-diam dipertahankan
	rec = env.do(t, http.MethodPut, path, `{"name":"Monstera Deliciosa","price":20,"stock":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name, description and price are required", errorOf(t, rec))

	rec = env.do(t, http.MethodPut, path, `{"name":"Monstera Deliciosa","description":"","price":20,"stock":9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var replaced ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replaced))
	assert.Equal(t, "", replaced.Description)

	rec = env.do(t, http.MethodGet, "/products/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Monstera Deliciosa", list[0].Name)
	assert.Equal(t, "20.00", list[0].Price)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/products/abc/", nil).Code)

	// created, updated x2, deleted
	assert.Len(t, env.pub.msgs, 4)
	for _, m := range env.pub.msgs {
		assert.Equal(t, orders.TopicProductChanged, m.topic)
	}
}

func TestProducts_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name, body, want string
	}{
		{"missing price", `{"name":"Fern","description":"d"}`, "name, description and price are required"},
		{"missing description", `{"name":"Fern","price":"1"}`, "name, description and price are required"},
		{"negative price", `{"name":"Fern","description":"d","price":"-1"}`, "price: must satisfy gte=0"},
		{"price above column limit", `{"name":"Fern","description":"d","price":"1000000"}`, "price: must satisfy lte=999999.99"},
		{"negative stock", `{"name":"Fern","description":"d","price":"1","stock":-2}`, "stock: must satisfy gte=0"},
		{"stock above integer", `{"name":"Fern","description":"d","price":"1","stock":2147483648}`, "stock: must satisfy lte=2147483647"},
		{"empty name", `{"name":"","description":"d","price":"1"}`, "name: must satisfy min=1"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/products/create/", c.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, c.want, errorOf(t, rec))
		})
	}

	rec := env.do(t, http.MethodPost, "/products/create/", `{"name":"Fern","description":"d","price":"999999.99"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	list, _ := env.store.ListProducts(context.Background())
	assert.Len(t, list, 1)
}

func TestProducts_DeleteWithOrderHistoryConflicts(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)
	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 1}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/products/%d/", a.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, orders.ErrProductInUse.Error(), errorOf(t, rec))
}

func TestProducts_LowStock(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 1)
	env.seed(t, "B", "5.00", 50)
	_, err := env.cache.ApplyLowStock(context.Background(), a.ID, a.Version, true)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/products/low-stock/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestOrders_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "A", "10.00", 5)
	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 1}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var o OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	path := fmt.Sprintf("/orders/%d/", o.ID)

	rec = env.do(t, http.MethodPatch, path, `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, orders.StatusCompleted, o.Status)
	assert.Equal(t, "10.00", o.TotalPrice)

	rec = env.do(t, http.MethodPatch, path, `{"status":"pending"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot change order status from completed to pending", errorOf(t, rec))

	rec = env.do(t, http.MethodPatch, path, `{"status":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `invalid status "shipped"`, errorOf(t, rec))

	rec = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
	// stock tidak dikembalikan saat order dihapus
	assert.Equal(t, 4, env.stock(t, a.ID))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// blockingStore returns the first GetProduct result only after release is
// closed, so a write can commit in between the read and the cache fill.
type blockingStore struct {
	*orders.MemStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *blockingStore) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	p, err := s.MemStore.GetProduct(ctx, id)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return p, err
}

func TestGetProduct_SlowReadDoesNotCacheStockOverPlacement(t *testing.T) {
	mem := orders.NewMemStore()
	bs := &blockingStore{MemStore: mem, read: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnvWith(t, mem, bs)
	a := env.seed(t, "A", "10.00", 5)
	path := fmt.Sprintf("/products/%d/", a.ID)

	slow := make(chan *httptest.ResponseRecorder, 1)
	go func() { slow <- env.do(t, http.MethodGet, path, nil) }()
	<-bs.read

	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 5}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	close(bs.release)

	var p ProductResponse
	require.NoError(t, json.Unmarshal((<-slow).Body.Bytes(), &p))
	assert.Equal(t, 5, p.Stock) // dibaca sebelum commit

	assert.Equal(t, 0, env.stock(t, a.ID))
	assert.False(t, env.redis.Exists(fmt.Sprintf(redisx.KeyProduct, a.ID)))
	require.NoError(t, json.Unmarshal(env.do(t, http.MethodGet, path, nil).Body.Bytes(), &p))
	assert.Equal(t, 0, p.Stock)
	// baca berikutnya dari cache, juga sudah 0
	require.NoError(t, json.Unmarshal(env.do(t, http.MethodGet, path, nil).Body.Bytes(), &p))
	assert.Equal(t, 0, p.Stock)
}

func TestCreateOrder_TotalAboveColumnLimit(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "Bonsai", "999999.99", 200)

	rec := env.do(t, http.MethodPost, "/orders/create/", orderBody(orders.ItemInput{ProductID: a.ID, Quantity: 101}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Order total 100999998.99 exceeds the maximum of 99999999.99", errorOf(t, rec))
	assert.Equal(t, 200, env.stock(t, a.ID))
}

func TestProducts_EventsCarryVersion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/products/create/", `{"name":"Fern","description":"d","price":"3"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	rec = env.do(t, http.MethodPatch, fmt.Sprintf("/products/%d/", created.ID), `{"stock":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.pub.msgs, 2)
	versions := make([]int64, 0, 2)
	for _, m := range env.pub.msgs {
		var ev orders.Envelope
		require.NoError(t, json.Unmarshal(m.value, &ev))
		var payload orders.ProductChangedPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		versions = append(versions, payload.Version)
	}
	assert.Equal(t, []int64{1, 2}, versions)
}
