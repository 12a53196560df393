package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
)

type ProductsHandler struct {
	Store     orders.Store
	Cache     *redisx.Cache
	Publisher Publisher // nil = event dimatikan
	Service   string

	validate *validator.Validate
}

func (h *ProductsHandler) Register(r chi.Router) {
	h.validate = newValidator()
	r.Get("/products/", h.listProducts)
	r.Post("/products/create/", h.createProduct)
	r.Get("/products/low-stock/", h.lowStock)
	r.Get("/products/{id}/", h.getProduct)
	r.Put("/products/{id}/", h.replaceProduct)
	r.Patch("/products/{id}/", h.patchProduct)
	r.Delete("/products/{id}/", h.deleteProduct)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if b, ok, err := h.Cache.Get(ctx, redisx.KeyProductList); err == nil && ok {
		writeRaw(w, http.StatusOK, b)
		return
	}

	// 2) fallback DB; generasi diambil sebelum baca DB
	gen, genErr := h.Cache.Generation(ctx, redisx.KeyProductList)
	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	b, _ := json.Marshal(toProductResponses(ps))
	h.fill(ctx, redisx.KeyProductList, gen, genErr, b)
	writeRaw(w, http.StatusOK, b)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyProduct, id)
	if b, hit, err := h.Cache.Get(ctx, key); err == nil && hit {
		writeRaw(w, http.StatusOK, b)
		return
	}

	gen, genErr := h.Cache.Generation(ctx, key)
	p, err := h.Store.GetProduct(ctx, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	b, _ := json.Marshal(toProductResponse(p))
	h.fill(ctx, key, gen, genErr, b)
	writeRaw(w, http.StatusOK, b)
}

// fill puts a read-through result in the cache unless a write invalidated key
// after gen was read. Without a generation nothing is cached.
func (h *ProductsHandler) fill(ctx context.Context, key, gen string, genErr error, b []byte) {
	if genErr != nil {
		slog.WarnContext(ctx, "cache generation", "key", key, "error", genErr)
		return
	}
	if _, err := h.Cache.SetIfGeneration(ctx, key, gen, b, redisx.TTLProduct); err != nil {
		slog.WarnContext(ctx, "cache fill", "key", key, "error", err)
	}
}

func (h *ProductsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ids, err := h.Cache.LowStockIDs(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, []ProductResponse{})
		return
	}
	ps, err := h.Store.GetProducts(ctx, ids)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(ps))
}

// decodeProduct reads and validates the body; full=true (create, PUT) requires
// name, description and price.
func (h *ProductsHandler) decodeProduct(w http.ResponseWriter, r *http.Request, full bool) (ProductRequest, bool) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if full && (req.Name == nil || req.Description == nil || req.Price == nil) {
		writeError(w, http.StatusBadRequest, "name, description and price are required")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return req, false
	}
	if req.Price != nil && req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price: must satisfy gte=0")
		return req, false
	}
	if req.Price != nil && req.Price.Round(2).GreaterThan(orders.MaxPrice) {
		writeError(w, http.StatusBadRequest, "price: must satisfy lte="+orders.MaxPrice.StringFixed(2))
		return req, false
	}
	return req, true
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProduct(w, r, true)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p := orders.Product{Stock: orders.DefaultStock}
	req.patch().Apply(&p)
	if err := h.Store.CreateProduct(ctx, &p); err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.afterProductWrite(ctx, r, orders.ProductCreated, p)
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *ProductsHandler) replaceProduct(w http.ResponseWriter, r *http.Request) {
	h.updateProduct(w, r, true)
}

func (h *ProductsHandler) patchProduct(w http.ResponseWriter, r *http.Request) {
	h.updateProduct(w, r, false)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request, full bool) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	req, ok := h.decodeProduct(w, r, full)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Store.UpdateProduct(ctx, id, req.patch())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.afterProductWrite(ctx, r, orders.ProductUpdated, p)
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *ProductsHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteProduct(ctx, id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	h.afterProductWrite(ctx, r, orders.ProductDeleted, orders.Product{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// afterProductWrite: invalidate cache + publish ProductChanged. Gagal di sini
// cuma di-log, DB tetap jadi kebenaran.
func (h *ProductsHandler) afterProductWrite(ctx context.Context, r *http.Request, change string, p orders.Product) {
	if err := h.Cache.InvalidateProducts(ctx, p.ID); err != nil {
		slog.WarnContext(ctx, "invalidate product cache", "product_id", p.ID, "error", err)
	}
	if h.Publisher == nil {
		return
	}
	payload := orders.ProductChangedPayload{ProductID: p.ID, Change: change, Stock: p.Stock, Version: p.Version}
	ev := orders.NewEnvelope(orders.EventProductChanged, h.Service, middleware.GetReqID(r.Context()),
		fmt.Sprint(p.ID), kafkax.MustMarshal(payload))
	h.Publisher.Publish(orders.TopicProductChanged, orders.PartitionKey(p.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventProductChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
