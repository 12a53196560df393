package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Store     orders.Store
	Placer    *orders.Placer
	Cache     *redisx.Cache
	Publisher Publisher // nil = event dimatikan
	Service   string

	validate *validator.Validate
}

func (h *OrdersHandler) Register(r chi.Router) {
	h.validate = newValidator()
	r.Get("/orders/", h.listOrders)
	r.Post("/orders/create/", h.createOrder)
	r.Get("/orders/{id}/", h.getOrder)
	r.Put("/orders/{id}/", h.updateOrder)
	r.Patch("/orders/{id}/", h.updateOrder)
	r.Delete("/orders/{id}/", h.deleteOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis: key yang sama -> order yang sama, tanpa mutasi
	idemKey := ""
	if k := r.Header.Get(HeaderIdempotencyKey); k != "" {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, k)
		if o, ok := h.replay(ctx, idemKey); ok {
			writeJSON(w, http.StatusOK, toOrderResponse(o))
			return
		}
	}

	order, err := h.Placer.PlaceOrder(ctx, orders.PlaceOrderInput{
		Items:           req.Items,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
	})
	if err != nil {
		if ve, ok := orders.IsValidation(err); ok {
			slog.InfoContext(ctx, "order rejected", "reason", ve.Error())
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeStoreError(w, r, err)
		return
	}
	slog.InfoContext(ctx, "order placed", "order_id", order.ID, "items", len(order.Items), "total", order.TotalPrice.StringFixed(2))

	if idemKey != "" {
		if err := h.Cache.Set(ctx, idemKey, []byte(strconv.FormatInt(order.ID, 10)), redisx.TTLIdempotency); err != nil {
			slog.WarnContext(ctx, "store idempotency key", "order_id", order.ID, "error", err)
		}
	}
	h.afterPlacement(ctx, r, order)

	writeJSON(w, http.StatusCreated, toOrderResponse(*order))
}

func (h *OrdersHandler) replay(ctx context.Context, key string) (orders.Order, bool) {
	b, ok, err := h.Cache.Get(ctx, key)
	if err != nil || !ok {
		return orders.Order{}, false
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return orders.Order{}, false
	}
	o, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		// order sudah dihapus -> anggap key basi
		return orders.Order{}, false
	}
	return o, true
}

// afterPlacement: stok berubah -> buang cache product, lalu publish OrderPlaced.
func (h *OrdersHandler) afterPlacement(ctx context.Context, r *http.Request, order *orders.Order) {
	ids := make([]int64, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
	}
	if err := h.Cache.InvalidateProducts(ctx, ids...); err != nil {
		slog.WarnContext(ctx, "invalidate product cache", "order_id", order.ID, "error", err)
	}

	if h.Publisher == nil {
		return
	}
	ev := orders.NewEnvelope(orders.EventOrderPlaced, h.Service, middleware.GetReqID(r.Context()),
		fmt.Sprint(order.ID), kafkax.MustMarshal(orders.NewOrderPlacedPayload(order)))
	h.Publisher.Publish(orders.TopicOrderPlaced, orders.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Store.ListOrders(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req UpdateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", *req.Status))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Store.UpdateOrder(ctx, id, orders.OrderPatch{
		Status:          req.Status,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteOrder(ctx, id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
