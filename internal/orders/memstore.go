package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore is an in-process Store. One mutex guards everything; WithTx holds it
// for the whole callback and restores a snapshot when the callback fails, so
// placement stays all-or-nothing like the Postgres repo.
type MemStore struct {
	mu       sync.Mutex
	products map[int64]Product
	orders   map[int64]Order // tanpa Items
	items    map[int64]OrderItem
	nextID   struct{ product, order, item int64 }
	now      func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[int64]Product{},
		orders:   map[int64]Order{},
		items:    map[int64]OrderItem{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type memState struct {
	products map[int64]Product
	orders   map[int64]Order
	items    map[int64]OrderItem
	nextID   struct{ product, order, item int64 }
}

func (s *MemStore) snapshot() memState {
	st := memState{
		products: make(map[int64]Product, len(s.products)),
		orders:   make(map[int64]Order, len(s.orders)),
		items:    make(map[int64]OrderItem, len(s.items)),
		nextID:   s.nextID,
	}
	for k, v := range s.products {
		st.products[k] = v
	}
	for k, v := range s.orders {
		st.orders[k] = v
	}
	for k, v := range s.items {
		st.items[k] = v
	}
	return st
}

func (s *MemStore) restore(st memState) {
	s.products, s.orders, s.items, s.nextID = st.products, st.orders, st.items, st.nextID
}

func (s *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(ctx, memTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// memTx runs with s.mu already held.
type memTx struct{ s *MemStore }

func (t memTx) InsertOrder(_ context.Context, o *Order) error {
	t.s.nextID.order++
	o.ID = t.s.nextID.order
	o.CreatedAt = t.s.now()
	stored := *o
	stored.Items = nil
	t.s.orders[o.ID] = stored
	return nil
}

func (t memTx) LockProducts(_ context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	p, ok := t.s.products[productID]
	if !ok || p.Stock < qty {
		return ErrStockConflict
	}
	p.Stock -= qty
	p.Version++
	p.UpdatedAt = t.s.now()
	t.s.products[productID] = p
	return nil
}

func (t memTx) InsertOrderItem(_ context.Context, it *OrderItem) error {
	if _, ok := t.s.orders[it.OrderID]; !ok {
		return ErrNotFound
	}
	t.s.nextID.item++
	it.ID = t.s.nextID.item
	stored := *it
	stored.Product = Product{}
	t.s.items[it.ID] = stored
	return nil
}

func (t memTx) SetOrderTotal(_ context.Context, orderID int64, total decimal.Decimal) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.TotalPrice = total
	t.s.orders[orderID] = o
	return nil
}

func (s *MemStore) ListProducts(_ context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetProduct(_ context.Context, id int64) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (s *MemStore) GetProducts(_ context.Context, ids []int64) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) CreateProduct(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID.product++
	p.ID = s.nextID.product
	p.Version = 1
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = *p
	return nil
}

func (s *MemStore) UpdateProduct(_ context.Context, id int64, patch ProductPatch) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	patch.Apply(&p)
	p.Version++
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *MemStore) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	for _, it := range s.items {
		if it.ProductID == id {
			return ErrProductInUse
		}
	}
	delete(s.products, id)
	return nil
}

func (s *MemStore) ListOrders(_ context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, s.materialize(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetOrder(_ context.Context, id int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return s.materialize(o), nil
}

func (s *MemStore) UpdateOrder(_ context.Context, id int64, patch OrderPatch) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if err := patch.Apply(&o); err != nil {
		return Order{}, err
	}
	s.orders[id] = o
	return s.materialize(o), nil
}

func (s *MemStore) DeleteOrder(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	delete(s.orders, id)
	for k, it := range s.items {
		if it.OrderID == id {
			delete(s.items, k)
		}
	}
	return nil
}

// materialize attaches items (with live products) to o. Caller holds s.mu.
func (s *MemStore) materialize(o Order) Order {
	o.Items = []OrderItem{}
	for _, it := range s.items {
		if it.OrderID == o.ID {
			it.Product = s.products[it.ProductID]
			o.Items = append(o.Items, it)
		}
	}
	sort.Slice(o.Items, func(i, j int) bool { return o.Items[i].ID < o.Items[j].ID })
	return o
}
