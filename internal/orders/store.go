package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// Tx is the set of writes the placement workflow performs inside a single
// transaction. Implementations must hold row locks (or an equivalent) on every
// product returned by LockProducts until the transaction ends.
type Tx interface {
	InsertOrder(ctx context.Context, o *Order) error
	// LockProducts returns the existing products among ids, keyed by id.
	// Missing ids are simply absent from the map.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	InsertOrderItem(ctx context.Context, it *OrderItem) error
	SetOrderTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
}

// TxRunner runs fn in one transaction: commit if fn returns nil, rollback
// otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the catalog + order persistence used by the admin surface.
type Store interface {
	TxRunner

	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProducts(ctx context.Context, ids []int64) ([]Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListOrders(ctx context.Context) ([]Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}
