package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type PlaceOrderInput struct {
	Items           []ItemInput
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
}

// Placer runs the order placement workflow on top of a TxRunner.
type Placer struct {
	Tx TxRunner
}

// PlaceOrder validates the request, reserves stock and persists the order with
// its items in one transaction. On any error nothing is persisted: the
// provisional order, its items and every stock decrement roll back together.
func (p *Placer) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}
	name := strings.TrimSpace(in.CustomerName)
	phone := strings.TrimSpace(in.CustomerPhone)
	addr := strings.TrimSpace(in.CustomerAddress)
	if name == "" || phone == "" || addr == "" {
		return nil, ErrCustomerInfoRequired
	}

	var placed *Order
	err := p.Tx.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		order := &Order{
			TotalPrice:      decimal.Zero,
			CustomerName:    name,
			CustomerPhone:   phone,
			CustomerAddress: addr,
			Status:          StatusPending,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		// lock semua product sekaligus, urut id, supaya dua order yang overlap
		// antre di lock yang sama (tidak deadlock)
		locked, err := tx.LockProducts(ctx, distinctSorted(in.Items))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		total := decimal.Zero
		order.Items = make([]OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			product, ok := locked[it.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: it.ProductID}
			}
			if it.Quantity <= 0 {
				return &InvalidQuantityError{ProductName: product.Name, Quantity: it.Quantity}
			}
			if product.Stock < it.Quantity {
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Stock,
					Requested:   it.Quantity,
				}
			}

			if err := tx.DecrementStock(ctx, product.ID, it.Quantity); err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", product.ID, err)
			}
			product.Stock -= it.Quantity
			product.Version++
			locked[product.ID] = product

			item := OrderItem{
				OrderID:     order.ID,
				ProductID:   product.ID,
				Quantity:    it.Quantity,
				UnitPrice:   product.Price,
				ProductName: product.Name,
			}
			if err := tx.InsertOrderItem(ctx, &item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			order.Items = append(order.Items, item)
			total = total.Add(item.Subtotal())
			if total.GreaterThan(MaxOrderTotal) {
				return &OrderTotalTooLargeError{Total: total}
			}
		}

		if err := tx.SetOrderTotal(ctx, order.ID, total); err != nil {
			return fmt.Errorf("set order total: %w", err)
		}
		order.TotalPrice = total

		// product di response = state setelah dikurangi
		for i := range order.Items {
			order.Items[i].Product = locked[order.Items[i].ProductID]
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func distinctSorted(items []ItemInput) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
