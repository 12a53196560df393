package httpx

import (
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type ProductResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"` // fixed 2 desimal, e.g. "10.00"
	Stock       int    `json:"stock"`
}

// ProductRequest is shared by create, PUT and PATCH. Create and PUT require
// name and price.
type ProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0,lte=2147483647"`
}

func (r ProductRequest) patch() orders.ProductPatch {
	return orders.ProductPatch{Name: r.Name, Description: r.Description, Price: r.Price, Stock: r.Stock}
}

type CreateOrderReq struct {
	Items           []orders.ItemInput `json:"items"`
	CustomerName    string             `json:"customer_name"`
	CustomerPhone   string             `json:"customer_phone"`
	CustomerAddress string             `json:"customer_address"`
}

type UpdateOrderReq struct {
	Status          *orders.Status `json:"status"`
	CustomerName    *string        `json:"customer_name" validate:"omitempty,min=1"`
	CustomerPhone   *string        `json:"customer_phone" validate:"omitempty,min=1"`
	CustomerAddress *string        `json:"customer_address" validate:"omitempty,min=1"`
}

type OrderItemResponse struct {
	Product  ProductResponse `json:"product"`
	Quantity int             `json:"quantity"`
}

type OrderResponse struct {
	ID              int64               `json:"id"`
	CreatedAt       time.Time           `json:"created_at"`
	TotalPrice      string              `json:"total_price"`
	CustomerName    string              `json:"customer_name"`
	CustomerPhone   string              `json:"customer_phone"`
	CustomerAddress string              `json:"customer_address"`
	Status          orders.Status       `json:"status"`
	Items           []OrderItemResponse `json:"items"`
}

func toProductResponse(p orders.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
	}
}

func toProductResponses(ps []orders.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResponse(p))
	}
	return out
}

func toOrderResponse(o orders.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{Product: toProductResponse(it.Product), Quantity: it.Quantity})
	}
	return OrderResponse{
		ID:              o.ID,
		CreatedAt:       o.CreatedAt,
		TotalPrice:      o.TotalPrice.StringFixed(2),
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		CustomerAddress: o.CustomerAddress,
		Status:          o.Status,
		Items:           items,
	}
}
