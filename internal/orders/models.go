package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultStock = 30

// Column limits: products.price NUMERIC(8,2), orders.total_price NUMERIC(10,2),
// products.stock INTEGER.
var (
	MaxPrice      = decimal.RequireFromString("999999.99")
	MaxOrderTotal = decimal.RequireFromString("99999999.99")
)

const MaxStock = 1<<31 - 1

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	// Version naik 1 setiap kali row berubah (termasuk pengurangan stok).
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID              int64
	CreatedAt       time.Time
	TotalPrice      decimal.Decimal
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Status          Status // lihat status.go
	Items           []OrderItem
}

// OrderItem keeps a snapshot of the product name and price at placement time;
// Product holds the live catalog row.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	Quantity    int
	UnitPrice   decimal.Decimal
	ProductName string
	Product     Product
}

// Subtotal = unit price x quantity.
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ProductPatch carries optional admin edits; nil fields are left untouched.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
}

func (p ProductPatch) Apply(dst *Product) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Description != nil {
		dst.Description = *p.Description
	}
	if p.Price != nil {
		dst.Price = p.Price.Round(2)
	}
	if p.Stock != nil {
		dst.Stock = *p.Stock
	}
}

type OrderPatch struct {
	Status          *Status
	CustomerName    *string
	CustomerPhone   *string
	CustomerAddress *string
}

func (p OrderPatch) Apply(dst *Order) error {
	if p.Status != nil {
		if !CanTransition(dst.Status, *p.Status) {
			return &TransitionError{From: dst.Status, To: *p.Status}
		}
		dst.Status = *p.Status
	}
	if p.CustomerName != nil {
		dst.CustomerName = *p.CustomerName
	}
	if p.CustomerPhone != nil {
		dst.CustomerPhone = *p.CustomerPhone
	}
	if p.CustomerAddress != nil {
		dst.CustomerAddress = *p.CustomerAddress
	}
	return nil
}
