package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrProductInUse = errors.New("product has order history")
	// ErrStockConflict means a guarded decrement touched no row even though the
	// locked read said there was enough stock.
	ErrStockConflict = errors.New("stock changed concurrently")
)

// ValidationError is a client-caused failure of order placement. Nothing is
// persisted when one is returned.
type ValidationError interface {
	error
	validation()
}

type validationErr string

func (e validationErr) Error() string { return string(e) }
func (validationErr) validation()     {}

var (
	ErrNoItems              ValidationError = validationErr("No items provided")
	ErrCustomerInfoRequired ValidationError = validationErr("Customer information is required (name, phone, address)")
)

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product %d does not exist", e.ProductID)
}
func (*ProductNotFoundError) validation() {}

type InvalidQuantityError struct {
	ProductName string
	Quantity    int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("Invalid quantity for %s: %d", e.ProductName, e.Quantity)
}
func (*InvalidQuantityError) validation() {}

type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", e.ProductName, e.Available, e.Requested)
}
func (*InsufficientStockError) validation() {}

type OrderTotalTooLargeError struct {
	Total decimal.Decimal
}

func (e *OrderTotalTooLargeError) Error() string {
	return fmt.Sprintf("Order total %s exceeds the maximum of %s", e.Total.StringFixed(2), MaxOrderTotal.StringFixed(2))
}
func (*OrderTotalTooLargeError) validation() {}

type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// IsValidation unwraps err looking for a ValidationError.
func IsValidation(err error) (ValidationError, bool) {
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
