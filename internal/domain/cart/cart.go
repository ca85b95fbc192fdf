// Package cart holds per-user shopping cart state.
package cart

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrEmpty indicates an operation that needs a non-empty cart.
var ErrEmpty = fmt.Errorf("cart is empty")

// Item is a cart line joined with its current catalog entry.
type Item struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal returns price multiplied by quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines persistence operations for carts.
type Repository interface {
	// Add inserts a line or increments the quantity of an existing one.
	Add(ctx context.Context, userID, productID int64, quantity int) error
	// Items returns the cart lines joined with current catalog prices.
	Items(ctx context.Context, userID int64) ([]Item, error)
	Remove(ctx context.Context, userID, productID int64) error
	Clear(ctx context.Context, userID int64) error
}

// Total sums the subtotals of all items at current catalog prices.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}

	return total
}
