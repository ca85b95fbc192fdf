// Package catalog holds the sellable product inventory.
package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates a product lookup matched nothing.
var ErrNotFound = fmt.Errorf("product not found")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Product represents a sellable catalog entry.
type Product struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Stock       int
	Category    string
	Subcategory string
	Description string
	FileURL     string
}

// Update carries the mutable fields for an admin product edit. Nil fields
// are left unchanged.
type Update struct {
	Name        *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
	Subcategory *string
	Description *string
	FileURL     *string
}

// Sort orders for search results.
const (
	SortDefault   = ""
	SortPriceAsc  = "price"
	SortPriceDesc = "price_desc"
	SortName      = "name"
)

// SearchFilter narrows and orders a text search. Nil price bounds leave
// that side open.
type SearchFilter struct {
	PriceMin    *decimal.Decimal
	PriceMax    *decimal.Decimal
	InStockOnly bool
	Sort        string
}

// Repository defines persistence operations for the catalog.
type Repository interface {
	Create(ctx context.Context, p *Product) (int64, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	// GetByIDs fetches products in a single batch, keyed by ID. Missing IDs
	// are simply absent from the result.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]Product, error)
	List(ctx context.Context, category, subcategory string) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
	Subcategories(ctx context.Context, category string) ([]string, error)
	Search(ctx context.Context, query string, filter SearchFilter) ([]Product, error)
	Update(ctx context.Context, id int64, upd Update) error
	Delete(ctx context.Context, id int64) error
}
