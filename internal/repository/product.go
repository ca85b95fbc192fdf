package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-bot/internal/domain/catalog"
)

const (
	productColumns = `product_id, name, price, stock, category, subcategory, description, file_url`

	createProductSQL = `INSERT INTO products (name, price, stock, category, subcategory, description, file_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING product_id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE product_id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE product_id = ANY($1)`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE ($1 = '' OR category = $1) AND ($2 = '' OR subcategory = $2)
		ORDER BY product_id`

	listCategoriesSQL = `SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`

	listSubcategoriesSQL = `SELECT DISTINCT subcategory FROM products
		WHERE category = $1 AND subcategory <> '' ORDER BY subcategory`

	searchProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE (name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		AND ($2::numeric IS NULL OR price >= $2)
		AND ($3::numeric IS NULL OR price <= $3)
		AND (NOT $4 OR stock > 0)`

	updateProductSQL = `UPDATE products SET
		name = COALESCE($2, name),
		price = COALESCE($3, price),
		stock = COALESCE($4, stock),
		category = COALESCE($5, category),
		subcategory = COALESCE($6, subcategory),
		description = COALESCE($7, description),
		file_url = COALESCE($8, file_url)
		WHERE product_id = $1`

	deleteProductSQL = `DELETE FROM products WHERE product_id = $1`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts a product and returns its generated ID.
func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, createProductSQL,
		p.Name, p.Price, p.Stock, p.Category, p.Subcategory, p.Description, p.FileURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return id, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs, keyed by ID.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}

	byID := make(map[int64]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// List returns products filtered by category and subcategory. Empty filters
// match everything.
func (r *ProductRepository) List(ctx context.Context, category, subcategory string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, category, subcategory)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Categories returns the distinct non-empty categories.
func (r *ProductRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Subcategories returns the distinct non-empty subcategories of a category.
func (r *ProductRepository) Subcategories(ctx context.Context, category string) ([]string, error) {
	rows, err := r.pool.Query(ctx, listSubcategoriesSQL, category)
	if err != nil {
		return nil, fmt.Errorf("listing subcategories of %q: %w", category, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Search returns products whose name or description contains the query,
// narrowed and ordered by the filter.
func (r *ProductRepository) Search(ctx context.Context, query string, filter catalog.SearchFilter) ([]catalog.Product, error) {
	sql := searchProductsSQL + searchOrderClause(filter.Sort)
	rows, err := r.pool.Query(ctx, sql, query, filter.PriceMin, filter.PriceMax, filter.InStockOnly)
	if err != nil {
		return nil, fmt.Errorf("searching products for %q: %w", query, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func searchOrderClause(sort string) string {
	switch sort {
	case catalog.SortPriceAsc:
		return ` ORDER BY price ASC, product_id`
	case catalog.SortPriceDesc:
		return ` ORDER BY price DESC, product_id`
	case catalog.SortName:
		return ` ORDER BY name ASC, product_id`
	default:
		return ` ORDER BY product_id`
	}
}

// Update applies the non-nil fields of upd to the product.
func (r *ProductRepository) Update(ctx context.Context, id int64, upd catalog.Update) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		id, upd.Name, upd.Price, upd.Stock, upd.Category, upd.Subcategory, upd.Description, upd.FileURL,
	)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Delete removes a product from the catalog.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.Subcategory, &p.Description, &p.FileURL,
	)
	return p, err
}
