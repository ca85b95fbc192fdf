package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-bot/internal/domain/cart"
)

const (
	addToCartSQL = `INSERT INTO cart (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity`

	cartItemsSQL = `SELECT c.product_id, p.name, p.price, c.quantity
		FROM cart c JOIN products p ON p.product_id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id`

	removeFromCartSQL = `DELETE FROM cart WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Add inserts a cart line or increments the quantity of an existing one.
func (r *CartRepository) Add(ctx context.Context, userID, productID int64, quantity int) error {
	_, err := r.pool.Exec(ctx, addToCartSQL, userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("adding product %d to cart of user %d: %w", productID, userID, err)
	}
	return nil
}

// Items returns the cart lines joined with current catalog prices.
// Lines whose product was deleted drop out of the join.
func (r *CartRepository) Items(ctx context.Context, userID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, cartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("loading cart of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// Remove deletes a single line from the cart.
func (r *CartRepository) Remove(ctx context.Context, userID, productID int64) error {
	_, err := r.pool.Exec(ctx, removeFromCartSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("removing product %d from cart of user %d: %w", productID, userID, err)
	}
	return nil
}

// Clear deletes every line of the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return fmt.Errorf("clearing cart of user %d: %w", userID, err)
	}
	return nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity)
	return it, err
}
