package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-bot/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (user_id, status, total, created_at)
		VALUES ($1, $2, $3, $4) RETURNING order_id`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity)
		VALUES ($1, $2, $3)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE product_id = $1 AND stock >= $2`

	createPaymentSQL = `INSERT INTO payments (order_id, payment_method, payment_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	cancelOrderSQL = `UPDATE orders SET status = 'cancelled' WHERE order_id = $1 AND status = 'pending'`

	rejectOrderPaymentsSQL = `UPDATE payments SET status = 'rejected' WHERE order_id = $1 AND status = 'pending'`

	restoreStockSQL = `UPDATE products SET stock = stock + oi.quantity
		FROM order_items oi
		WHERE oi.order_id = $1 AND products.product_id = oi.product_id`

	getOrderByIDSQL = `SELECT order_id, user_id, status, total, created_at
		FROM orders WHERE order_id = $1`

	listOrdersByUserSQL = `SELECT order_id, user_id, status, total, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`

	listPendingOrdersSQL = `SELECT o.order_id, o.user_id, o.status, o.total, o.created_at,
		p.payment_method, p.payment_code
		FROM orders o
		JOIN payments p ON p.order_id = o.order_id AND p.status = 'pending'
		WHERE o.status = 'pending'
		ORDER BY o.created_at LIMIT $1`

	getOrderItemsSQL = `SELECT oi.product_id, COALESCE(p.name, 'deleted product'), oi.quantity
		FROM order_items oi LEFT JOIN products p ON p.product_id = oi.product_id
		WHERE oi.order_id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE order_id = $1`

	findPaymentByCodeSQL = `SELECT id, order_id, payment_method, payment_code, status, created_at
		FROM payments WHERE payment_code = $1`

	updatePaymentStatusSQL = `UPDATE payments SET status = $2 WHERE id = $1`
)

// ErrNotFound indicates an order or payment lookup matched nothing.
var ErrNotFound = errors.New("order not found")

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithItems persists the order, its items, the stock decrements, and
// the initial payment row in one transaction. A line that cannot be covered
// by remaining stock fails the whole transaction with OutOfStockError.
func (r *OrderRepository) CreateWithItems(ctx context.Context, o *order.Order, p *order.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.QueryRow(ctx, createOrderSQL, o.UserID, o.Status, o.Total, o.CreatedAt).Scan(&o.ID); err != nil {
		return fmt.Errorf("creating order for user %d: %w", o.UserID, err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, createOrderItemSQL, o.ID, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("creating item %d of order %d: %w", it.ProductID, o.ID, err)
		}

		tag, err := tx.Exec(ctx, decrementStockSQL, it.ProductID, it.Quantity)
		if err != nil {
			return fmt.Errorf("decrementing stock of product %d: %w", it.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return &order.OutOfStockError{ProductID: it.ProductID}
		}
	}

	p.OrderID = o.ID
	if err := tx.QueryRow(ctx, createPaymentSQL, p.OrderID, p.Method, p.Code, p.Status, p.CreatedAt).Scan(&p.ID); err != nil {
		return fmt.Errorf("creating payment for order %d: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order transaction: %w", err)
	}
	return nil
}

// Cancel marks a pending order cancelled, rejects its pending payments,
// and restores the reserved stock, all in one transaction. Cancelling a
// non-pending order is a no-op.
func (r *OrderRepository) Cancel(ctx context.Context, orderID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning cancel transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, cancelOrderSQL, orderID)
	if err != nil {
		return fmt.Errorf("cancelling order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, rejectOrderPaymentsSQL, orderID); err != nil {
		return fmt.Errorf("rejecting payments of order %d: %w", orderID, err)
	}
	if _, err := tx.Exec(ctx, restoreStockSQL, orderID); err != nil {
		return fmt.Errorf("restoring stock of order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cancel transaction: %w", err)
	}
	return nil
}

// GetByID returns an order including its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's most recent orders without items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListPending returns unsettled orders with their pending payment, oldest
// first.
func (r *OrderRepository) ListPending(ctx context.Context, limit int) ([]order.PendingOrder, error) {
	rows, err := r.pool.Query(ctx, listPendingOrdersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.PendingOrder, error) {
		var po order.PendingOrder
		err := row.Scan(&po.ID, &po.UserID, &po.Status, &po.Total, &po.CreatedAt,
			&po.PaymentMethod, &po.PaymentCode)
		return po, err
	})
}

// UpdateStatus changes an order's status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating status of order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindPaymentByCode resolves a payment reference code.
func (r *OrderRepository) FindPaymentByCode(ctx context.Context, code string) (*order.Payment, error) {
	rows, err := r.pool.Query(ctx, findPaymentByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding payment %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding payment %q: %w", code, err)
	}
	return &p, nil
}

// UpdatePaymentStatus changes a payment's status.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, paymentID int64, status string) error {
	tag, err := r.pool.Exec(ctx, updatePaymentStatusSQL, paymentID, status)
	if err != nil {
		return fmt.Errorf("updating status of payment %d: %w", paymentID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ProductID, &it.Name, &it.Quantity)
	return it, err
}

func scanPayment(row pgx.CollectableRow) (order.Payment, error) {
	var p order.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Code, &p.Status, &p.CreatedAt)
	return p, err
}
