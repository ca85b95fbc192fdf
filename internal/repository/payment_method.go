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
	createPaymentMethodSQL = `INSERT INTO payment_methods (name, details)
		VALUES ($1, $2) RETURNING id`

	listPaymentMethodsSQL = `SELECT id, name, details FROM payment_methods ORDER BY id`

	getPaymentMethodSQL = `SELECT id, name, details FROM payment_methods WHERE id = $1`

	deletePaymentMethodSQL = `DELETE FROM payment_methods WHERE id = $1`
)

var _ order.MethodRepository = (*PaymentMethodRepository)(nil)

// PaymentMethodRepository implements order.MethodRepository backed by PostgreSQL.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentMethodRepository returns a PaymentMethodRepository that uses the given pool.
func NewPaymentMethodRepository(pool *pgxpool.Pool) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool}
}

// Create inserts a payment method and returns its generated ID.
func (r *PaymentMethodRepository) Create(ctx context.Context, m *order.Method) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, createPaymentMethodSQL, m.Name, m.Details).Scan(&id); err != nil {
		return 0, fmt.Errorf("creating payment method %q: %w", m.Name, err)
	}
	return id, nil
}

// List returns all configured payment methods.
func (r *PaymentMethodRepository) List(ctx context.Context) ([]order.Method, error) {
	rows, err := r.pool.Query(ctx, listPaymentMethodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing payment methods: %w", err)
	}
	return pgx.CollectRows(rows, scanPaymentMethod)
}

// GetByID returns a single payment method by its identifier.
func (r *PaymentMethodRepository) GetByID(ctx context.Context, id int64) (*order.Method, error) {
	rows, err := r.pool.Query(ctx, getPaymentMethodSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting payment method %d: %w", id, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanPaymentMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting payment method %d: %w", id, err)
	}
	return &m, nil
}

// Delete removes a payment method.
func (r *PaymentMethodRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deletePaymentMethodSQL, id)
	if err != nil {
		return fmt.Errorf("deleting payment method %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPaymentMethod(row pgx.CollectableRow) (order.Method, error) {
	var m order.Method
	err := row.Scan(&m.ID, &m.Name, &m.Details)
	return m, err
}
