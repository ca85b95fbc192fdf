package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-bot/internal/domain/stats"
)

const (
	statsSummarySQL = `SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM orders),
		(SELECT COALESCE(SUM(total), 0) FROM orders WHERE status = 'completed'),
		(SELECT COUNT(*) FROM users WHERE last_active >= now() - interval '7 days')`

	topProductsSQL = `SELECT oi.product_id, COALESCE(p.name, 'deleted product'), SUM(oi.quantity) AS units
		FROM order_items oi
		JOIN orders o ON o.order_id = oi.order_id AND o.status = 'completed'
		LEFT JOIN products p ON p.product_id = oi.product_id
		GROUP BY oi.product_id, p.name
		ORDER BY units DESC, oi.product_id
		LIMIT $1`

	topBuyersSQL = `SELECT u.user_id, u.first_name, SUM(o.total) AS spent
		FROM orders o
		JOIN users u ON u.user_id = o.user_id
		WHERE o.status = 'completed'
		GROUP BY u.user_id, u.first_name
		ORDER BY spent DESC, u.user_id
		LIMIT $1`

	topReferrersSQL = `SELECT user_id, first_name, referrals
		FROM users WHERE referrals > 0
		ORDER BY referrals DESC, user_id
		LIMIT $1`
)

var _ stats.Repository = (*StatsRepository)(nil)

// StatsRepository implements stats.Repository backed by PostgreSQL.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository returns a StatsRepository that uses the given pool.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// Summary returns the dashboard headline numbers in one round trip.
func (r *StatsRepository) Summary(ctx context.Context) (*stats.Summary, error) {
	var s stats.Summary
	err := r.pool.QueryRow(ctx, statsSummarySQL).Scan(&s.Users, &s.Orders, &s.TotalSales, &s.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("loading stats summary: %w", err)
	}
	return &s, nil
}

// TopProducts ranks products by units sold across completed orders.
func (r *StatsRepository) TopProducts(ctx context.Context, limit int) ([]stats.TopProduct, error) {
	rows, err := r.pool.Query(ctx, topProductsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.TopProduct, error) {
		var t stats.TopProduct
		err := row.Scan(&t.ProductID, &t.Name, &t.Units)
		return t, err
	})
}

// TopBuyers ranks users by completed order spend.
func (r *StatsRepository) TopBuyers(ctx context.Context, limit int) ([]stats.TopBuyer, error) {
	rows, err := r.pool.Query(ctx, topBuyersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top buyers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.TopBuyer, error) {
		var t stats.TopBuyer
		err := row.Scan(&t.UserID, &t.FirstName, &t.Spent)
		return t, err
	})
}

// TopReferrers ranks users by referral count.
func (r *StatsRepository) TopReferrers(ctx context.Context, limit int) ([]stats.TopReferrer, error) {
	rows, err := r.pool.Query(ctx, topReferrersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top referrers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.TopReferrer, error) {
		var t stats.TopReferrer
		err := row.Scan(&t.UserID, &t.FirstName, &t.Referrals)
		return t, err
	})
}
