// Package stats holds the aggregate queries behind the admin dashboard.
package stats

import (
	"context"

	"github.com/shopspring/decimal"
)

// Summary is the headline block of the admin dashboard.
type Summary struct {
	Users       int64
	Orders      int64
	TotalSales  decimal.Decimal
	ActiveUsers int64
}

// TopProduct is a product ranked by units sold across completed orders.
type TopProduct struct {
	ProductID int64
	Name      string
	Units     int64
}

// TopBuyer is a user ranked by completed order spend.
type TopBuyer struct {
	UserID    int64
	FirstName string
	Spent     decimal.Decimal
}

// TopReferrer is a user ranked by referral count.
type TopReferrer struct {
	UserID    int64
	FirstName string
	Referrals int
}

// Repository defines the aggregate queries.
type Repository interface {
	Summary(ctx context.Context) (*Summary, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	TopBuyers(ctx context.Context, limit int) ([]TopBuyer, error)
	TopReferrers(ctx context.Context, limit int) ([]TopReferrer, error)
}
