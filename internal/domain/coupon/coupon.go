// Package coupon holds discount codes and their validation.
package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidCoupon is returned when a coupon code is unknown or disabled.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// Rule defines a percentage discount attached to a code.
type Rule struct {
	Code     string
	Discount decimal.Decimal
	Active   bool
}

// Apply subtracts the rule's percentage discount from the subtotal,
// rounded to cents and floored at zero.
func (r *Rule) Apply(subtotal decimal.Decimal) decimal.Decimal {
	discounted := subtotal.Sub(subtotal.Mul(r.Discount).Div(decimal.NewFromInt(100)))
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	return discounted.Round(2)
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	Upsert(ctx context.Context, rule *Rule) error
	UpsertBatch(ctx context.Context, rules []Rule) (int64, error)
	SetActive(ctx context.Context, code string, active bool) error
	Delete(ctx context.Context, code string) error
	ListCodes(ctx context.Context) ([]string, error)
}
