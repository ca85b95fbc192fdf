package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-bot/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount, is_active FROM coupons WHERE UPPER(code) = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (code, discount, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET discount = EXCLUDED.discount, is_active = EXCLUDED.is_active`

	setCouponActiveSQL = `UPDATE coupons SET is_active = $2 WHERE UPPER(code) = UPPER($1)`

	deleteCouponSQL = `DELETE FROM coupons WHERE UPPER(code) = UPPER($1)`

	listCouponCodesSQL = `SELECT code FROM coupons`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// Upsert inserts the rule or overwrites an existing one with the same code.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL, rule.Code, rule.Discount, rule.Active)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
	}
	return nil
}

// UpsertBatch inserts many rules inside one transaction and reports how
// many were written.
func (r *CouponRepository) UpsertBatch(ctx context.Context, rules []coupon.Rule) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning coupon batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var written int64
	for i := range rules {
		rule := &rules[i]
		if _, err := tx.Exec(ctx, upsertCouponSQL, rule.Code, rule.Discount, rule.Active); err != nil {
			return 0, fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing coupon batch: %w", err)
	}
	return written, nil
}

// SetActive enables or disables a coupon.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("toggling coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrInvalidCoupon
	}
	return nil
}

// Delete removes a coupon entirely. The bloom pre-filter may keep answering
// "maybe" for the code; the repository lookup stays the authority.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrInvalidCoupon
	}
	return nil
}

// ListCodes returns every coupon code, active or not.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var rule coupon.Rule
	err := row.Scan(&rule.Code, &rule.Discount, &rule.Active)
	return rule, err
}
