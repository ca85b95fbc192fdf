package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shop-bot/internal/domain/user"
)

const (
	createUserSQL = `INSERT INTO users (user_id, first_name, ref_code, referred_by, role, points, last_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING`

	getUserByIDSQL = `SELECT user_id, first_name, points, referrals, ref_code, referred_by, role,
		last_daily_task, last_active, created_at
		FROM users WHERE user_id = $1`

	getUserByRefCodeSQL = `SELECT user_id, first_name, points, referrals, ref_code, referred_by, role,
		last_daily_task, last_active, created_at
		FROM users WHERE ref_code = $1`

	addPointsSQL = `UPDATE users SET points = points + $2 WHERE user_id = $1`

	debitPointsSQL = `UPDATE users SET points = points - $2 WHERE user_id = $1 AND points >= $2`

	creditReferrerSQL = `UPDATE users SET points = points + $2, referrals = referrals + 1 WHERE user_id = $1`

	touchDailyTaskSQL = `UPDATE users SET last_daily_task = $2
		WHERE user_id = $1 AND (last_daily_task IS NULL OR last_daily_task <= $3)`

	touchActivitySQL = `UPDATE users SET last_active = $2 WHERE user_id = $1`

	updateRoleSQL = `UPDATE users SET role = $2 WHERE user_id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new account, reporting false when it already exists.
// A ref_code collision maps to user.ErrConflict so the caller can retry
// with a fresh code.
func (r *UserRepository) Create(ctx context.Context, u *user.User) (bool, error) {
	tag, err := r.pool.Exec(ctx, createUserSQL,
		u.ID, u.FirstName, u.RefCode, u.ReferredBy, u.Role, u.Points, u.LastActive, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("creating user %d: %w", u.ID, user.ErrConflict)
		}
		return false, fmt.Errorf("creating user %d: %w", u.ID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// CreateWithReferral inserts the account and credits both referral bonuses
// in one transaction. When the account already exists the transaction is
// rolled back and no bonus is applied.
func (r *UserRepository) CreateWithReferral(
	ctx context.Context, u *user.User, referrerID, refereeBonus, referrerBonus int64,
) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning referral transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, createUserSQL,
		u.ID, u.FirstName, u.RefCode, u.ReferredBy, u.Role, refereeBonus, u.LastActive, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("creating referred user %d: %w", u.ID, user.ErrConflict)
		}
		return false, fmt.Errorf("creating referred user %d: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	credited, err := tx.Exec(ctx, creditReferrerSQL, referrerID, referrerBonus)
	if err != nil {
		return false, fmt.Errorf("crediting referrer %d: %w", referrerID, err)
	}
	// The referrer row vanished between lookup and credit. Abort so the
	// signup is not half-applied.
	if credited.RowsAffected() == 0 {
		return false, fmt.Errorf("crediting referrer %d: %w", referrerID, user.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing referral transaction: %w", err)
	}

	return true, nil
}

// GetByID returns a single account by its identifier.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// GetByRefCode returns the account owning the given referral code.
func (r *UserRepository) GetByRefCode(ctx context.Context, code string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByRefCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting user by ref code %q: %w", code, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user by ref code %q: %w", code, err)
	}
	return &u, nil
}

// AddPoints credits points unconditionally.
func (r *UserRepository) AddPoints(ctx context.Context, id, delta int64) error {
	tag, err := r.pool.Exec(ctx, addPointsSQL, id, delta)
	if err != nil {
		return fmt.Errorf("adding points for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// DebitPoints subtracts only when the balance covers the amount.
func (r *UserRepository) DebitPoints(ctx context.Context, id, amount int64) error {
	tag, err := r.pool.Exec(ctx, debitPointsSQL, id, amount)
	if err != nil {
		return fmt.Errorf("debiting points for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrInsufficientPoints
	}
	return nil
}

// TouchDailyTask records a claim unless one happened within the cooldown.
func (r *UserRepository) TouchDailyTask(ctx context.Context, id int64, at time.Time, cooldown time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, touchDailyTaskSQL, id, at, at.Add(-cooldown))
	if err != nil {
		return false, fmt.Errorf("recording daily claim for user %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// TouchActivity updates the last-seen timestamp.
func (r *UserRepository) TouchActivity(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, touchActivitySQL, id, at)
	if err != nil {
		return fmt.Errorf("touching activity for user %d: %w", id, err)
	}
	return nil
}

// UpdateRole changes an account's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	tag, err := r.pool.Exec(ctx, updateRoleSQL, id, role)
	if err != nil {
		return fmt.Errorf("updating role for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.FirstName, &u.Points, &u.Referrals, &u.RefCode, &u.ReferredBy,
		&u.Role, &u.LastDailyTask, &u.LastActive, &u.CreatedAt,
	)
	return u, err
}
