// Package user holds shopper accounts, loyalty points, and referral state.
package user

import (
	"context"
	"fmt"
	"time"
)

// Roles assignable to an account. Role is set once at creation and changed
// only through an explicit admin operation.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

// Sentinel errors for account operations.
var (
	ErrNotFound           = fmt.Errorf("user not found")
	ErrInsufficientPoints = fmt.Errorf("insufficient points")
	// ErrConflict indicates a unique-constraint collision, such as two
	// accounts drawing the same referral code. Retryable with a fresh code.
	ErrConflict = fmt.Errorf("conflicting account data")
)

// RefCodeNotFoundError indicates a referral code that matches no account.
type RefCodeNotFoundError struct {
	Code string
}

func (e *RefCodeNotFoundError) Error() string {
	return fmt.Sprintf("referral code %s not found", e.Code)
}

// User represents a shopper account.
type User struct {
	ID            int64
	FirstName     string
	Points        int64
	Referrals     int
	RefCode       string
	ReferredBy    *int64
	Role          string
	LastDailyTask *time.Time
	LastActive    time.Time
	CreatedAt     time.Time
}

// IsStaff reports whether the account may use management commands.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleOwner
}

// Repository defines persistence operations for accounts.
type Repository interface {
	// Create inserts a new account. It returns false without error when the
	// account already exists, making registration idempotent.
	Create(ctx context.Context, u *User) (created bool, err error)
	// CreateWithReferral inserts a new account and applies signup bonuses to
	// both the new account and its referrer in a single transaction.
	CreateWithReferral(ctx context.Context, u *User, referrerID, refereeBonus, referrerBonus int64) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByRefCode(ctx context.Context, code string) (*User, error)
	// AddPoints credits points unconditionally.
	AddPoints(ctx context.Context, id int64, delta int64) error
	// DebitPoints subtracts amount only when the balance covers it,
	// returning ErrInsufficientPoints otherwise.
	DebitPoints(ctx context.Context, id int64, amount int64) error
	// TouchDailyTask records a daily reward claim only when the previous
	// claim is older than the cooldown. It returns false when still cooling.
	TouchDailyTask(ctx context.Context, id int64, at time.Time, cooldown time.Duration) (claimed bool, err error)
	TouchActivity(ctx context.Context, id int64, at time.Time) error
	UpdateRole(ctx context.Context, id int64, role string) error
}
