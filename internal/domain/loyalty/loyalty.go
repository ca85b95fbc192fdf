// Package loyalty holds points accrual, referrals, and points-based
// settlement of orders.
package loyalty

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-bot/internal/domain/order"
	"shop-bot/internal/domain/user"
)

// ErrDailyCooldown indicates the daily reward was already claimed within
// the cooldown window.
var ErrDailyCooldown = errors.New("daily reward already claimed")

// refCodeRetries bounds how often a colliding referral code is redrawn.
const refCodeRetries = 3

// Config carries the point economy constants.
type Config struct {
	// ReferrerBonus is credited to the referrer when a referred user signs up.
	ReferrerBonus int64
	// RefereeBonus is credited to the new user who signed up via a referral.
	RefereeBonus int64
	// PurchaseBonus is credited to the referrer when a referred user
	// completes a points purchase.
	PurchaseBonus int64
	// DailyReward is credited per daily claim.
	DailyReward int64
	// DailyCooldown gates how often the daily reward can be claimed.
	DailyCooldown time.Duration
	// PointsPerDollar converts an order total into a points price.
	PointsPerDollar int64
}

// Notifier delivers out-of-band messages to users, such as referral bonus
// notices. Delivery failures must not fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Service encapsulates the points and referral business logic.
type Service struct {
	users    user.Repository
	orders   order.Repository
	notifier Notifier
	cfg      Config

	now        func() time.Time
	newRefCode func() string
}

// NewService creates a loyalty Service.
func NewService(users user.Repository, orders order.Repository, notifier Notifier, cfg Config) *Service {
	return &Service{
		users:    users,
		orders:   orders,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		newRefCode: func() string {
			var b [4]byte
			_, _ = rand.Read(b[:])

			return hex.EncodeToString(b[:])
		},
	}
}

// RegisterResult reports what happened during registration.
type RegisterResult struct {
	User     *user.User
	Created  bool
	Referred bool
}

// Register creates an account on first contact and is a no-op on repeat
// contact. A valid referral code credits both sides atomically with the
// account creation; a self-referral or unknown code is silently ignored.
func (s *Service) Register(ctx context.Context, id int64, firstName, refCode string) (*RegisterResult, error) {
	u := &user.User{
		ID:         id,
		FirstName:  firstName,
		RefCode:    s.newRefCode(),
		Role:       user.RoleUser,
		LastActive: s.now(),
		CreatedAt:  s.now(),
	}

	var referrer *user.User
	if refCode != "" {
		found, err := s.users.GetByRefCode(ctx, refCode)
		switch {
		case err == nil && found.ID != id:
			referrer = found
		case err != nil && !errors.Is(err, user.ErrNotFound):
			return nil, errors.Wrap(err, "resolve referral code")
		}
	}

	if referrer != nil {
		u.ReferredBy = &referrer.ID
	}
	created, err := s.createWithFreshCode(ctx, u, referrer)
	if err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	if !created {
		existing, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "load existing user")
		}
		if err := s.users.TouchActivity(ctx, id, s.now()); err != nil {
			zctx.From(ctx).Warn("touch activity", zap.Int64("user_id", id), zap.Error(err))
		}

		return &RegisterResult{User: existing}, nil
	}

	if referrer != nil {
		s.notify(ctx, referrer.ID, "Someone joined with your referral link. Bonus points credited!")
		u.Points = s.cfg.RefereeBonus
	}

	return &RegisterResult{User: u, Created: true, Referred: referrer != nil}, nil
}

// createWithFreshCode inserts the account, redrawing the referral code when
// the random draw collides with an existing account's code.
func (s *Service) createWithFreshCode(ctx context.Context, u *user.User, referrer *user.User) (bool, error) {
	for attempt := 0; ; attempt++ {
		var (
			created bool
			err     error
		)
		if referrer != nil {
			created, err = s.users.CreateWithReferral(ctx, u, referrer.ID, s.cfg.RefereeBonus, s.cfg.ReferrerBonus)
		} else {
			created, err = s.users.Create(ctx, u)
		}
		if errors.Is(err, user.ErrConflict) && attempt < refCodeRetries {
			u.RefCode = s.newRefCode()
			continue
		}
		return created, err
	}
}

// PointsPrice converts an order total into its points cost, rounded up.
func (s *Service) PointsPrice(total decimal.Decimal) int64 {
	return total.Mul(decimal.NewFromInt(s.cfg.PointsPerDollar)).Ceil().IntPart()
}

// SettleWithPoints pays for a pending order from the user's balance. The
// debit happens first; only after it succeeds are the payment and order
// marked settled. Referrer purchase bonuses are best-effort and never fail
// the settlement.
func (s *Service) SettleWithPoints(ctx context.Context, userID int64, rcpt *order.Receipt) (int64, error) {
	cost := s.PointsPrice(rcpt.Total)

	if err := s.users.DebitPoints(ctx, userID, cost); err != nil {
		return 0, err
	}

	if err := s.orders.UpdatePaymentStatus(ctx, rcpt.Payment.ID, order.PaymentConfirmed); err != nil {
		return 0, errors.Wrap(err, "confirm payment")
	}
	if err := s.orders.UpdateStatus(ctx, rcpt.Order.ID, order.StatusCompleted); err != nil {
		return 0, errors.Wrap(err, "complete order")
	}

	s.creditReferrerPurchase(ctx, userID)

	return cost, nil
}

// creditReferrerPurchase credits the purchase bonus to the buyer's referrer.
// Failures are logged and swallowed; the purchase already succeeded.
func (s *Service) creditReferrerPurchase(ctx context.Context, buyerID int64) {
	buyer, err := s.users.GetByID(ctx, buyerID)
	if err != nil {
		zctx.From(ctx).Warn("load buyer for referral bonus", zap.Int64("user_id", buyerID), zap.Error(err))

		return
	}
	if buyer.ReferredBy == nil {
		return
	}

	referrerID := *buyer.ReferredBy
	if err := s.users.AddPoints(ctx, referrerID, s.cfg.PurchaseBonus); err != nil {
		zctx.From(ctx).Warn("credit referral purchase bonus",
			zap.Int64("referrer_id", referrerID), zap.Error(err))

		return
	}

	s.notify(ctx, referrerID, "A user you referred made a purchase. Bonus points credited!")
}

// ConfirmPayment resolves a payment reference reported by an admin. An
// approval confirms the payment, completes the order, notifies the buyer,
// and credits the buyer's referrer; a rejection marks the payment rejected
// and cancels nothing else.
func (s *Service) ConfirmPayment(ctx context.Context, paymentCode string, approve bool) (*order.Payment, error) {
	p, err := s.orders.FindPaymentByCode(ctx, paymentCode)
	if err != nil {
		return nil, err
	}

	status := order.PaymentRejected
	if approve {
		status = order.PaymentConfirmed
	}
	if err := s.orders.UpdatePaymentStatus(ctx, p.ID, status); err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	p.Status = status

	if !approve {
		return p, nil
	}

	o, err := s.orders.GetByID(ctx, p.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusCompleted); err != nil {
		return nil, errors.Wrap(err, "complete order")
	}

	s.notify(ctx, o.UserID, "Your payment was confirmed. Thank you for your order!")
	s.creditReferrerPurchase(ctx, o.UserID)

	return p, nil
}

// ClaimDailyReward credits the daily reward once per cooldown window.
func (s *Service) ClaimDailyReward(ctx context.Context, userID int64) (int64, error) {
	claimed, err := s.users.TouchDailyTask(ctx, userID, s.now(), s.cfg.DailyCooldown)
	if err != nil {
		return 0, errors.Wrap(err, "record daily claim")
	}
	if !claimed {
		return 0, ErrDailyCooldown
	}

	if err := s.users.AddPoints(ctx, userID, s.cfg.DailyReward); err != nil {
		return 0, errors.Wrap(err, "credit daily reward")
	}

	return s.cfg.DailyReward, nil
}

// AdjustPoints applies an admin-initiated balance change. Negative deltas
// are conditional on the balance covering them.
func (s *Service) AdjustPoints(ctx context.Context, userID, delta int64) error {
	if delta < 0 {
		return s.users.DebitPoints(ctx, userID, -delta)
	}

	return s.users.AddPoints(ctx, userID, delta)
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		zctx.From(ctx).Warn("notify user", zap.Int64("user_id", userID), zap.Error(err))
	}
}
