package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shop-bot/internal/domain/cart"
	"shop-bot/internal/domain/coupon"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrCheckoutBusy = errors.New("another checkout is in progress")
)

// OutOfStockError indicates a cart line exceeds the remaining stock.
type OutOfStockError struct {
	ProductID int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d is out of stock", e.ProductID)
}

// Locker serializes checkouts per user. Acquire returns a release function
// on success and ErrCheckoutBusy when the user already holds the lock.
type Locker interface {
	Acquire(ctx context.Context, userID int64) (release func(), err error)
}

// CheckoutRequest holds the input for placing an order from the cart.
type CheckoutRequest struct {
	Method     string
	CouponCode string
}

// Receipt holds the outcome of a successful checkout.
type Receipt struct {
	Order       *Order
	Payment     *Payment
	Subtotal    decimal.Decimal
	Total       decimal.Decimal
	CouponCode  string
	PaymentCode string
}

// Service encapsulates checkout business logic.
type Service struct {
	carts   cart.Repository
	orders  Repository
	coupons coupon.Validator
	locker  Locker

	now     func() time.Time
	newCode func() string
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts cart.Repository,
	orders Repository,
	coupons coupon.Validator,
	locker Locker,
) *Service {
	return &Service{
		carts:   carts,
		orders:  orders,
		coupons: coupons,
		locker:  locker,
		now:     time.Now,
		newCode: func() string { return uuid.NewString() },
	}
}

// Checkout prices the cart at current catalog prices, applies an optional
// coupon, and persists the order with its items and a pending payment in a
// single transaction. The cart is left intact; callers clear it once the
// receipt has been delivered.
func (s *Service) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*Receipt, error) {
	release, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	items, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	subtotal := cart.Total(items)
	total := subtotal

	couponCode := ""
	if req.CouponCode != "" {
		rule, err := s.coupons.Validate(ctx, req.CouponCode)
		if err != nil {
			return nil, err
		}
		total = rule.Apply(subtotal)
		couponCode = rule.Code
	}

	o := &Order{
		UserID:    userID,
		Status:    StatusPending,
		Total:     total,
		CreatedAt: s.now(),
		Items:     make([]Item, len(items)),
	}
	for i, it := range items {
		o.Items[i] = Item{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
	}

	p := &Payment{
		Method:    req.Method,
		Code:      s.newCode(),
		Status:    PaymentPending,
		CreatedAt: o.CreatedAt,
	}

	if err := s.orders.CreateWithItems(ctx, o, p); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return &Receipt{
		Order:       o,
		Payment:     p,
		Subtotal:    subtotal,
		Total:       total,
		CouponCode:  couponCode,
		PaymentCode: p.Code,
	}, nil
}

// Cancel reverses an unsettled checkout, restoring the reserved stock.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	return s.orders.Cancel(ctx, orderID)
}

// History returns the user's most recent orders.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID, limit)
}

// Pending returns orders waiting for payment verification.
func (s *Service) Pending(ctx context.Context, limit int) ([]PendingOrder, error) {
	return s.orders.ListPending(ctx, limit)
}
