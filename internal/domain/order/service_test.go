package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-bot/internal/domain/cart"
	"shop-bot/internal/domain/coupon"
)

// --- Mock implementations ---

type mockCartRepo struct {
	items []cart.Item
	err   error
}

func (m *mockCartRepo) Add(_ context.Context, _, _ int64, _ int) error { return nil }
func (m *mockCartRepo) Items(_ context.Context, _ int64) ([]cart.Item, error) {
	return m.items, m.err
}
func (m *mockCartRepo) Remove(_ context.Context, _, _ int64) error { return nil }
func (m *mockCartRepo) Clear(_ context.Context, _ int64) error     { return nil }

type mockOrderRepo struct {
	lastOrder   *Order
	lastPayment *Payment
	createErr   error
	cancelled   []int64
}

func (m *mockOrderRepo) CreateWithItems(_ context.Context, o *Order, p *Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	o.ID = 42
	p.ID = 7
	p.OrderID = o.ID
	m.lastOrder = o
	m.lastPayment = p
	return nil
}

func (m *mockOrderRepo) Cancel(_ context.Context, orderID int64) error {
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, _ int64) (*Order, error) { return nil, nil }
func (m *mockOrderRepo) ListByUser(_ context.Context, _ int64, _ int) ([]Order, error) {
	return nil, nil
}
func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ int64, _ string) error        { return nil }
func (m *mockOrderRepo) FindPaymentByCode(_ context.Context, _ string) (*Payment, error) {
	return nil, nil
}
func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, _ int64, _ string) error { return nil }
func (m *mockOrderRepo) ListPending(_ context.Context, _ int) ([]PendingOrder, error) {
	return nil, nil
}

type mockValidator struct {
	rule *coupon.Rule
	err  error
}

func (m *mockValidator) Validate(_ context.Context, _ string) (*coupon.Rule, error) {
	return m.rule, m.err
}

type mockLocker struct {
	busy     bool
	acquired int
	released int
}

func (m *mockLocker) Acquire(_ context.Context, _ int64) (func(), error) {
	if m.busy {
		return nil, ErrCheckoutBusy
	}
	m.acquired++
	return func() { m.released++ }, nil
}

// --- Helpers ---

func newTestService(carts *mockCartRepo, orders *mockOrderRepo, v *mockValidator, l *mockLocker) *Service {
	svc := NewService(carts, orders, v, l)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	svc.newCode = func() string { return "ref-0001" }
	return svc
}

func testItems() []cart.Item {
	return []cart.Item{
		{ProductID: 1, Name: "Spotify", Price: decimal.RequireFromString("19.99"), Quantity: 2},
		{ProductID: 2, Name: "Play $5", Price: decimal.RequireFromString("2.99"), Quantity: 1},
	}
}

// --- Tests ---

func TestCheckout_EmptyCart(t *testing.T) {
	svc := newTestService(&mockCartRepo{}, &mockOrderRepo{}, &mockValidator{}, &mockLocker{})

	_, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP"})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_Busy(t *testing.T) {
	svc := newTestService(&mockCartRepo{items: testItems()}, &mockOrderRepo{}, &mockValidator{}, &mockLocker{busy: true})

	_, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP"})
	require.ErrorIs(t, err, ErrCheckoutBusy)
}

func TestCheckout_NoCoupon(t *testing.T) {
	orders := &mockOrderRepo{}
	locker := &mockLocker{}
	svc := newTestService(&mockCartRepo{items: testItems()}, orders, &mockValidator{}, locker)

	rcpt, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP"})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("42.97").Equal(rcpt.Total))
	assert.True(t, rcpt.Subtotal.Equal(rcpt.Total))
	assert.Equal(t, int64(42), rcpt.Order.ID)
	assert.Equal(t, StatusPending, rcpt.Order.Status)
	assert.Equal(t, "ref-0001", rcpt.PaymentCode)
	assert.Equal(t, PaymentPending, rcpt.Payment.Status)
	assert.Equal(t, "CCP", rcpt.Payment.Method)
	require.Len(t, orders.lastOrder.Items, 2)
	assert.Equal(t, 2, orders.lastOrder.Items[0].Quantity)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestCheckout_WithCoupon(t *testing.T) {
	v := &mockValidator{rule: &coupon.Rule{
		Code:     "SAVE10",
		Discount: decimal.NewFromInt(10),
		Active:   true,
	}}
	svc := newTestService(&mockCartRepo{items: testItems()}, &mockOrderRepo{}, v, &mockLocker{})

	rcpt, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP", CouponCode: "save10"})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("42.97").Equal(rcpt.Subtotal))
	assert.True(t, decimal.RequireFromString("38.67").Equal(rcpt.Total), "got %s", rcpt.Total)
	assert.Equal(t, "SAVE10", rcpt.CouponCode)
}

func TestCheckout_InvalidCoupon(t *testing.T) {
	v := &mockValidator{err: coupon.ErrInvalidCoupon}
	orders := &mockOrderRepo{}
	svc := newTestService(&mockCartRepo{items: testItems()}, orders, v, &mockLocker{})

	_, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP", CouponCode: "NOPE"})
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Nil(t, orders.lastOrder)
}

func TestCheckout_OutOfStock(t *testing.T) {
	orders := &mockOrderRepo{createErr: &OutOfStockError{ProductID: 2}}
	locker := &mockLocker{}
	svc := newTestService(&mockCartRepo{items: testItems()}, orders, &mockValidator{}, locker)

	_, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP"})

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, int64(2), oos.ProductID)
	assert.Equal(t, 1, locker.released)
}

func TestCheckout_CreateError(t *testing.T) {
	orders := &mockOrderRepo{createErr: errors.New("db down")}
	svc := newTestService(&mockCartRepo{items: testItems()}, orders, &mockValidator{}, &mockLocker{})

	_, err := svc.Checkout(context.Background(), 100, CheckoutRequest{Method: "CCP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}
