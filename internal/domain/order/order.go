// Package order holds orders, payments, and the checkout flow.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentRejected  = "rejected"
)

// MethodPoints is the built-in payment method backed by loyalty points.
const MethodPoints = "points"

// Order represents a customer order.
type Order struct {
	ID        int64
	UserID    int64
	Status    string
	Total     decimal.Decimal
	CreatedAt time.Time
	Items     []Item
}

// Item represents a single line item in an order.
type Item struct {
	ProductID int64
	Name      string
	Quantity  int
}

// Payment represents a payment attempt attached to an order.
type Payment struct {
	ID        int64
	OrderID   int64
	Method    string
	Code      string
	Status    string
	CreatedAt time.Time
}

// PendingOrder is an order awaiting settlement, as shown to admins.
type PendingOrder struct {
	Order
	PaymentMethod string
	PaymentCode   string
}

// Method is an externally settled payment channel configured by admins.
type Method struct {
	ID      int64
	Name    string
	Details string
}

// Repository defines persistence operations for orders and their payments.
type Repository interface {
	// CreateWithItems persists the order, its items, and the initial payment
	// row in one transaction, decrementing product stock with a
	// stock >= quantity guard. It fails the whole transaction when any line
	// cannot be covered.
	CreateWithItems(ctx context.Context, o *Order, p *Payment) error
	// Cancel marks the order cancelled, rejects its payments, and restores
	// the reserved stock in one transaction.
	Cancel(ctx context.Context, orderID int64) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Order, error)
	// ListPending returns orders awaiting settlement, oldest first, with
	// their payment reference codes attached.
	ListPending(ctx context.Context, limit int) ([]PendingOrder, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	// FindPaymentByCode resolves a payment reference code for admin review.
	FindPaymentByCode(ctx context.Context, code string) (*Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status string) error
}

// MethodRepository defines persistence operations for payment methods.
type MethodRepository interface {
	Create(ctx context.Context, m *Method) (int64, error)
	List(ctx context.Context) ([]Method, error)
	GetByID(ctx context.Context, id int64) (*Method, error)
	Delete(ctx context.Context, id int64) error
}
