//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"shop-bot/internal/domain/catalog"
	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/domain/order"
	"shop-bot/internal/domain/user"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	pool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	return m.Run()
}

func newUser(id int64, refCode string) *user.User {
	now := time.Now().UTC()
	return &user.User{
		ID:         id,
		FirstName:  "Test",
		RefCode:    refCode,
		Role:       user.RoleUser,
		LastActive: now,
		CreatedAt:  now,
	}
}

func newProduct(t *testing.T, name, price string, stock int) int64 {
	t.Helper()

	id, err := NewProductRepository(pool).Create(context.Background(), &catalog.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: "Subscriptions",
	})
	require.NoError(t, err)
	return id
}

func TestUserRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(pool)

	created, err := repo.Create(ctx, newUser(1001, "aaaa0001"))
	require.NoError(t, err)
	assert.True(t, created)

	// Second insert of the same ID is a no-op.
	created, err = repo.Create(ctx, newUser(1001, "bbbb0001"))
	require.NoError(t, err)
	assert.False(t, created)

	u, err := repo.GetByID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "aaaa0001", u.RefCode)
	assert.Equal(t, user.RoleUser, u.Role)

	byCode, err := repo.GetByRefCode(ctx, "aaaa0001")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), byCode.ID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, user.ErrNotFound)

	require.NoError(t, repo.AddPoints(ctx, 1001, 500))
	require.NoError(t, repo.DebitPoints(ctx, 1001, 200))

	err = repo.DebitPoints(ctx, 1001, 10_000)
	assert.ErrorIs(t, err, user.ErrInsufficientPoints)

	u, err = repo.GetByID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(300), u.Points)

	require.NoError(t, repo.UpdateRole(ctx, 1001, user.RoleAdmin))
	assert.ErrorIs(t, repo.UpdateRole(ctx, 99999, user.RoleAdmin), user.ErrNotFound)
}

func TestUserRepository_DailyTaskCooldown(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(pool)

	_, err := repo.Create(ctx, newUser(1002, "aaaa0002"))
	require.NoError(t, err)

	t0 := time.Now().UTC().Truncate(time.Second)
	cooldown := 24 * time.Hour

	claimed, err := repo.TouchDailyTask(ctx, 1002, t0, cooldown)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.TouchDailyTask(ctx, 1002, t0.Add(time.Hour), cooldown)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = repo.TouchDailyTask(ctx, 1002, t0.Add(25*time.Hour), cooldown)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestUserRepository_CreateWithReferral(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(pool)

	_, err := repo.Create(ctx, newUser(1003, "aaaa0003"))
	require.NoError(t, err)

	referee := newUser(1004, "aaaa0004")
	refID := int64(1003)
	referee.ReferredBy = &refID

	created, err := repo.CreateWithReferral(ctx, referee, 1003, 50, 100)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := repo.GetByID(ctx, 1004)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Points)
	require.NotNil(t, got.ReferredBy)
	assert.Equal(t, int64(1003), *got.ReferredBy)

	referrer, err := repo.GetByID(ctx, 1003)
	require.NoError(t, err)
	assert.Equal(t, int64(100), referrer.Points)
	assert.Equal(t, 1, referrer.Referrals)

	// A repeat signup with a referral code credits nothing twice.
	created, err = repo.CreateWithReferral(ctx, newUser(1004, "cccc0004"), 1003, 50, 100)
	require.NoError(t, err)
	assert.False(t, created)

	referrer, err = repo.GetByID(ctx, 1003)
	require.NoError(t, err)
	assert.Equal(t, int64(100), referrer.Points)
	assert.Equal(t, 1, referrer.Referrals)
}

func TestUserRepository_ReferralRollsBackWhenCreditFails(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(pool)

	_, err := repo.Create(ctx, newUser(1009, "aaaa0009"))
	require.NoError(t, err)

	referee := newUser(1010, "aaaa0010")
	refID := int64(1009)
	referee.ReferredBy = &refID

	// The credit statement hits a user that is gone, so the insert that
	// already ran must roll back with it.
	_, err = repo.CreateWithReferral(ctx, referee, 77777, 50, 100)
	require.ErrorIs(t, err, user.ErrNotFound)

	_, err = repo.GetByID(ctx, 1010)
	assert.ErrorIs(t, err, user.ErrNotFound)

	referrer, err := repo.GetByID(ctx, 1009)
	require.NoError(t, err)
	assert.Equal(t, int64(0), referrer.Points)
	assert.Equal(t, 0, referrer.Referrals)
}

func TestUserRepository_RefCodeCollision(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(pool)

	_, err := repo.Create(ctx, newUser(1011, "aaaa0011"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser(1012, "aaaa0011"))
	require.ErrorIs(t, err, user.ErrConflict)
}

func TestCartRepository_UpsertAndJoin(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(pool)
	carts := NewCartRepository(pool)
	products := NewProductRepository(pool)

	_, err := users.Create(ctx, newUser(1005, "aaaa0005"))
	require.NoError(t, err)
	pid := newProduct(t, "Spotify Premium", "4.99", 10)

	require.NoError(t, carts.Add(ctx, 1005, pid, 1))
	require.NoError(t, carts.Add(ctx, 1005, pid, 2))

	items, err := carts.Items(ctx, 1005)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "Spotify Premium", items[0].Name)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("4.99")))

	// A deleted product drops out of the cart join.
	require.NoError(t, products.Delete(ctx, pid))
	items, err = carts.Items(ctx, 1005)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, carts.Clear(ctx, 1005))
}

func TestOrderRepository_CheckoutAndCancel(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(pool)
	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)

	_, err := users.Create(ctx, newUser(1006, "aaaa0006"))
	require.NoError(t, err)
	pid := newProduct(t, "Steam Wallet $10", "10.00", 5)

	now := time.Now().UTC().Truncate(time.Second)
	o := &order.Order{
		UserID:    1006,
		Status:    order.StatusPending,
		Total:     decimal.RequireFromString("20.00"),
		CreatedAt: now,
		Items:     []order.Item{{ProductID: pid, Quantity: 2}},
	}
	p := &order.Payment{
		Method:    "CCP",
		Code:      "ref-1006-1",
		Status:    order.PaymentPending,
		CreatedAt: now,
	}
	require.NoError(t, orders.CreateWithItems(ctx, o, p))
	require.NotZero(t, o.ID)
	require.NotZero(t, p.ID)
	assert.Equal(t, o.ID, p.OrderID)

	prod, err := products.GetByID(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 3, prod.Stock)

	got, err := orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Steam Wallet $10", got.Items[0].Name)
	assert.True(t, got.Total.Equal(o.Total))

	payment, err := orders.FindPaymentByCode(ctx, "ref-1006-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, payment.OrderID)

	require.NoError(t, orders.Cancel(ctx, o.ID))

	got, err = orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	payment, err = orders.FindPaymentByCode(ctx, "ref-1006-1")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRejected, payment.Status)

	prod, err = products.GetByID(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 5, prod.Stock)

	// Cancelling a settled order is a no-op.
	require.NoError(t, orders.Cancel(ctx, o.ID))
}

func TestOrderRepository_OutOfStockRollsBack(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(pool)
	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)

	_, err := users.Create(ctx, newUser(1007, "aaaa0007"))
	require.NoError(t, err)
	okPID := newProduct(t, "Netflix", "9.99", 10)
	lowPID := newProduct(t, "Canva Pro", "19.99", 1)

	now := time.Now().UTC()
	o := &order.Order{
		UserID:    1007,
		Status:    order.StatusPending,
		Total:     decimal.RequireFromString("49.97"),
		CreatedAt: now,
		Items: []order.Item{
			{ProductID: okPID, Quantity: 1},
			{ProductID: lowPID, Quantity: 2},
		},
	}
	p := &order.Payment{Method: "CCP", Code: "ref-1007-1", Status: order.PaymentPending, CreatedAt: now}

	err = orders.CreateWithItems(ctx, o, p)
	var oos *order.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, lowPID, oos.ProductID)

	// The whole transaction rolled back, including the first line's decrement.
	prod, err := products.GetByID(ctx, okPID)
	require.NoError(t, err)
	assert.Equal(t, 10, prod.Stock)

	list, err := orders.ListByUser(ctx, 1007, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStatsRepository_CountsCompletedSalesOnly(t *testing.T) {
	ctx := context.Background()
	users := NewUserRepository(pool)
	orders := NewOrderRepository(pool)
	statsRepo := NewStatsRepository(pool)

	_, err := users.Create(ctx, newUser(1008, "aaaa0008"))
	require.NoError(t, err)
	pid := newProduct(t, "Google Play $5", "5.75", 10)

	now := time.Now().UTC()
	o := &order.Order{
		UserID:    1008,
		Status:    order.StatusPending,
		Total:     decimal.RequireFromString("5.75"),
		CreatedAt: now,
		Items:     []order.Item{{ProductID: pid, Quantity: 1}},
	}
	p := &order.Payment{Method: order.MethodPoints, Code: "ref-1008-1", Status: order.PaymentPending, CreatedAt: now}
	require.NoError(t, orders.CreateWithItems(ctx, o, p))

	before, err := statsRepo.Summary(ctx)
	require.NoError(t, err)

	pending, err := orders.ListPending(ctx, 50)
	require.NoError(t, err)
	var seen bool
	for _, po := range pending {
		if po.ID == o.ID {
			seen = true
			assert.Equal(t, "ref-1008-1", po.PaymentCode)
			assert.Equal(t, order.MethodPoints, po.PaymentMethod)
		}
	}
	assert.True(t, seen, "order %d listed as pending", o.ID)

	require.NoError(t, orders.UpdatePaymentStatus(ctx, p.ID, order.PaymentConfirmed))
	require.NoError(t, orders.UpdateStatus(ctx, o.ID, order.StatusCompleted))

	after, err := statsRepo.Summary(ctx)
	require.NoError(t, err)
	grew := after.TotalSales.Sub(before.TotalSales)
	assert.True(t, grew.Equal(decimal.RequireFromString("5.75")), "revenue grew by %s", grew)
	assert.GreaterOrEqual(t, after.Orders, int64(1))

	top, err := statsRepo.TopProducts(ctx, 10)
	require.NoError(t, err)
	var units int64
	for _, tp := range top {
		if tp.ProductID == pid {
			units = tp.Units
		}
	}
	assert.EqualValues(t, 1, units)
}

func TestProductRepository_PartialUpdateAndSearch(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(pool)

	pid := newProduct(t, "Adobe Creative Cloud", "29.99", 4)

	newPrice := decimal.RequireFromString("24.99")
	require.NoError(t, repo.Update(ctx, pid, catalog.Update{Price: &newPrice}))

	got, err := repo.GetByID(ctx, pid)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(newPrice))
	assert.Equal(t, "Adobe Creative Cloud", got.Name)
	assert.Equal(t, 4, got.Stock)

	found, err := repo.Search(ctx, "creative", catalog.SearchFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, pid, found[0].ID)

	min := decimal.NewFromInt(30)
	found, err = repo.Search(ctx, "creative", catalog.SearchFilter{PriceMin: &min})
	require.NoError(t, err)
	assert.Empty(t, found)

	cats, err := repo.Categories(ctx)
	require.NoError(t, err)
	assert.Contains(t, cats, "Subscriptions")

	require.NoError(t, repo.Delete(ctx, pid))
	_, err = repo.GetByID(ctx, pid)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCouponRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(pool)

	require.NoError(t, repo.Upsert(ctx, &coupon.Rule{
		Code:     "ITSAVE10",
		Discount: decimal.NewFromInt(10),
		Active:   true,
	}))

	// Lookup is case-insensitive.
	rule, err := repo.FindByCode(ctx, "itsave10")
	require.NoError(t, err)
	assert.Equal(t, "ITSAVE10", rule.Code)
	assert.True(t, rule.Active)

	require.NoError(t, repo.SetActive(ctx, "ITSAVE10", false))
	rule, err = repo.FindByCode(ctx, "ITSAVE10")
	require.NoError(t, err)
	assert.False(t, rule.Active)

	assert.ErrorIs(t, repo.SetActive(ctx, "NOPE", false), coupon.ErrInvalidCoupon)

	written, err := repo.UpsertBatch(ctx, []coupon.Rule{
		{Code: "ITBATCH1", Discount: decimal.NewFromInt(5), Active: true},
		{Code: "ITBATCH2", Discount: decimal.NewFromInt(15), Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	codes, err := repo.ListCodes(ctx)
	require.NoError(t, err)
	assert.Contains(t, codes, "ITBATCH1")
	assert.Contains(t, codes, "ITBATCH2")
}

func TestPaymentMethodRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentMethodRepository(pool)

	id, err := repo.Create(ctx, &order.Method{Name: "BaridiMob", Details: "RIP 00799999"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "BaridiMob", got.Name)

	methods, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, methods)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.GetByID(ctx, id)
	assert.Error(t, err)
}
