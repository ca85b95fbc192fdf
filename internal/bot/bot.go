// Package bot routes chat updates to the shop's command handlers.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-bot/internal/assistant"
	"shop-bot/internal/chat"
	"shop-bot/internal/domain/cart"
	"shop-bot/internal/domain/catalog"
	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/domain/loyalty"
	"shop-bot/internal/domain/order"
	"shop-bot/internal/domain/stats"
	"shop-bot/internal/domain/user"
)

// handleTimeout bounds the work done for a single update.
const handleTimeout = 30 * time.Second

// Dispatcher consumes transport updates and executes commands.
type Dispatcher struct {
	transport chat.Transport

	users    user.Repository
	products catalog.Repository
	carts    cart.Repository
	methods  order.MethodRepository
	coupons  coupon.Repository
	orders   *order.Service
	loyalty  *loyalty.Service
	stats    stats.Repository
	drafter  *assistant.Drafter

	// couponFilter receives codes created at runtime so the checkout
	// pre-filter stays warm. Optional.
	couponFilter CouponFilter

	// botName builds the referral deep link; adminHandle and dzdRate feed
	// the help text and the dual-currency price line.
	botName     string
	adminHandle string
	dzdRate     decimal.Decimal

	// Owner IDs from configuration. They get staff access even before
	// their account row exists.
	owners map[int64]struct{}

	// pendingCoupons holds a coupon code entered ahead of checkout,
	// consumed by the next checkout of that user.
	mu             sync.Mutex
	pendingCoupons map[int64]string
}

// CouponFilter observes coupon codes created at runtime.
type CouponFilter interface {
	Observe(code string)
}

// Deps bundles the dispatcher's dependencies.
type Deps struct {
	Transport    chat.Transport
	Users        user.Repository
	Products     catalog.Repository
	Carts        cart.Repository
	Methods      order.MethodRepository
	Coupons      coupon.Repository
	Orders       *order.Service
	Loyalty      *loyalty.Service
	Stats        stats.Repository
	Drafter      *assistant.Drafter
	CouponFilter CouponFilter
	Owners       []int64

	// BotName is the bot's own username, used in referral deep links.
	BotName string
	// AdminHandle is the public contact handle surfaced in /help.
	AdminHandle string
	// DZDRate converts USD prices to the local-currency line. Zero disables
	// dual-currency rendering.
	DZDRate decimal.Decimal
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	owners := make(map[int64]struct{}, len(deps.Owners))
	for _, id := range deps.Owners {
		owners[id] = struct{}{}
	}

	return &Dispatcher{
		transport:      deps.Transport,
		users:          deps.Users,
		products:       deps.Products,
		carts:          deps.Carts,
		methods:        deps.Methods,
		coupons:        deps.Coupons,
		orders:         deps.Orders,
		loyalty:        deps.Loyalty,
		stats:          deps.Stats,
		drafter:        deps.Drafter,
		couponFilter:   deps.CouponFilter,
		botName:        deps.BotName,
		adminHandle:    deps.AdminHandle,
		dzdRate:        deps.DZDRate,
		owners:         owners,
		pendingCoupons: make(map[int64]string),
	}
}

// Run consumes updates until ctx is cancelled. Each update is handled in
// its own goroutine; Run returns after in-flight handlers finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for upd := range d.transport.Updates(ctx) {
		wg.Add(1)
		go func(upd chat.Update) {
			defer wg.Done()
			d.handle(ctx, upd)
		}(upd)
	}
	wg.Wait()

	return ctx.Err()
}

func (d *Dispatcher) handle(ctx context.Context, upd chat.Update) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			zctx.From(ctx).Error("handler panic",
				zap.Int64("update_id", upd.ID), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	switch {
	case upd.Message != nil:
		d.handleMessage(ctx, upd.Message)
	case upd.Callback != nil:
		d.handleCallback(ctx, upd.Callback)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *chat.Message) {
	cmd, args := splitCommand(msg.Text)

	// Everything except /start requires a registered account.
	if cmd == "/start" {
		d.cmdStart(ctx, msg, args)
		return
	}

	u, err := d.requireUser(ctx, msg.ChatID, msg.UserID)
	if err != nil {
		return
	}

	switch cmd {
	case "/shop":
		d.showCategories(ctx, msg.ChatID)
	case "/cart":
		d.showCart(ctx, msg.ChatID, u.ID)
	case "/checkout":
		d.showPaymentMethods(ctx, msg.ChatID)
	case "/orders":
		d.showOrders(ctx, msg.ChatID, u.ID)
	case "/account":
		d.showAccount(ctx, msg.ChatID, u)
	case "/daily":
		d.claimDaily(ctx, msg.ChatID, u.ID)
	case "/coupon":
		d.cmdCoupon(ctx, msg.ChatID, u.ID, args)
	case "/search":
		d.cmdSearch(ctx, msg.ChatID, args)
	case "/help":
		d.reply(ctx, msg.ChatID, helpText(u.IsStaff(), d.adminHandle))
	default:
		if u.IsStaff() && d.handleAdminCommand(ctx, msg.ChatID, u, cmd, args) {
			return
		}
		d.reply(ctx, msg.ChatID, "Unknown command. Try /help.")
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *chat.Callback) {
	if err := d.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
		zctx.From(ctx).Warn("answer callback", zap.Error(err))
	}

	u, err := d.requireUser(ctx, cb.ChatID, cb.UserID)
	if err != nil {
		return
	}

	action, arg := splitCallback(cb.Data)
	switch action {
	case "menu":
		d.showMenu(ctx, cb.ChatID, u)
	case "shop":
		d.showCategories(ctx, cb.ChatID)
	case "cat":
		d.showSubcategories(ctx, cb.ChatID, arg)
	case "sub":
		d.showProducts(ctx, cb.ChatID, arg)
	case "prod":
		d.showProduct(ctx, cb.ChatID, arg)
	case "add":
		d.addToCart(ctx, cb.ChatID, u.ID, arg)
	case "cart":
		d.showCart(ctx, cb.ChatID, u.ID)
	case "cart_rm":
		d.removeFromCart(ctx, cb.ChatID, u.ID, arg)
	case "cart_clear":
		d.clearCart(ctx, cb.ChatID, u.ID)
	case "checkout":
		d.showPaymentMethods(ctx, cb.ChatID)
	case "pay":
		d.checkout(ctx, cb.ChatID, u.ID, arg)
	case "orders":
		d.showOrders(ctx, cb.ChatID, u.ID)
	case "account":
		d.showAccount(ctx, cb.ChatID, u)
	case "daily":
		d.claimDaily(ctx, cb.ChatID, u.ID)
	default:
		zctx.From(ctx).Debug("unknown callback", zap.String("data", cb.Data))
	}
}

// requireUser loads the account behind an update, telling the user to
// /start when it does not exist yet.
func (d *Dispatcher) requireUser(ctx context.Context, chatID, userID int64) (*user.User, error) {
	u, err := d.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			d.reply(ctx, chatID, "Please send /start first.")
		} else {
			zctx.From(ctx).Error("load user", zap.Int64("user_id", userID), zap.Error(err))
			d.reply(ctx, chatID, msgInternalError)
		}
		return nil, err
	}

	if _, owner := d.owners[u.ID]; owner && !u.IsStaff() {
		u.Role = user.RoleOwner
	}
	return u, nil
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, rows ...[]chat.Button) {
	msg := chat.Outgoing{ChatID: chatID, Text: text, Keyboard: rows}
	if err := d.transport.Send(ctx, msg); err != nil {
		zctx.From(ctx).Error("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func splitCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	cmd, args, _ = strings.Cut(text, " ")
	// Strip the bot mention in group-style commands like /shop@my_bot.
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd, strings.TrimSpace(args)
}

func splitCallback(data string) (action, arg string) {
	action, arg, _ = strings.Cut(data, ":")
	return action, arg
}
