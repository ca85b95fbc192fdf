package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-bot/internal/chat"
	"shop-bot/internal/domain/catalog"
	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/domain/loyalty"
	"shop-bot/internal/domain/order"
	"shop-bot/internal/domain/user"
)

const (
	msgInternalError = "Something went wrong, please try again later."

	orderHistoryLimit = 10
)

func (d *Dispatcher) cmdStart(ctx context.Context, msg *chat.Message, args string) {
	refCode := strings.TrimPrefix(args, "ref_")
	if refCode == args {
		refCode = ""
	}

	res, err := d.loyalty.Register(ctx, msg.UserID, msg.FirstName, refCode)
	if err != nil {
		zctx.From(ctx).Error("register user", zap.Int64("user_id", msg.UserID), zap.Error(err))
		d.reply(ctx, msg.ChatID, msgInternalError)
		return
	}

	greeting := fmt.Sprintf("Welcome back, %s!", res.User.FirstName)
	if res.Created {
		greeting = fmt.Sprintf("Welcome, %s!", res.User.FirstName)
		if res.Referred {
			greeting += " Your referral bonus has been credited."
		}
	}

	d.reply(ctx, msg.ChatID, greeting, mainMenu()...)
}

func (d *Dispatcher) showMenu(ctx context.Context, chatID int64, u *user.User) {
	d.reply(ctx, chatID, fmt.Sprintf("What next, %s?", u.FirstName), mainMenu()...)
}

func (d *Dispatcher) showCategories(ctx context.Context, chatID int64) {
	cats, err := d.products.Categories(ctx)
	if err != nil {
		zctx.From(ctx).Error("list categories", zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if len(cats) == 0 {
		d.reply(ctx, chatID, "The shop is empty right now. Check back soon!")
		return
	}

	rows := make([][]chat.Button, 0, len(cats)+1)
	for _, c := range cats {
		rows = append(rows, []chat.Button{{Text: c, Data: "cat:" + c}})
	}
	rows = append(rows, []chat.Button{{Text: "« Menu", Data: "menu"}})
	d.reply(ctx, chatID, "Pick a category:", rows...)
}

func (d *Dispatcher) showSubcategories(ctx context.Context, chatID int64, category string) {
	subs, err := d.products.Subcategories(ctx, category)
	if err != nil {
		zctx.From(ctx).Error("list subcategories", zap.String("category", category), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}

	// Categories without subcategories go straight to their products.
	if len(subs) == 0 {
		d.listProducts(ctx, chatID, category, "")
		return
	}

	rows := make([][]chat.Button, 0, len(subs)+1)
	for _, s := range subs {
		rows = append(rows, []chat.Button{{Text: s, Data: "sub:" + category + "|" + s}})
	}
	rows = append(rows, []chat.Button{{Text: "« Categories", Data: "shop"}})
	d.reply(ctx, chatID, category+":", rows...)
}

func (d *Dispatcher) showProducts(ctx context.Context, chatID int64, arg string) {
	category, subcategory, _ := strings.Cut(arg, "|")
	d.listProducts(ctx, chatID, category, subcategory)
}

func (d *Dispatcher) listProducts(ctx context.Context, chatID int64, category, subcategory string) {
	products, err := d.products.List(ctx, category, subcategory)
	if err != nil {
		zctx.From(ctx).Error("list products", zap.String("category", category), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if len(products) == 0 {
		d.reply(ctx, chatID, "Nothing here yet.")
		return
	}

	rows := make([][]chat.Button, 0, len(products)+1)
	for _, p := range products {
		label := fmt.Sprintf("%s — $%s", p.Name, p.Price.StringFixed(2))
		rows = append(rows, []chat.Button{{Text: label, Data: fmt.Sprintf("prod:%d", p.ID)}})
	}
	rows = append(rows, []chat.Button{{Text: "« Categories", Data: "shop"}})
	d.reply(ctx, chatID, "Products:", rows...)
}

func (d *Dispatcher) showProduct(ctx context.Context, chatID int64, arg string) {
	id, err := parseID(arg)
	if err != nil {
		return
	}

	p, err := d.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			d.reply(ctx, chatID, "That product is gone.")
			return
		}
		zctx.From(ctx).Error("get product", zap.Int64("product_id", id), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}

	d.reply(ctx, chatID, renderProduct(p, d.dzdRate),
		[]chat.Button{{Text: "Add to cart", Data: fmt.Sprintf("add:%d", p.ID)}},
		[]chat.Button{{Text: "« Back", Data: "shop"}, {Text: "Cart", Data: "cart"}},
	)
}

func (d *Dispatcher) addToCart(ctx context.Context, chatID, userID int64, arg string) {
	id, err := parseID(arg)
	if err != nil {
		return
	}

	p, err := d.products.GetByID(ctx, id)
	if err != nil {
		d.reply(ctx, chatID, "That product is gone.")
		return
	}
	if p.Stock <= 0 {
		d.reply(ctx, chatID, fmt.Sprintf("%s is out of stock.", p.Name))
		return
	}

	if err := d.carts.Add(ctx, userID, id, 1); err != nil {
		zctx.From(ctx).Error("add to cart", zap.Int64("product_id", id), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}

	d.reply(ctx, chatID, fmt.Sprintf("%s added to your cart.", p.Name),
		[]chat.Button{{Text: "View cart", Data: "cart"}, {Text: "Keep shopping", Data: "shop"}},
	)
}

func (d *Dispatcher) showCart(ctx context.Context, chatID, userID int64) {
	items, err := d.carts.Items(ctx, userID)
	if err != nil {
		zctx.From(ctx).Error("load cart", zap.Int64("user_id", userID), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if len(items) == 0 {
		d.reply(ctx, chatID, "Your cart is empty.",
			[]chat.Button{{Text: "Shop", Data: "shop"}})
		return
	}

	rows := make([][]chat.Button, 0, len(items)+2)
	for _, it := range items {
		rows = append(rows, []chat.Button{
			{Text: "Remove " + it.Name, Data: fmt.Sprintf("cart_rm:%d", it.ProductID)},
		})
	}
	rows = append(rows,
		[]chat.Button{{Text: "Checkout", Data: "checkout"}, {Text: "Clear", Data: "cart_clear"}},
		[]chat.Button{{Text: "« Menu", Data: "menu"}},
	)
	d.reply(ctx, chatID, renderCart(items), rows...)
}

func (d *Dispatcher) removeFromCart(ctx context.Context, chatID, userID int64, arg string) {
	id, err := parseID(arg)
	if err != nil {
		return
	}
	if err := d.carts.Remove(ctx, userID, id); err != nil {
		zctx.From(ctx).Error("remove from cart", zap.Int64("product_id", id), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.showCart(ctx, chatID, userID)
}

func (d *Dispatcher) clearCart(ctx context.Context, chatID, userID int64) {
	if err := d.carts.Clear(ctx, userID); err != nil {
		zctx.From(ctx).Error("clear cart", zap.Int64("user_id", userID), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, "Cart cleared.", []chat.Button{{Text: "Shop", Data: "shop"}})
}

func (d *Dispatcher) showPaymentMethods(ctx context.Context, chatID int64) {
	methods, err := d.methods.List(ctx)
	if err != nil {
		zctx.From(ctx).Error("list payment methods", zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}

	rows := make([][]chat.Button, 0, len(methods)+2)
	rows = append(rows, []chat.Button{{Text: "Pay with points", Data: "pay:points"}})
	for _, m := range methods {
		rows = append(rows, []chat.Button{{Text: m.Name, Data: fmt.Sprintf("pay:%d", m.ID)}})
	}
	rows = append(rows, []chat.Button{{Text: "« Cart", Data: "cart"}})
	d.reply(ctx, chatID, "How would you like to pay?", rows...)
}

func (d *Dispatcher) checkout(ctx context.Context, chatID, userID int64, arg string) {
	var method *order.Method
	methodName := order.MethodPoints
	if arg != "points" {
		id, err := parseID(arg)
		if err != nil {
			return
		}
		m, err := d.methods.GetByID(ctx, id)
		if err != nil {
			d.reply(ctx, chatID, "That payment method is no longer available.")
			return
		}
		method = m
		methodName = m.Name
	}

	req := order.CheckoutRequest{
		Method:     methodName,
		CouponCode: d.takePendingCoupon(userID),
	}

	rcpt, err := d.orders.Checkout(ctx, userID, req)
	if err != nil {
		d.reply(ctx, chatID, checkoutErrorText(err))
		if !isCheckoutUserError(err) {
			zctx.From(ctx).Error("checkout", zap.Int64("user_id", userID), zap.Error(err))
		}
		return
	}

	if method == nil {
		d.settleWithPoints(ctx, chatID, userID, rcpt)
		return
	}

	d.finishCheckout(ctx, chatID, userID)
	d.reply(ctx, chatID, renderExternalReceipt(rcpt, method))
}

func (d *Dispatcher) settleWithPoints(ctx context.Context, chatID, userID int64, rcpt *order.Receipt) {
	cost, err := d.loyalty.SettleWithPoints(ctx, userID, rcpt)
	if err != nil {
		if errors.Is(err, user.ErrInsufficientPoints) {
			if cErr := d.orders.Cancel(ctx, rcpt.Order.ID); cErr != nil {
				zctx.From(ctx).Error("cancel order", zap.Int64("order_id", rcpt.Order.ID), zap.Error(cErr))
			}
			d.reply(ctx, chatID, "Not enough points for this order.",
				[]chat.Button{{Text: "Earn points", Data: "daily"}, {Text: "« Cart", Data: "cart"}})
			return
		}
		zctx.From(ctx).Error("settle with points", zap.Int64("order_id", rcpt.Order.ID), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}

	d.finishCheckout(ctx, chatID, userID)
	d.reply(ctx, chatID, fmt.Sprintf(
		"Order #%d paid with %d points. Thank you!", rcpt.Order.ID, cost))
}

// finishCheckout clears the cart once the order is safely persisted.
func (d *Dispatcher) finishCheckout(ctx context.Context, chatID, userID int64) {
	if err := d.carts.Clear(ctx, userID); err != nil {
		zctx.From(ctx).Error("clear cart after checkout", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (d *Dispatcher) showOrders(ctx context.Context, chatID, userID int64) {
	orders, err := d.orders.History(ctx, userID, orderHistoryLimit)
	if err != nil {
		zctx.From(ctx).Error("list orders", zap.Int64("user_id", userID), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if len(orders) == 0 {
		d.reply(ctx, chatID, "No orders yet.", []chat.Button{{Text: "Shop", Data: "shop"}})
		return
	}

	d.reply(ctx, chatID, renderOrders(orders), []chat.Button{{Text: "« Menu", Data: "menu"}})
}

func (d *Dispatcher) showAccount(ctx context.Context, chatID int64, u *user.User) {
	d.reply(ctx, chatID, renderAccount(u, d.botName),
		[]chat.Button{{Text: "Daily reward", Data: "daily"}},
		[]chat.Button{{Text: "« Menu", Data: "menu"}},
	)
}

func (d *Dispatcher) claimDaily(ctx context.Context, chatID, userID int64) {
	reward, err := d.loyalty.ClaimDailyReward(ctx, userID)
	if err != nil {
		if errors.Is(err, loyalty.ErrDailyCooldown) {
			d.reply(ctx, chatID, "Already claimed today. Come back tomorrow!")
			return
		}
		zctx.From(ctx).Error("claim daily reward", zap.Int64("user_id", userID), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("+%d points! See you tomorrow.", reward))
}

func (d *Dispatcher) cmdCoupon(ctx context.Context, chatID, userID int64, code string) {
	if code == "" {
		d.reply(ctx, chatID, "Usage: /coupon CODE")
		return
	}

	rule, err := d.coupons.FindByCode(ctx, code)
	if err != nil || !rule.Active {
		d.reply(ctx, chatID, "That coupon code is not valid.")
		return
	}

	d.mu.Lock()
	d.pendingCoupons[userID] = rule.Code
	d.mu.Unlock()

	d.reply(ctx, chatID, fmt.Sprintf(
		"Coupon %s (%s%% off) will be applied to your next checkout.",
		rule.Code, rule.Discount.String()))
}

func (d *Dispatcher) cmdSearch(ctx context.Context, chatID int64, args string) {
	query, filter := parseSearchArgs(args)
	if query == "" {
		d.reply(ctx, chatID, "Usage: /search QUERY [min:5] [max:20] [instock] [sort:price|price_desc|name]")
		return
	}

	products, err := d.products.Search(ctx, query, filter)
	if err != nil {
		zctx.From(ctx).Error("search products", zap.String("query", query), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if len(products) == 0 {
		d.reply(ctx, chatID, "No products match that.")
		return
	}

	rows := make([][]chat.Button, 0, len(products))
	for _, p := range products {
		label := fmt.Sprintf("%s — $%s", p.Name, p.Price.StringFixed(2))
		rows = append(rows, []chat.Button{{Text: label, Data: fmt.Sprintf("prod:%d", p.ID)}})
	}
	d.reply(ctx, chatID, "Found:", rows...)
}

// parseSearchArgs splits filter tokens (min:, max:, instock, sort:) out of
// the search text; everything else stays in the query.
func parseSearchArgs(args string) (string, catalog.SearchFilter) {
	var (
		filter catalog.SearchFilter
		words  []string
	)
	for _, tok := range strings.Fields(args) {
		switch {
		case strings.HasPrefix(tok, "min:"):
			if v, err := decimal.NewFromString(tok[len("min:"):]); err == nil {
				filter.PriceMin = &v
			}
		case strings.HasPrefix(tok, "max:"):
			if v, err := decimal.NewFromString(tok[len("max:"):]); err == nil {
				filter.PriceMax = &v
			}
		case tok == "instock":
			filter.InStockOnly = true
		case strings.HasPrefix(tok, "sort:"):
			filter.Sort = tok[len("sort:"):]
		default:
			words = append(words, tok)
		}
	}
	return strings.Join(words, " "), filter
}

func (d *Dispatcher) takePendingCoupon(userID int64) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	code := d.pendingCoupons[userID]
	delete(d.pendingCoupons, userID)
	return code
}

func mainMenu() [][]chat.Button {
	return [][]chat.Button{
		{{Text: "🛍 Shop", Data: "shop"}, {Text: "🛒 Cart", Data: "cart"}},
		{{Text: "📦 Orders", Data: "orders"}, {Text: "👤 Account", Data: "account"}},
		{{Text: "🎁 Daily reward", Data: "daily"}},
	}
}

func checkoutErrorText(err error) string {
	var oos *order.OutOfStockError
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, order.ErrCheckoutBusy):
		return "A checkout is already in progress, give it a moment."
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return "That coupon code is not valid."
	case errors.As(err, &oos):
		return fmt.Sprintf("Not enough stock for product %d. Adjust your cart.", oos.ProductID)
	default:
		return msgInternalError
	}
}

func isCheckoutUserError(err error) bool {
	var oos *order.OutOfStockError
	return errors.Is(err, order.ErrEmptyCart) ||
		errors.Is(err, order.ErrCheckoutBusy) ||
		errors.Is(err, coupon.ErrInvalidCoupon) ||
		errors.As(err, &oos)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
