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

	"shop-bot/internal/assistant"
	"shop-bot/internal/domain/catalog"
	"shop-bot/internal/domain/coupon"
	"shop-bot/internal/domain/order"
	"shop-bot/internal/domain/user"
)

// handleAdminCommand dispatches staff commands. It reports false when the
// command is not a known admin command.
func (d *Dispatcher) handleAdminCommand(ctx context.Context, chatID int64, u *user.User, cmd, args string) bool {
	switch cmd {
	case "/addproduct":
		d.adminAddProduct(ctx, chatID, args)
	case "/draftproduct":
		d.adminDraftProduct(ctx, chatID, args)
	case "/editproduct":
		d.adminEditProduct(ctx, chatID, args)
	case "/delproduct":
		d.adminDeleteProduct(ctx, chatID, args)
	case "/addmethod":
		d.adminAddMethod(ctx, chatID, args)
	case "/delmethod":
		d.adminDeleteMethod(ctx, chatID, args)
	case "/addcoupon":
		d.adminAddCoupon(ctx, chatID, args)
	case "/togglecoupon":
		d.adminToggleCoupon(ctx, chatID, args)
	case "/delcoupon":
		d.adminDeleteCoupon(ctx, chatID, args)
	case "/pending":
		d.adminPendingOrders(ctx, chatID)
	case "/verify":
		d.adminVerifyPayment(ctx, chatID, args)
	case "/setrole":
		d.adminSetRole(ctx, chatID, u, args)
	case "/addpoints":
		d.adminAddPoints(ctx, chatID, args)
	case "/stats":
		d.adminStats(ctx, chatID)
	default:
		return false
	}
	return true
}

func (d *Dispatcher) adminAddProduct(ctx context.Context, chatID int64, args string) {
	fields := strings.Split(args, "|")
	if len(fields) < 3 {
		d.reply(ctx, chatID, "Usage: /addproduct name|price|stock|category|subcategory|description")
		return
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	price, err := decimal.NewFromString(fields[1])
	if err != nil || price.IsNegative() {
		d.reply(ctx, chatID, "Price must be a non-negative number.")
		return
	}
	stock, err := strconv.Atoi(fields[2])
	if err != nil || stock < 0 {
		d.reply(ctx, chatID, "Stock must be a non-negative integer.")
		return
	}

	p := &catalog.Product{Name: fields[0], Price: price, Stock: stock}
	if len(fields) > 3 {
		p.Category = fields[3]
	}
	if len(fields) > 4 {
		p.Subcategory = fields[4]
	}
	if len(fields) > 5 {
		p.Description = fields[5]
	}

	id, err := d.products.Create(ctx, p)
	if err != nil {
		zctx.From(ctx).Error("create product", zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Product #%d created.", id))
}

func (d *Dispatcher) adminDraftProduct(ctx context.Context, chatID int64, idea string) {
	if idea == "" {
		d.reply(ctx, chatID, "Usage: /draftproduct a short idea to draft with AI")
		return
	}

	draft, err := d.drafter.Draft(ctx, idea)
	if err != nil {
		if errors.Is(err, assistant.ErrDisabled) {
			d.reply(ctx, chatID, "The AI assistant is not configured.")
			return
		}
		zctx.From(ctx).Error("draft product", zap.Error(err))
		d.reply(ctx, chatID, "Drafting failed, add the product manually.")
		return
	}

	d.reply(ctx, chatID, fmt.Sprintf(
		"Draft ready. Send it with:\n/addproduct %s|%s|10|%s|%s|%s",
		draft.Name, draft.Price.StringFixed(2), draft.Category, draft.Subcategory, draft.Description))
}

func (d *Dispatcher) adminEditProduct(ctx context.Context, chatID int64, args string) {
	parts := strings.SplitN(args, " ", 3)
	if len(parts) < 3 {
		d.reply(ctx, chatID, "Usage: /editproduct id field value\nFields: name, price, stock, category, subcategory, description, file_url")
		return
	}

	id, err := parseID(parts[0])
	if err != nil {
		d.reply(ctx, chatID, "Product id must be a number.")
		return
	}

	field, value := parts[1], parts[2]
	var upd catalog.Update
	switch field {
	case "name":
		upd.Name = &value
	case "price":
		price, err := decimal.NewFromString(value)
		if err != nil || price.IsNegative() {
			d.reply(ctx, chatID, "Price must be a non-negative number.")
			return
		}
		upd.Price = &price
	case "stock":
		stock, err := strconv.Atoi(value)
		if err != nil || stock < 0 {
			d.reply(ctx, chatID, "Stock must be a non-negative integer.")
			return
		}
		upd.Stock = &stock
	case "category":
		upd.Category = &value
	case "subcategory":
		upd.Subcategory = &value
	case "description":
		upd.Description = &value
	case "file_url":
		upd.FileURL = &value
	default:
		d.reply(ctx, chatID, "Unknown field: "+field)
		return
	}

	if err := d.products.Update(ctx, id, upd); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			d.reply(ctx, chatID, "No such product.")
			return
		}
		zctx.From(ctx).Error("update product", zap.Int64("product_id", id), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Product #%d updated.", id))
}

func (d *Dispatcher) adminDeleteProduct(ctx context.Context, chatID int64, args string) {
	id, err := parseID(args)
	if err != nil {
		d.reply(ctx, chatID, "Usage: /delproduct id")
		return
	}
	if err := d.products.Delete(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			d.reply(ctx, chatID, "No such product.")
			return
		}
		zctx.From(ctx).Error("delete product", zap.Int64("product_id", id), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Product #%d deleted.", id))
}

func (d *Dispatcher) adminAddMethod(ctx context.Context, chatID int64, args string) {
	name, details, ok := strings.Cut(args, "|")
	if !ok || strings.TrimSpace(name) == "" {
		d.reply(ctx, chatID, "Usage: /addmethod name|payment instructions")
		return
	}

	id, err := d.methods.Create(ctx, &order.Method{
		Name:    strings.TrimSpace(name),
		Details: strings.TrimSpace(details),
	})
	if err != nil {
		zctx.From(ctx).Error("create payment method", zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Payment method #%d added.", id))
}

func (d *Dispatcher) adminDeleteMethod(ctx context.Context, chatID int64, args string) {
	id, err := parseID(args)
	if err != nil {
		d.reply(ctx, chatID, "Usage: /delmethod id")
		return
	}
	if err := d.methods.Delete(ctx, id); err != nil {
		d.reply(ctx, chatID, "No such payment method.")
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Payment method #%d removed.", id))
}

func (d *Dispatcher) adminAddCoupon(ctx context.Context, chatID int64, args string) {
	code, pct, ok := strings.Cut(args, " ")
	if !ok {
		d.reply(ctx, chatID, "Usage: /addcoupon CODE PERCENT")
		return
	}

	discount, err := decimal.NewFromString(strings.TrimSpace(pct))
	if err != nil || discount.LessThanOrEqual(decimal.Zero) || discount.GreaterThan(decimal.NewFromInt(100)) {
		d.reply(ctx, chatID, "Discount must be between 0 and 100.")
		return
	}

	rule := &coupon.Rule{
		Code:     strings.ToUpper(strings.TrimSpace(code)),
		Discount: discount,
		Active:   true,
	}
	if err := d.coupons.Upsert(ctx, rule); err != nil {
		zctx.From(ctx).Error("upsert coupon", zap.String("code", rule.Code), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if d.couponFilter != nil {
		d.couponFilter.Observe(rule.Code)
	}
	d.reply(ctx, chatID, fmt.Sprintf("Coupon %s (%s%% off) is live.", rule.Code, discount.String()))
}

func (d *Dispatcher) adminToggleCoupon(ctx context.Context, chatID int64, args string) {
	code, state, ok := strings.Cut(args, " ")
	if !ok || (state != "on" && state != "off") {
		d.reply(ctx, chatID, "Usage: /togglecoupon CODE on|off")
		return
	}

	if err := d.coupons.SetActive(ctx, strings.TrimSpace(code), state == "on"); err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			d.reply(ctx, chatID, "No such coupon.")
			return
		}
		zctx.From(ctx).Error("toggle coupon", zap.String("code", code), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Coupon %s is now %s.", strings.ToUpper(code), state))
}

func (d *Dispatcher) adminVerifyPayment(ctx context.Context, chatID int64, args string) {
	code, verdict, ok := strings.Cut(args, " ")
	if !ok || (verdict != "approve" && verdict != "reject") {
		d.reply(ctx, chatID, "Usage: /verify PAYMENT_CODE approve|reject")
		return
	}

	p, err := d.loyalty.ConfirmPayment(ctx, strings.TrimSpace(code), verdict == "approve")
	if err != nil {
		d.reply(ctx, chatID, "Payment not found or could not be updated.")
		zctx.From(ctx).Warn("verify payment", zap.String("code", code), zap.Error(err))
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Payment for order #%d marked %s.", p.OrderID, p.Status))
}

func (d *Dispatcher) adminSetRole(ctx context.Context, chatID int64, actor *user.User, args string) {
	if actor.Role != user.RoleOwner {
		d.reply(ctx, chatID, "Only the owner can change roles.")
		return
	}

	idStr, role, ok := strings.Cut(args, " ")
	if !ok || (role != user.RoleUser && role != user.RoleAdmin) {
		d.reply(ctx, chatID, "Usage: /setrole user_id user|admin")
		return
	}
	id, err := parseID(idStr)
	if err != nil {
		d.reply(ctx, chatID, "User id must be a number.")
		return
	}

	if err := d.users.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			d.reply(ctx, chatID, "No such user.")
			return
		}
		zctx.From(ctx).Error("update role", zap.Int64("user_id", id), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("User %d is now %s.", id, role))
}

func (d *Dispatcher) adminAddPoints(ctx context.Context, chatID int64, args string) {
	idStr, deltaStr, ok := strings.Cut(args, " ")
	if !ok {
		d.reply(ctx, chatID, "Usage: /addpoints user_id delta")
		return
	}
	id, err := parseID(idStr)
	if err != nil {
		d.reply(ctx, chatID, "User id must be a number.")
		return
	}
	delta, err := strconv.ParseInt(deltaStr, 10, 64)
	if err != nil || delta == 0 {
		d.reply(ctx, chatID, "Delta must be a non-zero integer.")
		return
	}

	if err := d.loyalty.AdjustPoints(ctx, id, delta); err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			d.reply(ctx, chatID, "No such user.")
		case errors.Is(err, user.ErrInsufficientPoints):
			d.reply(ctx, chatID, "The user's balance cannot go negative.")
		default:
			zctx.From(ctx).Error("adjust points", zap.Int64("user_id", id), zap.Error(err))
			d.reply(ctx, chatID, msgInternalError)
		}
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Adjusted points of user %d by %+d.", id, delta))
}

func (d *Dispatcher) adminDeleteCoupon(ctx context.Context, chatID int64, args string) {
	code := strings.ToUpper(strings.TrimSpace(args))
	if code == "" {
		d.reply(ctx, chatID, "Usage: /delcoupon CODE")
		return
	}

	if err := d.coupons.Delete(ctx, code); err != nil {
		if errors.Is(err, coupon.ErrInvalidCoupon) {
			d.reply(ctx, chatID, "No such coupon.")
			return
		}
		zctx.From(ctx).Error("delete coupon", zap.String("code", code), zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	d.reply(ctx, chatID, fmt.Sprintf("Coupon %s deleted.", code))
}

func (d *Dispatcher) adminPendingOrders(ctx context.Context, chatID int64) {
	pending, err := d.orders.Pending(ctx, 20)
	if err != nil {
		zctx.From(ctx).Error("list pending orders", zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}
	if len(pending) == 0 {
		d.reply(ctx, chatID, "No orders are waiting for verification.")
		return
	}

	var b strings.Builder
	b.WriteString("Orders awaiting verification:\n")
	for _, p := range pending {
		fmt.Fprintf(&b, "\nOrder #%d by user %d\n  $%s via %s, code %s\n",
			p.ID, p.UserID, p.Total.StringFixed(2), p.PaymentMethod, p.PaymentCode)
	}
	b.WriteString("\nSettle with /verify CODE approve|reject")
	d.reply(ctx, chatID, b.String())
}

func (d *Dispatcher) adminStats(ctx context.Context, chatID int64) {
	sum, err := d.stats.Summary(ctx)
	if err != nil {
		zctx.From(ctx).Error("load stats summary", zap.Error(err))
		d.reply(ctx, chatID, msgInternalError)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Shop stats\n\nUsers: %d (%d active this week)\nOrders: %d\nRevenue: $%s\n",
		sum.Users, sum.ActiveUsers, sum.Orders, sum.TotalSales.StringFixed(2))

	if products, err := d.stats.TopProducts(ctx, 5); err == nil && len(products) > 0 {
		b.WriteString("\nTop products:\n")
		for i, p := range products {
			fmt.Fprintf(&b, "%d. %s, %d sold\n", i+1, p.Name, p.Units)
		}
	}
	if buyers, err := d.stats.TopBuyers(ctx, 5); err == nil && len(buyers) > 0 {
		b.WriteString("\nTop buyers:\n")
		for i, u := range buyers {
			fmt.Fprintf(&b, "%d. %s, $%s\n", i+1, u.FirstName, u.Spent.StringFixed(2))
		}
	}
	if referrers, err := d.stats.TopReferrers(ctx, 5); err == nil && len(referrers) > 0 {
		b.WriteString("\nTop referrers:\n")
		for i, u := range referrers {
			fmt.Fprintf(&b, "%d. %s, %d invited\n", i+1, u.FirstName, u.Referrals)
		}
	}

	d.reply(ctx, chatID, b.String())
}
