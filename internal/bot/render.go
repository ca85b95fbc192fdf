package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shop-bot/internal/domain/cart"
	"shop-bot/internal/domain/catalog"
	"shop-bot/internal/domain/order"
	"shop-bot/internal/domain/user"
)

func renderProduct(p *catalog.Product, dzdRate decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n$%s", p.Name, p.Price.StringFixed(2))
	if dzdRate.IsPositive() {
		fmt.Fprintf(&b, " / %s DZD", p.Price.Mul(dzdRate).StringFixed(2))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\n\n%s", p.Description)
	}
	if p.Stock <= 0 {
		b.WriteString("\n\n⚠️ Out of stock")
	} else if p.Stock <= 5 {
		fmt.Fprintf(&b, "\n\nOnly %d left!", p.Stock)
	}
	if p.FileURL != "" {
		fmt.Fprintf(&b, "\n%s", p.FileURL)
	}
	return b.String()
}

func renderCart(items []cart.Item) string {
	var b strings.Builder
	b.WriteString("Your cart:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "\n%s ×%d — $%s", it.Name, it.Quantity, it.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "\n\nTotal: $%s", cart.Total(items).StringFixed(2))
	return b.String()
}

func renderOrders(orders []order.Order) string {
	var b strings.Builder
	b.WriteString("Your orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n#%d — $%s — %s — %s",
			o.ID, o.Total.StringFixed(2), o.Status, o.CreatedAt.Format("2006-01-02"))
	}
	return b.String()
}

func renderAccount(u *user.User, botName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n\nPoints: %d\nReferrals: %d\n\nYour referral link:\nhttps://t.me/%s?start=ref_%s",
		u.FirstName, u.Points, u.Referrals, botName, u.RefCode)
	return b.String()
}

func renderExternalReceipt(rcpt *order.Receipt, m *order.Method) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d placed!\n", rcpt.Order.ID)
	if rcpt.CouponCode != "" {
		fmt.Fprintf(&b, "\nSubtotal: $%s\nCoupon %s applied.", rcpt.Subtotal.StringFixed(2), rcpt.CouponCode)
	}
	fmt.Fprintf(&b, "\nTotal due: $%s\n\nPay via %s:\n%s\n\nInclude this reference with your payment:\n%s",
		rcpt.Total.StringFixed(2), m.Name, m.Details, rcpt.PaymentCode)
	b.WriteString("\n\nAn admin will confirm your payment shortly.")
	return b.String()
}

func helpText(staff bool, adminHandle string) string {
	var b strings.Builder
	b.WriteString(`Commands:
/shop — browse the catalog
/cart — view your cart
/checkout — place an order
/orders — order history
/account — points and referral link
/daily — claim the daily reward
/coupon CODE — apply a coupon
/search QUERY — find products`)
	if staff {
		b.WriteString(`

Admin:
/addproduct name|price|stock|category|subcategory|description
/draftproduct a short idea to draft with AI
/editproduct id field value
/delproduct id
/addmethod name|details
/delmethod id
/addcoupon CODE PERCENT
/togglecoupon CODE on|off
/delcoupon CODE
/pending — orders awaiting verification
/verify PAYMENT_CODE approve|reject
/setrole user_id role
/addpoints user_id delta
/stats`)
	}
	if adminHandle != "" {
		fmt.Fprintf(&b, "\n\nNeed help? Contact @%s", adminHandle)
	}
	return b.String()
}
