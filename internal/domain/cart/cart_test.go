package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotal(t *testing.T) {
	items := []Item{
		{ProductID: 1, Name: "Spotify", Price: decimal.RequireFromString("19.99"), Quantity: 2},
		{ProductID: 2, Name: "Play $5", Price: decimal.RequireFromString("2.99"), Quantity: 1},
	}

	assert.True(t, decimal.RequireFromString("42.97").Equal(Total(items)))
}

func TestTotal_Empty(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(Total(nil)))
}

func TestItemSubtotal(t *testing.T) {
	it := Item{Price: decimal.RequireFromString("10.50"), Quantity: 3}
	assert.True(t, decimal.RequireFromString("31.50").Equal(it.Subtotal()))
}
