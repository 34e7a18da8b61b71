package evaluator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fandresen/arbitrage-bot/types"
)

func TestScreenBelowThreshold(t *testing.T) {
	// 0.60 over 300.00 is a 0.2% spread: below a 0.24% threshold.
	dir := Screen(decimal.RequireFromString("300.60"), decimal.RequireFromString("300.00"), decimal.RequireFromString("0.0024"))
	assert.Equal(t, types.DirectionNone, dir)
}

func TestScreenAboveThreshold(t *testing.T) {
	// 1.00 over 300.00 is ~0.33%: venue A is overpriced.
	dir := Screen(decimal.RequireFromString("301.00"), decimal.RequireFromString("300.00"), decimal.RequireFromString("0.0024"))
	assert.Equal(t, types.DirectionAToB, dir)

	// Mirrored prices flip the direction.
	dir = Screen(decimal.RequireFromString("300.00"), decimal.RequireFromString("301.00"), decimal.RequireFromString("0.0024"))
	assert.Equal(t, types.DirectionBToA, dir)
}

func TestScreenExactThreshold(t *testing.T) {
	// The comparison is strict: a spread equal to the threshold fails.
	priceA := decimal.RequireFromString("100.24")
	priceB := decimal.RequireFromString("100.00")
	dir := Screen(priceA, priceB, decimal.RequireFromString("0.0024"))
	assert.Equal(t, types.DirectionNone, dir)
}

func TestScreenEqualPrices(t *testing.T) {
	price := decimal.RequireFromString("300.00")
	assert.Equal(t, types.DirectionNone, Screen(price, price, decimal.Zero))
}

func TestScreenNonPositivePrices(t *testing.T) {
	assert.Equal(t, types.DirectionNone, Screen(decimal.Zero, decimal.NewFromInt(300), decimal.Zero))
	assert.Equal(t, types.DirectionNone, Screen(decimal.NewFromInt(300), decimal.Zero, decimal.Zero))
}

func TestSpreadPercentSymmetric(t *testing.T) {
	a := decimal.RequireFromString("301.00")
	b := decimal.RequireFromString("300.00")
	assert.True(t, SpreadPercent(a, b).Equal(SpreadPercent(b, a)))

	// (301-300)/300 * 100
	want := decimal.NewFromInt(1).Div(decimal.NewFromInt(300)).Mul(decimal.NewFromInt(100))
	assert.True(t, SpreadPercent(a, b).Equal(want))
}
