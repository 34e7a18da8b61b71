package evaluator

import (
	"github.com/shopspring/decimal"

	"github.com/fandresen/arbitrage-bot/types"
)

// Screen compares two venues' indicative unit prices and returns the
// profitable direction, or DirectionNone when the spread does not
// strictly exceed minSpread.
//
// The spread is measured against the lower price: (high-low)/low.
// DirectionAToB means venue A is overpriced. minSpread must be the
// derived break-even sum (flash-loan fee + trading fee budget +
// safety margin), not an ad hoc constant.
//
// This is a cheap, side-effect-free pre-check that exists only to
// bound quote-call volume; the loan-size optimizer re-validates
// profit exactly before anything is dispatched.
func Screen(priceA, priceB, minSpread decimal.Decimal) types.Direction {
	if priceA.Sign() <= 0 || priceB.Sign() <= 0 {
		return types.DirectionNone
	}

	switch priceA.Cmp(priceB) {
	case 1:
		spread := priceA.Sub(priceB).Div(priceB)
		if spread.GreaterThan(minSpread) {
			return types.DirectionAToB
		}
	case -1:
		spread := priceB.Sub(priceA).Div(priceA)
		if spread.GreaterThan(minSpread) {
			return types.DirectionBToA
		}
	}
	return types.DirectionNone
}

// SpreadPercent returns the absolute relative spread between the two
// prices, in percent, for the audit record.
func SpreadPercent(priceA, priceB decimal.Decimal) decimal.Decimal {
	if priceA.Sign() <= 0 || priceB.Sign() <= 0 {
		return decimal.Zero
	}
	low, high := priceA, priceB
	if low.GreaterThan(high) {
		low, high = high, low
	}
	return high.Sub(low).Div(low).Mul(decimal.NewFromInt(100))
}
