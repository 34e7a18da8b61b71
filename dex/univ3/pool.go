package univ3

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/fandresen/arbitrage-bot/types"
)

const pricePrecision = 18

// PriceFromSqrtX96 converts a pool's sqrtPriceX96 into the price of
// token1 per token0 in display units: (sqrtPriceX96 / 2^96)^2
// adjusted by 10^(dec0-dec1).
//
// This is an indicative price only. It is tick-unaware, so it is
// valid for screening but never for sizing a trade.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, dec0, dec1 uint8) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, types.ErrDataUnavailable
	}

	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Lsh(big.NewInt(1), 192)
	if dec0 >= dec1 {
		num.Mul(num, pow10(int64(dec0-dec1)))
	} else {
		den.Mul(den, pow10(int64(dec1-dec0)))
	}

	return decimal.NewFromBigRat(new(big.Rat).SetFrac(num, den), pricePrecision), nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
