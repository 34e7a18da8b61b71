package univ2

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

// Fee is an exact rational swap fee. Num/Den is the retained share of
// the input, e.g. 997/1000 for the standard 0.3% fee or 9975/10000
// for PancakeSwap V2's 0.25%.
type Fee struct {
	Num int64
	Den int64
}

var (
	// FeeUniswapV2 is the standard 0.3% input fee.
	FeeUniswapV2 = Fee{Num: 997, Den: 1000}
	// FeePancakeV2 is PancakeSwap V2's 0.25% input fee.
	FeePancakeV2 = Fee{Num: 9975, Den: 10000}
)

// FeeFromTier converts a hundredths-of-bip fee tier (3000 = 0.3%) to
// the exact retained-share rational, e.g. 3000 -> 997000/1000000.
func FeeFromTier(feeTier uint32) Fee {
	return Fee{Num: 1_000_000 - int64(feeTier), Den: 1_000_000}
}

// GetAmountOut computes the constant-product swap output:
//
//	floor(amountIn*feeNum*reserveOut / (reserveIn*feeDen + amountIn*feeNum))
//
// The fee multiplier folds into the denominator's amountIn term only,
// never into reserveIn. All arithmetic is integer. Non-positive input
// or empty reserves yield zero output, which callers treat as "no
// liquidity".
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, fee Fee) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 || reserveOut == nil || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(fee.Num))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(fee.Den))
	denominator.Add(denominator, amountInWithFee)
	return numerator.Div(numerator, denominator)
}

// Venue prices swaps against a constant-product pool. Quotes are pure
// reserve math, so the executable quote needs no external call.
type Venue struct {
	name   string
	pool   common.Address
	fee    Fee
	logger *zap.Logger
}

// New creates a constant-product venue for the given pool.
func New(name string, pool common.Address, fee Fee, logger *zap.Logger) *Venue {
	return &Venue{
		name:   name,
		pool:   pool,
		fee:    fee,
		logger: logger,
	}
}

func (v *Venue) Name() string         { return v.name }
func (v *Venue) Pool() common.Address { return v.pool }

// reserves resolves the swap direction against the pool's canonical
// token ordering before any reserve lookup.
func (v *Venue) reserves(state *types.V2State, tokenIn, tokenOut types.Token) (in, out *big.Int, err error) {
	switch {
	case tokenIn.Equal(state.Token0) && tokenOut.Equal(state.Token1):
		return state.Reserve0, state.Reserve1, nil
	case tokenIn.Equal(state.Token1) && tokenOut.Equal(state.Token0):
		return state.Reserve1, state.Reserve0, nil
	default:
		return nil, nil, fmt.Errorf("%w: pair %s/%s not in pool %s",
			types.ErrDataUnavailable, tokenIn.Symbol, tokenOut.Symbol, v.pool.Hex())
	}
}

// IndicativePrice quotes one whole base token through the pool and
// formats the output in quote-token display units.
func (v *Venue) IndicativePrice(state types.PoolState, base, quote types.Token) (decimal.Decimal, error) {
	v2, ok := state.(*types.V2State)
	if !ok || v2 == nil {
		return decimal.Zero, types.ErrDataUnavailable
	}

	reserveIn, reserveOut, err := v.reserves(v2, base, quote)
	if err != nil {
		return decimal.Zero, err
	}

	oneUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(base.Decimals)), nil)
	amountOut := GetAmountOut(oneUnit, reserveIn, reserveOut, v.fee)
	if amountOut.Sign() == 0 {
		return decimal.Zero, types.ErrInsufficientLiquidity
	}
	return decimal.NewFromBigInt(amountOut, -int32(quote.Decimals)), nil
}

// QuoteExactInput returns the executable constant-product output.
func (v *Venue) QuoteExactInput(ctx context.Context, state types.PoolState, req *types.QuoteRequest) (*big.Int, error) {
	v2, ok := state.(*types.V2State)
	if !ok || v2 == nil {
		return nil, types.ErrDataUnavailable
	}

	reserveIn, reserveOut, err := v.reserves(v2, req.TokenIn, req.TokenOut)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(req.AmountIn, reserveIn, reserveOut, v.fee), nil
}
