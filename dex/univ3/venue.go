package univ3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

// Venue prices swaps against one concentrated-liquidity pool.
// Indicative prices come from the in-memory sqrt price; executable
// quotes always go through the venue's QuoterV2 contract.
type Venue struct {
	name    string
	pool    common.Address
	feeTier uint32
	quoter  *Quoter
	logger  *zap.Logger
}

// New creates a concentrated-liquidity venue for the given pool.
func New(name string, pool common.Address, feeTier uint32, quoter *Quoter, logger *zap.Logger) *Venue {
	return &Venue{
		name:    name,
		pool:    pool,
		feeTier: feeTier,
		quoter:  quoter,
		logger:  logger,
	}
}

func (v *Venue) Name() string         { return v.name }
func (v *Venue) Pool() common.Address { return v.pool }

// IndicativePrice reads the price of base in quote tokens from the
// last observed sqrt price, oriented against the pool's canonical
// token ordering.
func (v *Venue) IndicativePrice(state types.PoolState, base, quote types.Token) (decimal.Decimal, error) {
	v3, ok := state.(*types.V3State)
	if !ok || v3 == nil {
		return decimal.Zero, types.ErrDataUnavailable
	}

	price1Per0, err := PriceFromSqrtX96(v3.SqrtPriceX96, v3.Token0.Decimals, v3.Token1.Decimals)
	if err != nil {
		return decimal.Zero, err
	}

	switch {
	case base.Equal(v3.Token0) && quote.Equal(v3.Token1):
		return price1Per0, nil
	case base.Equal(v3.Token1) && quote.Equal(v3.Token0):
		if price1Per0.IsZero() {
			return decimal.Zero, types.ErrInsufficientLiquidity
		}
		return decimal.NewFromInt(1).DivRound(price1Per0, pricePrecision), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: pair %s/%s not in pool %s",
			types.ErrDataUnavailable, base.Symbol, quote.Symbol, v.pool.Hex())
	}
}

// QuoteExactInput returns an executable quote from the QuoterV2
// contract. The indicative price is never used here: a trade of real
// size may cross tick boundaries the sqrt price knows nothing about.
func (v *Venue) QuoteExactInput(ctx context.Context, state types.PoolState, req *types.QuoteRequest) (*big.Int, error) {
	if state == nil {
		return nil, types.ErrDataUnavailable
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return new(big.Int), nil
	}

	feeTier := req.FeeTier
	if feeTier == 0 {
		feeTier = v.feeTier
	}
	return v.quoter.QuoteExactInputSingle(ctx, req.TokenIn.Address, req.TokenOut.Address, feeTier, req.AmountIn, state.BlockNumber())
}
