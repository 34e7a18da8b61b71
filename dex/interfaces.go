package dex

import (
	"bytes"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fandresen/arbitrage-bot/types"
)

// Venue is one monitored liquidity pool on one exchange.
//
// IndicativePrice is a fast, tick-unaware price read suitable only
// for screening. QuoteExactInput is the executable quote; it is the
// only quote the optimizer may size a trade on.
type Venue interface {
	// Name returns the venue name for logging and records.
	Name() string

	// Pool returns the pool contract address the venue prices from.
	Pool() common.Address

	// IndicativePrice returns the price of one base token in quote
	// tokens from the given state.
	IndicativePrice(state types.PoolState, base, quote types.Token) (decimal.Decimal, error)

	// QuoteExactInput returns the exact output for req.AmountIn. A
	// zero result means "no liquidity" and is not an error.
	QuoteExactInput(ctx context.Context, state types.PoolState, req *types.QuoteRequest) (*big.Int, error)
}

// SortTokens returns the pair in the canonical on-pool ordering
// (ascending by address bytes). The result is stable regardless of
// argument order.
func SortTokens(a, b types.Token) (types.Token, types.Token) {
	if bytes.Compare(a.Address.Bytes(), b.Address.Bytes()) <= 0 {
		return a, b
	}
	return b, a
}
