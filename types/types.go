package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token is an ERC20 token identified by its on-chain address.
// Two tokens are equal iff their addresses are equal.
type Token struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// Equal reports whether two tokens refer to the same contract.
func (t Token) Equal(other Token) bool {
	return t.Address == other.Address
}

// Direction identifies which venue is overpriced and therefore which
// way the round trip runs. DirectionAToB means venue A's price is
// above venue B's: leg 1 buys the base token on venue B, leg 2 sells
// it on venue A.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionAToB
	DirectionBToA
)

func (d Direction) String() string {
	switch d {
	case DirectionAToB:
		return "A->B"
	case DirectionBToA:
		return "B->A"
	default:
		return "none"
	}
}

// PoolState is a snapshot of a pool's pricing state. Snapshots are
// immutable once published; updates replace the whole value.
type PoolState interface {
	BlockNumber() uint64
	ObservedAt() time.Time
}

// V2State is the constant-product pool variant.
type V2State struct {
	Token0   Token
	Token1   Token
	Reserve0 *big.Int
	Reserve1 *big.Int
	Block    uint64
	SeenAt   time.Time
}

func (s *V2State) BlockNumber() uint64   { return s.Block }
func (s *V2State) ObservedAt() time.Time { return s.SeenAt }

// V3State is the concentrated-liquidity pool variant. Token0/Token1
// follow the on-pool canonical ordering (sorted by address).
type V3State struct {
	Token0       Token
	Token1       Token
	SqrtPriceX96 *big.Int
	Tick         int
	Liquidity    *big.Int
	FeeTier      uint32
	Block        uint64
	SeenAt       time.Time
}

func (s *V3State) BlockNumber() uint64   { return s.Block }
func (s *V3State) ObservedAt() time.Time { return s.SeenAt }

// QuoteRequest asks a venue for the output of a single swap.
type QuoteRequest struct {
	TokenIn  Token
	TokenOut Token
	FeeTier  uint32
	AmountIn *big.Int
}

// SwapParams describes one leg of the on-chain round trip as the
// flash-loan contract expects it.
type SwapParams struct {
	TokenIn      common.Address
	TokenOut     common.Address
	FeeTier      uint32
	Exchange     uint8
	AmountOutMin *big.Int
}

// Opportunity is the result of one loan-size scan. Amounts are base
// units of the loan token except NetProfitUSD, which is converted at
// the reporting boundary only.
type Opportunity struct {
	Direction      Direction
	LoanAmount     *big.Int
	Leg1Out        *big.Int
	GrossAmountOut *big.Int
	FlashLoanCost  *big.Int
	NetProfit      *big.Int
	NetProfitUSD   decimal.Decimal
	VenueA         string
	VenueB         string
	Swap1          SwapParams
	Swap2          SwapParams
	FoundAt        time.Time
}

// Profitable reports whether the round trip clears its own costs.
func (o *Opportunity) Profitable() bool {
	return o != nil && o.NetProfit != nil && o.NetProfit.Sign() > 0
}

// Dispatch is the execution instruction handed to the transaction
// executor. AmountOutMin fields carry the slippage floors.
type Dispatch struct {
	Direction  Direction
	LoanAmount *big.Int
	Swap1      SwapParams
	Swap2      SwapParams
}

// PoolUpdate is the message a chain event source pushes to the
// evaluator loop. Exactly one of V2/V3 is set.
type PoolUpdate struct {
	Pool   common.Address
	V2     *V2State
	V3     *V3State
	Block  uint64
	SeenAt time.Time
}

// State returns the update's pool state regardless of variant.
func (u *PoolUpdate) State() PoolState {
	if u.V3 != nil {
		return u.V3
	}
	if u.V2 != nil {
		return u.V2
	}
	return nil
}
