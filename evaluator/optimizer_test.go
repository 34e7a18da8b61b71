package evaluator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

var (
	testLoanToken = types.Token{Address: common.HexToAddress("0x2222222222222222222222222222222222222222"), Decimals: 0, Symbol: "USDT"}
	testBaseToken = types.Token{Address: common.HexToAddress("0x1111111111111111111111111111111111111111"), Decimals: 0, Symbol: "WBNB"}
)

// stubVenue returns quotes from a function and records every amount it
// was asked to price.
type stubVenue struct {
	name  string
	quote func(amountIn *big.Int) (*big.Int, error)
	seen  []*big.Int
}

func (s *stubVenue) Name() string         { return s.name }
func (s *stubVenue) Pool() common.Address { return common.HexToAddress("0x" + s.name) }

func (s *stubVenue) IndicativePrice(state types.PoolState, base, quote types.Token) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubVenue) QuoteExactInput(ctx context.Context, state types.PoolState, req *types.QuoteRequest) (*big.Int, error) {
	s.seen = append(s.seen, new(big.Int).Set(req.AmountIn))
	return s.quote(req.AmountIn)
}

func passthrough(amountIn *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amountIn), nil
}

func testParams() *Params {
	return &Params{
		LoanToken:   testLoanToken,
		BaseToken:   testBaseToken,
		MinLoan:     big.NewInt(1000),
		MaxLoan:     big.NewInt(26000),
		Step:        big.NewInt(5000),
		FlashFeeNum: big.NewInt(9),
		FlashFeeDen: big.NewInt(10000),
	}
}

func TestOptimizeVisitsEveryStepInclusive(t *testing.T) {
	buy := &stubVenue{name: "aa", quote: passthrough}
	sell := &stubVenue{name: "bb", quote: passthrough}

	o := NewOptimizer(zap.NewNop(), nil)
	_, err := o.Optimize(context.Background(), buy, sell, nil, nil, testParams())
	require.NoError(t, err)

	want := []*big.Int{
		big.NewInt(1000), big.NewInt(6000), big.NewInt(11000),
		big.NewInt(16000), big.NewInt(21000), big.NewInt(26000),
	}
	assert.Equal(t, want, buy.seen, "scan must cover min..max inclusive in step increments")
}

func TestOptimizeNetProfit(t *testing.T) {
	buy := &stubVenue{name: "aa", quote: passthrough}
	sell := &stubVenue{name: "bb", quote: func(amountIn *big.Int) (*big.Int, error) {
		// Only the 11000 trial yields more back than it put in.
		if amountIn.Cmp(big.NewInt(11000)) == 0 {
			return big.NewInt(11060), nil
		}
		return new(big.Int).Set(amountIn), nil
	}}

	o := NewOptimizer(zap.NewNop(), nil)
	opp, err := o.Optimize(context.Background(), buy, sell, nil, nil, testParams())
	require.NoError(t, err)
	require.NotNil(t, opp)

	// fee = ceil(11000 * 9/10000) = 10; net = 11060 - 11000 - 10 = 50
	assert.Equal(t, big.NewInt(11000), opp.LoanAmount)
	assert.Equal(t, big.NewInt(10), opp.FlashLoanCost)
	assert.Equal(t, big.NewInt(50), opp.NetProfit)
	assert.True(t, opp.Profitable())
}

func TestOptimizeTieBreaksToLowestLoan(t *testing.T) {
	buy := &stubVenue{name: "aa", quote: passthrough}
	// Every trial nets the same margin over principal plus fee, so the
	// first (lowest) loan size must win.
	sell := &stubVenue{name: "bb", quote: func(amountIn *big.Int) (*big.Int, error) {
		fee := FlashLoanCost(amountIn, big.NewInt(9), big.NewInt(10000))
		out := new(big.Int).Add(amountIn, fee)
		return out.Add(out, big.NewInt(7)), nil
	}}

	o := NewOptimizer(zap.NewNop(), nil)
	opp, err := o.Optimize(context.Background(), buy, sell, nil, nil, testParams())
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, big.NewInt(1000), opp.LoanAmount)
	assert.Equal(t, big.NewInt(7), opp.NetProfit)
}

func TestOptimizeSkipsFailedTrials(t *testing.T) {
	buy := &stubVenue{name: "aa", quote: func(amountIn *big.Int) (*big.Int, error) {
		// The middle of the range has no liquidity.
		if amountIn.Cmp(big.NewInt(11000)) == 0 {
			return new(big.Int), nil
		}
		return new(big.Int).Set(amountIn), nil
	}}
	sell := &stubVenue{name: "bb", quote: func(amountIn *big.Int) (*big.Int, error) {
		return new(big.Int).Add(amountIn, big.NewInt(100)), nil
	}}

	o := NewOptimizer(zap.NewNop(), nil)
	opp, err := o.Optimize(context.Background(), buy, sell, nil, nil, testParams())
	require.NoError(t, err)
	require.NotNil(t, opp)

	// The skipped trial never reached the sell leg; the rest did.
	assert.Len(t, buy.seen, 6)
	assert.Len(t, sell.seen, 5)
	assert.NotEqual(t, big.NewInt(11000), opp.LoanAmount)
}

func TestOptimizeNoLiquidityAnywhere(t *testing.T) {
	dead := func(amountIn *big.Int) (*big.Int, error) { return new(big.Int), nil }
	buy := &stubVenue{name: "aa", quote: dead}
	sell := &stubVenue{name: "bb", quote: dead}

	o := NewOptimizer(zap.NewNop(), nil)
	opp, err := o.Optimize(context.Background(), buy, sell, nil, nil, testParams())
	require.NoError(t, err)
	assert.Nil(t, opp, "no quoted trial means no opportunity, not an error")
}

func TestOptimizeInvalidParams(t *testing.T) {
	p := testParams()
	p.Step = big.NewInt(0)

	o := NewOptimizer(zap.NewNop(), nil)
	_, err := o.Optimize(context.Background(), &stubVenue{name: "aa", quote: passthrough}, &stubVenue{name: "bb", quote: passthrough}, nil, nil, p)
	assert.Error(t, err)
}

func TestFlashLoanCostRounding(t *testing.T) {
	// 10000 * 9/10000 = 9 exactly
	assert.Equal(t, big.NewInt(9), FlashLoanCost(big.NewInt(10000), big.NewInt(9), big.NewInt(10000)))
	// 10001 * 9/10000 = 9.0009 -> rounds up
	assert.Equal(t, big.NewInt(10), FlashLoanCost(big.NewInt(10001), big.NewInt(9), big.NewInt(10000)))
	// zero fee stays zero
	assert.Equal(t, 0, FlashLoanCost(big.NewInt(10000), big.NewInt(0), big.NewInt(1)).Sign())
}
