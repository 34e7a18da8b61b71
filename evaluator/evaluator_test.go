package evaluator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/market"
	"github.com/fandresen/arbitrage-bot/reporter"
	"github.com/fandresen/arbitrage-bot/types"
)

var (
	poolA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	poolB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// fakeVenue serves a fixed indicative price and a programmable quote.
type fakeVenue struct {
	name  string
	pool  common.Address
	price decimal.Decimal
	quote func(amountIn *big.Int) (*big.Int, error)
}

func (f *fakeVenue) Name() string         { return f.name }
func (f *fakeVenue) Pool() common.Address { return f.pool }

func (f *fakeVenue) IndicativePrice(state types.PoolState, base, quote types.Token) (decimal.Decimal, error) {
	return f.price, nil
}

func (f *fakeVenue) QuoteExactInput(ctx context.Context, state types.PoolState, req *types.QuoteRequest) (*big.Int, error) {
	return f.quote(req.AmountIn)
}

// memSink collects audit records in memory.
type memSink struct {
	mu   sync.Mutex
	recs []reporter.Record
}

func (m *memSink) Append(rec *reporter.Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, *rec)
	m.mu.Unlock()
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

// countDispatcher counts dispatches.
type countDispatcher struct {
	dispatches []*types.Dispatch
}

func (c *countDispatcher) Dispatch(ctx context.Context, d *types.Dispatch) error {
	c.dispatches = append(c.dispatches, d)
	return nil
}

func freshV2State() *types.V2State {
	return &types.V2State{
		Token0:   testBaseToken,
		Token1:   testLoanToken,
		Reserve0: big.NewInt(1),
		Reserve1: big.NewInt(1),
		Block:    1,
		SeenAt:   time.Now(),
	}
}

type evalFixture struct {
	eval       *Evaluator
	registry   *market.Registry
	sink       *memSink
	dispatcher *countDispatcher
}

func newEvalFixture(t *testing.T, priceA, priceB string, sellQuote func(*big.Int) (*big.Int, error), throttle time.Duration) *evalFixture {
	t.Helper()

	identity := func(amountIn *big.Int) (*big.Int, error) { return new(big.Int).Set(amountIn), nil }
	if sellQuote == nil {
		sellQuote = identity
	}

	venueA := &fakeVenue{name: "venue-a", pool: poolA, price: decimal.RequireFromString(priceA), quote: sellQuote}
	venueB := &fakeVenue{name: "venue-b", pool: poolB, price: decimal.RequireFromString(priceB), quote: identity}

	registry := market.NewRegistry(time.Minute)
	sink := &memSink{}
	dispatcher := &countDispatcher{}
	rep := reporter.New([]reporter.Sink{sink}, dispatcher, nil,
		decimal.NewFromInt(5), decimal.RequireFromString("0.005"), zap.NewNop(), nil)

	eval := New(Config{
		VenueA:          VenueRole{Venue: venueA, ExchangeID: 1, FeeTier: 500},
		VenueB:          VenueRole{Venue: venueB, ExchangeID: 0, FeeTier: 2500},
		BaseToken:       testBaseToken,
		LoanToken:       testLoanToken,
		Registry:        registry,
		Params:          testParams(),
		MinSpread:       decimal.RequireFromString("0.0024"),
		Throttle:        throttle,
		USDPerLoanToken: decimal.NewFromInt(1),
		Reporter:        rep,
		Logger:          zap.NewNop(),
	})

	return &evalFixture{eval: eval, registry: registry, sink: sink, dispatcher: dispatcher}
}

func TestEvaluateSkipsOnMissingState(t *testing.T) {
	f := newEvalFixture(t, "301.00", "300.00", nil, 0)

	// Only pool A is known; pool B has never reported.
	f.registry.Put(poolA, freshV2State())
	f.eval.EvaluateOnce(context.Background())

	assert.Equal(t, 0, f.sink.count(), "a skipped cycle must not write an audit record")
	assert.Empty(t, f.dispatcher.dispatches)
}

func TestEvaluateSkipsOnStaleState(t *testing.T) {
	f := newEvalFixture(t, "301.00", "300.00", nil, 0)

	stale := freshV2State()
	stale.SeenAt = time.Now().Add(-2 * time.Minute)
	f.registry.Put(poolA, stale)
	f.registry.Put(poolB, freshV2State())
	f.eval.EvaluateOnce(context.Background())

	assert.Equal(t, 0, f.sink.count())
}

func TestEvaluateRecordsUnprofitableCycle(t *testing.T) {
	// Spread below threshold: no scan, but still exactly one record.
	f := newEvalFixture(t, "300.60", "300.00", nil, 0)
	f.registry.Put(poolA, freshV2State())
	f.registry.Put(poolB, freshV2State())

	f.eval.EvaluateOnce(context.Background())

	require.Equal(t, 1, f.sink.count())
	rec := f.sink.recs[0]
	assert.True(t, rec.PriceA.Equal(decimal.RequireFromString("300.60")))
	assert.True(t, rec.ProfitAToB.IsZero())
	assert.True(t, rec.ProfitBToA.IsZero())
	assert.Empty(t, f.dispatcher.dispatches)
}

func TestEvaluateDispatchesProfitableCycle(t *testing.T) {
	// Venue A overpriced; selling there returns the input plus 100.
	sell := func(amountIn *big.Int) (*big.Int, error) {
		return new(big.Int).Add(amountIn, big.NewInt(100)), nil
	}
	f := newEvalFixture(t, "301.00", "300.00", sell, 0)
	f.registry.Put(poolA, freshV2State())
	f.registry.Put(poolB, freshV2State())

	f.eval.EvaluateOnce(context.Background())

	require.Equal(t, 1, f.sink.count())
	require.Len(t, f.dispatcher.dispatches, 1)

	d := f.dispatcher.dispatches[0]
	assert.Equal(t, types.DirectionAToB, d.Direction)
	// Leg 1 buys the base token with the loan token on venue B.
	assert.Equal(t, testLoanToken.Address, d.Swap1.TokenIn)
	assert.Equal(t, testBaseToken.Address, d.Swap1.TokenOut)
	assert.Equal(t, uint8(0), d.Swap1.Exchange)
	assert.Equal(t, uint8(1), d.Swap2.Exchange)
	assert.NotNil(t, d.Swap1.AmountOutMin)
	assert.NotNil(t, d.Swap2.AmountOutMin)
}

func TestHandleUpdateThrottleDrops(t *testing.T) {
	f := newEvalFixture(t, "300.60", "300.00", nil, time.Hour)
	f.registry.Put(poolB, freshV2State())

	upd := types.PoolUpdate{Pool: poolA, V2: freshV2State(), Block: 1, SeenAt: time.Now()}
	f.eval.HandleUpdate(context.Background(), upd)
	require.Equal(t, 1, f.sink.count(), "first update runs a cycle")

	// Within the throttle window, the state update still lands but the
	// cycle is dropped, not queued.
	later := freshV2State()
	later.Block = 2
	f.eval.HandleUpdate(context.Background(), types.PoolUpdate{Pool: poolA, V2: later, Block: 2, SeenAt: time.Now()})

	assert.Equal(t, 1, f.sink.count())
	got, ok := f.registry.Get(poolA)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.BlockNumber())
}

func TestEvaluateDeterministic(t *testing.T) {
	sell := func(amountIn *big.Int) (*big.Int, error) {
		return new(big.Int).Add(amountIn, big.NewInt(100)), nil
	}

	run := func() *types.Dispatch {
		f := newEvalFixture(t, "301.00", "300.00", sell, 0)
		f.registry.Put(poolA, freshV2State())
		f.registry.Put(poolB, freshV2State())
		f.eval.EvaluateOnce(context.Background())
		require.Len(t, f.dispatcher.dispatches, 1)
		return f.dispatcher.dispatches[0]
	}

	first := run()
	second := run()
	assert.Equal(t, first.LoanAmount, second.LoanAmount)
	assert.Equal(t, first.Swap1.AmountOutMin, second.Swap1.AmountOutMin)
	assert.Equal(t, first.Swap2.AmountOutMin, second.Swap2.AmountOutMin)
}
