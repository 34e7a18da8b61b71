package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/dex"
	"github.com/fandresen/arbitrage-bot/market"
	"github.com/fandresen/arbitrage-bot/reporter"
	"github.com/fandresen/arbitrage-bot/types"
	"github.com/fandresen/arbitrage-bot/utils/metrics"
)

// VenueRole carries the per-venue constants the dispatch instruction
// needs: the exchange id the flash-loan contract switches on and the
// fee tier of that venue's pool.
type VenueRole struct {
	Venue      dex.Venue
	ExchangeID uint8
	FeeTier    uint32
}

// Config wires one evaluator pipeline.
type Config struct {
	VenueA VenueRole
	VenueB VenueRole

	BaseToken types.Token
	LoanToken types.Token

	Registry *market.Registry
	Params   *Params

	// MinSpread is the derived break-even spread:
	// flash-loan fee + trading fee budget + safety margin.
	MinSpread decimal.Decimal

	// Throttle is the minimum interval between cycle starts. Requests
	// arriving earlier are dropped, not queued.
	Throttle time.Duration

	// USDPerLoanToken converts loan-token display units to USD at the
	// reporting boundary (1 for USD-pegged loan tokens).
	USDPerLoanToken decimal.Decimal

	Reporter *reporter.Reporter
	Logger   *zap.Logger
	Metrics  *metrics.Evaluator
}

// Evaluator owns the evaluation pipeline state. Cycles are serialized:
// the single Run loop is the only caller, so there is never more than
// one cycle in flight.
type Evaluator struct {
	cfg       Config
	optimizer *Optimizer
	lastCycle time.Time
}

// New creates an evaluator.
func New(cfg Config) *Evaluator {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewEvaluator("evaluator")
	}
	return &Evaluator{
		cfg:       cfg,
		optimizer: NewOptimizer(cfg.Logger, cfg.Metrics),
	}
}

// Run consumes pool updates until the context is cancelled or the
// channel closes. Updates are applied serially; the evaluator never
// mutates shared state from more than one goroutine.
func (e *Evaluator) Run(ctx context.Context, updates <-chan types.PoolUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			e.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate applies a pool-state update and requests an evaluation
// cycle. The state replacement always happens; the cycle itself is
// dropped when the throttle interval has not elapsed since the last
// cycle started.
func (e *Evaluator) HandleUpdate(ctx context.Context, upd types.PoolUpdate) {
	if state := upd.State(); state != nil {
		e.cfg.Registry.Put(upd.Pool, state)
	}

	now := time.Now()
	if e.cfg.Throttle > 0 && now.Sub(e.lastCycle) < e.cfg.Throttle {
		e.cfg.Metrics.CyclesThrottled.Inc()
		return
	}
	e.lastCycle = now
	e.EvaluateOnce(ctx)
}

// EvaluateOnce runs a single evaluation cycle against the current
// registry contents. Missing or stale pool state skips the cycle
// without writing a record; every priced cycle appends exactly one.
func (e *Evaluator) EvaluateOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.cfg.Metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	stateA, err := e.cfg.Registry.Fresh(e.cfg.VenueA.Venue.Pool(), start)
	if err != nil {
		e.skipCycle(e.cfg.VenueA.Venue, err)
		return
	}
	stateB, err := e.cfg.Registry.Fresh(e.cfg.VenueB.Venue.Pool(), start)
	if err != nil {
		e.skipCycle(e.cfg.VenueB.Venue, err)
		return
	}

	priceA, err := e.cfg.VenueA.Venue.IndicativePrice(stateA, e.cfg.BaseToken, e.cfg.LoanToken)
	if err != nil {
		e.skipCycle(e.cfg.VenueA.Venue, err)
		return
	}
	priceB, err := e.cfg.VenueB.Venue.IndicativePrice(stateB, e.cfg.BaseToken, e.cfg.LoanToken)
	if err != nil {
		e.skipCycle(e.cfg.VenueB.Venue, err)
		return
	}

	e.cfg.Metrics.CyclesTotal.Inc()
	spread := SpreadPercent(priceA, priceB)
	e.cfg.Metrics.SpreadPercent.Set(spread.InexactFloat64())

	rec := &reporter.Record{
		Timestamp:     start,
		PriceA:        priceA,
		PriceB:        priceB,
		ProfitAToB:    decimal.Zero,
		ProfitBToA:    decimal.Zero,
		SpreadPercent: spread,
		LoanAmount:    decimal.Zero,
	}

	var best *types.Opportunity
	if dir := Screen(priceA, priceB, e.cfg.MinSpread); dir != types.DirectionNone {
		e.cfg.Logger.Debug("spread passed screen",
			zap.String("direction", dir.String()),
			zap.String("price_a", priceA.StringFixed(4)),
			zap.String("price_b", priceB.StringFixed(4)))

		// Both directions are re-validated exactly; the screener only
		// decided the search was worth paying for.
		oppAB := e.optimizeDirection(ctx, types.DirectionAToB, stateA, stateB)
		oppBA := e.optimizeDirection(ctx, types.DirectionBToA, stateA, stateB)

		if oppAB != nil {
			rec.ProfitAToB = oppAB.NetProfitUSD
		}
		if oppBA != nil {
			rec.ProfitBToA = oppBA.NetProfitUSD
		}

		best = oppAB
		if best == nil || (oppBA != nil && oppBA.NetProfit.Cmp(best.NetProfit) > 0) {
			best = oppBA
		}
	} else {
		e.cfg.Logger.Debug("spread below threshold",
			zap.String("price_a", priceA.StringFixed(4)),
			zap.String("price_b", priceB.StringFixed(4)),
			zap.String("spread_percent", spread.StringFixed(3)))
	}

	if best != nil {
		rec.LoanAmount = decimal.NewFromBigInt(best.LoanAmount, -int32(e.cfg.LoanToken.Decimals))
	}
	e.cfg.Reporter.Report(ctx, rec, best)
}

// optimizeDirection runs the loan-size scan for one direction.
// DirectionAToB means venue A is overpriced: leg 1 buys the base
// token on venue B, leg 2 sells it on venue A.
func (e *Evaluator) optimizeDirection(ctx context.Context, dir types.Direction, stateA, stateB types.PoolState) *types.Opportunity {
	buy, sell := e.cfg.VenueB, e.cfg.VenueA
	buyState, sellState := stateB, stateA
	if dir == types.DirectionBToA {
		buy, sell = e.cfg.VenueA, e.cfg.VenueB
		buyState, sellState = stateA, stateB
	}

	opp, err := e.optimizer.Optimize(ctx, buy.Venue, sell.Venue, buyState, sellState, e.cfg.Params)
	if err != nil {
		// Per-direction failures are absorbed; the other direction and
		// the audit record still proceed.
		e.cfg.Logger.Warn("loan-size scan failed",
			zap.String("direction", dir.String()),
			zap.Error(err))
		return nil
	}
	if opp == nil {
		return nil
	}

	opp.Direction = dir
	opp.VenueA = e.cfg.VenueA.Venue.Name()
	opp.VenueB = e.cfg.VenueB.Venue.Name()
	opp.NetProfitUSD = decimal.NewFromBigInt(opp.NetProfit, -int32(e.cfg.LoanToken.Decimals)).Mul(e.cfg.USDPerLoanToken)
	opp.Swap1 = types.SwapParams{
		TokenIn:  e.cfg.LoanToken.Address,
		TokenOut: e.cfg.BaseToken.Address,
		FeeTier:  buy.FeeTier,
		Exchange: buy.ExchangeID,
	}
	opp.Swap2 = types.SwapParams{
		TokenIn:  e.cfg.BaseToken.Address,
		TokenOut: e.cfg.LoanToken.Address,
		FeeTier:  sell.FeeTier,
		Exchange: sell.ExchangeID,
	}
	return opp
}

func (e *Evaluator) skipCycle(venue dex.Venue, err error) {
	reason := "error"
	switch {
	case errors.Is(err, types.ErrDataUnavailable):
		reason = "missing_state"
	case errors.Is(err, types.ErrStaleState):
		reason = "stale_state"
	case errors.Is(err, types.ErrInsufficientLiquidity):
		reason = "no_liquidity"
	}
	e.cfg.Metrics.CyclesSkipped.WithLabelValues(reason).Inc()
	e.cfg.Logger.Debug("evaluation cycle skipped",
		zap.String("venue", venue.Name()),
		zap.String("reason", reason),
		zap.Error(err))
}
