package reporter

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
	"github.com/fandresen/arbitrage-bot/utils/metrics"
)

// Record is one audit-trail row. Every evaluation cycle produces
// exactly one, profitable or not.
type Record struct {
	Timestamp     time.Time
	PriceA        decimal.Decimal
	PriceB        decimal.Decimal
	ProfitAToB    decimal.Decimal
	ProfitBToA    decimal.Decimal
	SpreadPercent decimal.Decimal
	LoanAmount    decimal.Decimal
}

// Sink is an append-only record store with at-least-once semantics:
// duplicate rows on retry are acceptable, lost rows are not.
type Sink interface {
	Append(rec *Record) error
	Close() error
}

// Dispatcher turns an execution instruction into an on-chain
// transaction. The reporter's contract with it ends at the hand-off.
type Dispatcher interface {
	Dispatch(ctx context.Context, d *types.Dispatch) error
}

// Notifier delivers fire-and-forget human-readable alerts.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// Reporter appends every evaluation result to the audit sinks and
// hands profitable opportunities to the executor.
type Reporter struct {
	sinks        []Sink
	dispatcher   Dispatcher
	notifier     Notifier
	thresholdUSD decimal.Decimal
	slippage     decimal.Decimal
	logger       *zap.Logger
	metrics      *metrics.Evaluator
}

// New creates a reporter. dispatcher and notifier may be nil to
// disable dispatching (audit-only mode).
func New(sinks []Sink, dispatcher Dispatcher, notifier Notifier, thresholdUSD, slippageTolerance decimal.Decimal, logger *zap.Logger, m *metrics.Evaluator) *Reporter {
	if m == nil {
		m = metrics.NewEvaluator("reporter")
	}
	return &Reporter{
		sinks:        sinks,
		dispatcher:   dispatcher,
		notifier:     notifier,
		thresholdUSD: thresholdUSD,
		slippage:     slippageTolerance,
		logger:       logger,
		metrics:      m,
	}
}

// SlippageFloor returns floor(quoted * (1 - tolerance)). Rounding is
// always down so the on-chain execution reverts rather than accepting
// less than intended.
func SlippageFloor(quoted *big.Int, tolerance decimal.Decimal) *big.Int {
	if quoted == nil || quoted.Sign() <= 0 {
		return new(big.Int)
	}
	floor := decimal.NewFromBigInt(quoted, 0).Mul(decimal.NewFromInt(1).Sub(tolerance))
	return floor.BigInt()
}

// Report appends the audit record to every sink, then dispatches the
// opportunity if its net profit exceeds the USD threshold. The append
// happens on every path, including "no opportunity"; a sink failure
// is logged and never blocks the remaining sinks or the dispatch.
func (r *Reporter) Report(ctx context.Context, rec *Record, opp *types.Opportunity) {
	for _, sink := range r.sinks {
		if err := sink.Append(rec); err != nil {
			r.logger.Error("failed to append audit record", zap.Error(err))
		}
	}

	if opp == nil {
		return
	}
	if !opp.NetProfitUSD.GreaterThan(r.thresholdUSD) {
		r.logger.Info("no profitable opportunity",
			zap.String("direction", opp.Direction.String()),
			zap.String("best_net_profit_usd", opp.NetProfitUSD.StringFixed(4)))
		return
	}

	r.metrics.Opportunities.Inc()
	r.metrics.BestNetProfitUSD.Set(opp.NetProfitUSD.InexactFloat64())

	dispatch := &types.Dispatch{
		Direction:  opp.Direction,
		LoanAmount: opp.LoanAmount,
		Swap1:      opp.Swap1,
		Swap2:      opp.Swap2,
	}
	dispatch.Swap1.AmountOutMin = SlippageFloor(opp.Leg1Out, r.slippage)
	dispatch.Swap2.AmountOutMin = SlippageFloor(opp.GrossAmountOut, r.slippage)

	r.logger.Info("dispatching opportunity",
		zap.String("direction", opp.Direction.String()),
		zap.String("loan_amount", opp.LoanAmount.String()),
		zap.String("net_profit_usd", opp.NetProfitUSD.StringFixed(4)))

	if r.dispatcher != nil {
		if err := r.dispatcher.Dispatch(ctx, dispatch); err != nil {
			r.logger.Error("dispatch failed", zap.Error(err))
		} else {
			r.metrics.Dispatches.Inc()
		}
	}

	if r.notifier != nil {
		subject := "Arbitrage Triggered (" + opp.Direction.String() + ")"
		message := "Direction: " + opp.Direction.String() +
			" | Profit: " + opp.NetProfitUSD.StringFixed(4) + " USD" +
			" | Loan: " + rec.LoanAmount.StringFixed(0) + " USD"
		if err := r.notifier.Notify(ctx, subject, message); err != nil {
			r.logger.Warn("alert delivery failed", zap.Error(err))
		}
	}
}

// Close closes all sinks.
func (r *Reporter) Close() {
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			r.logger.Warn("failed to close sink", zap.Error(err))
		}
	}
}
