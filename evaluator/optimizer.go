package evaluator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/dex"
	"github.com/fandresen/arbitrage-bot/types"
	"github.com/fandresen/arbitrage-bot/utils/metrics"
)

// Params bound the loan-size search. Loan amounts are base units of
// the loan token; the flash-loan fee is an exact rational.
type Params struct {
	LoanToken types.Token
	BaseToken types.Token
	MinLoan   *big.Int
	MaxLoan   *big.Int
	Step      *big.Int

	FlashFeeNum *big.Int
	FlashFeeDen *big.Int
}

func (p *Params) validate() error {
	if p.MinLoan == nil || p.MinLoan.Sign() <= 0 {
		return fmt.Errorf("min loan must be positive")
	}
	if p.MaxLoan == nil || p.MaxLoan.Cmp(p.MinLoan) < 0 {
		return fmt.Errorf("max loan must be >= min loan")
	}
	if p.Step == nil || p.Step.Sign() <= 0 {
		return fmt.Errorf("loan step must be positive")
	}
	if p.FlashFeeNum == nil || p.FlashFeeDen == nil || p.FlashFeeDen.Sign() <= 0 || p.FlashFeeNum.Sign() < 0 {
		return fmt.Errorf("flash loan fee fraction invalid")
	}
	return nil
}

// FlashLoanCost returns ceil(loan * num/den), the proportional fee
// owed on top of the principal. Rounding up keeps the profit estimate
// conservative when the fee does not divide evenly.
func FlashLoanCost(loan, num, den *big.Int) *big.Int {
	cost := new(big.Int).Mul(loan, num)
	cost.Add(cost, new(big.Int).Sub(den, big.NewInt(1)))
	return cost.Div(cost, den)
}

// Optimizer searches a stepped loan-size range for the most
// profitable round trip in one direction.
type Optimizer struct {
	logger  *zap.Logger
	metrics *metrics.Evaluator
}

// NewOptimizer creates a loan-size optimizer.
func NewOptimizer(logger *zap.Logger, m *metrics.Evaluator) *Optimizer {
	if m == nil {
		m = metrics.NewEvaluator("evaluator")
	}
	return &Optimizer{logger: logger, metrics: m}
}

// Optimize scans loan sizes from MinLoan to MaxLoan inclusive in Step
// increments. Leg 1 swaps the loan token into the base token on the
// buy venue; leg 2 swaps the proceeds back on the sell venue. The
// best net profit wins, ties broken by the lowest loan size.
//
// A failed or zero quote skips that trial loan only; the scan always
// visits every remaining size. A nil result with nil error means no
// trial produced liquidity.
func (o *Optimizer) Optimize(ctx context.Context, buy, sell dex.Venue, buyState, sellState types.PoolState, p *Params) (*types.Opportunity, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var best *types.Opportunity
	// Inclusive upper bound: the final step is evaluated even when
	// (MaxLoan-MinLoan) divides evenly by Step.
	for loan := new(big.Int).Set(p.MinLoan); loan.Cmp(p.MaxLoan) <= 0; loan = new(big.Int).Add(loan, p.Step) {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		baseOut, err := o.quote(ctx, buy, buyState, p.LoanToken, p.BaseToken, loan)
		if err != nil || baseOut.Sign() == 0 {
			o.skipTrial(buy, loan, err)
			continue
		}

		finalOut, err := o.quote(ctx, sell, sellState, p.BaseToken, p.LoanToken, baseOut)
		if err != nil || finalOut.Sign() == 0 {
			o.skipTrial(sell, loan, err)
			continue
		}

		cost := FlashLoanCost(loan, p.FlashFeeNum, p.FlashFeeDen)
		net := new(big.Int).Sub(finalOut, loan)
		net.Sub(net, cost)

		if best == nil || net.Cmp(best.NetProfit) > 0 {
			best = &types.Opportunity{
				LoanAmount:     new(big.Int).Set(loan),
				Leg1Out:        baseOut,
				GrossAmountOut: finalOut,
				FlashLoanCost:  cost,
				NetProfit:      net,
				FoundAt:        time.Now(),
			}
		}
	}

	if best == nil {
		o.logger.Debug("no trial loan produced a quote",
			zap.String("buy_venue", buy.Name()),
			zap.String("sell_venue", sell.Name()))
	}
	return best, nil
}

func (o *Optimizer) quote(ctx context.Context, venue dex.Venue, state types.PoolState, tokenIn, tokenOut types.Token, amountIn *big.Int) (*big.Int, error) {
	o.metrics.QuoteCalls.Inc()
	out, err := venue.QuoteExactInput(ctx, state, &types.QuoteRequest{
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		AmountIn: amountIn,
	})
	if err != nil {
		o.metrics.QuoteErrors.Inc()
		return nil, err
	}
	return out, nil
}

func (o *Optimizer) skipTrial(venue dex.Venue, loan *big.Int, err error) {
	o.metrics.TrialsSkipped.Inc()
	if err != nil {
		o.logger.Debug("trial loan skipped",
			zap.String("venue", venue.Name()),
			zap.String("loan", loan.String()),
			zap.Error(err))
	}
}
