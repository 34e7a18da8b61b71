package univ3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fandresen/arbitrage-bot/types"
)

const quoterABIJson = `[{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

const defaultCacheSize = 512

// quoteExactInputSingleParams mirrors IQuoterV2.QuoteExactInputSingleParams.
type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

type quoteKey struct {
	tokenIn  common.Address
	tokenOut common.Address
	fee      uint32
	amountIn string
	block    uint64
}

// QuoterConfig bounds the quoter's external call volume.
type QuoterConfig struct {
	RequestsPerSecond float64
	Burst             int
	CallTimeout       time.Duration
	CacheSize         int
}

// Quoter simulates exact swap outputs through an on-chain QuoterV2
// contract. Calls are rate limited so the scan never exceeds the
// provider's request budget, and results are cached per block so
// repeated trial loans in one evaluation do not repeat calls.
type Quoter struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
	limiter *rate.Limiter
	cache   *lru.Cache
	timeout time.Duration
	logger  *zap.Logger
}

// NewQuoter creates a QuoterV2 client bound to the given contract.
func NewQuoter(caller ethereum.ContractCaller, address common.Address, cfg QuoterConfig, logger *zap.Logger) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote cache: %w", err)
	}

	return &Quoter{
		caller:  caller,
		address: address,
		abi:     parsed,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   cache,
		timeout: cfg.CallTimeout,
		logger:  logger,
	}, nil
}

// QuoteExactInputSingle simulates a single-hop swap and returns the
// exact output amount. The block number keys the cache; a failed or
// reverted call surfaces as ErrExternalCall for the caller to skip.
func (q *Quoter) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int, block uint64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int), nil
	}

	key := quoteKey{tokenIn: tokenIn, tokenOut: tokenOut, fee: fee, amountIn: amountIn.String(), block: block}
	if cached, ok := q.cache.Get(key); ok {
		return new(big.Int).Set(cached.(*big.Int)), nil
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: quoter rate limit: %v", types.ErrExternalCall, err)
	}

	data, err := q.abi.Pack("quoteExactInputSingle", quoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack quote call: %w", err)
	}

	callCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	raw, err := q.caller.CallContract(callCtx, ethereum.CallMsg{To: &q.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: quoter call: %v", types.ErrExternalCall, err)
	}

	out, err := q.abi.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: quoter response: %v", types.ErrExternalCall, err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected quoter output type", types.ErrExternalCall)
	}

	q.cache.Add(key, new(big.Int).Set(amountOut))
	return amountOut, nil
}
