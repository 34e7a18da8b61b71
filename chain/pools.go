package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

const v3FactoryABIJson = `[{"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"internalType":"address","name":"pool","type":"address"}],"stateMutability":"view","type":"function"}]`

const v2FactoryABIJson = `[{"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"internalType":"address","name":"pair","type":"address"}],"stateMutability":"view","type":"function"}]`

const v3PoolABIJson = `[{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},{"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}]`

const v2PairABIJson = `[{"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}]`

var (
	v3FactoryABI = mustABI(v3FactoryABIJson)
	v2FactoryABI = mustABI(v2FactoryABIJson)
	v3PoolABI    = mustABI(v3PoolABIJson)
	v2PairABI    = mustABI(v2PairABIJson)
)

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the read-only node surface used for pool discovery
// and initial state loads. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Resolver discovers pool addresses through factories and loads the
// starting state snapshots before the event stream takes over.
type Resolver struct {
	caller ContractCaller
	logger *zap.Logger
}

func NewResolver(caller ContractCaller, logger *zap.Logger) *Resolver {
	return &Resolver{caller: caller, logger: logger}
}

func (r *Resolver) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call to %s: %v", types.ErrExternalCall, to, err)
	}
	return out, nil
}

// V3Pool resolves a concentrated-liquidity pool address for a token
// pair and fee tier.
func (r *Resolver) V3Pool(ctx context.Context, factory common.Address, tokenA, tokenB common.Address, feeTier uint32) (common.Address, error) {
	data, err := v3FactoryABI.Pack("getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(feeTier)))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getPool: %w", err)
	}
	out, err := r.call(ctx, factory, data)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := v3FactoryABI.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack getPool: %w", err)
	}
	pool, ok := vals[0].(common.Address)
	if !ok || pool == (common.Address{}) {
		return common.Address{}, errors.New("pool does not exist for pair and fee tier")
	}
	return pool, nil
}

// V2Pair resolves a constant-product pair address for a token pair.
func (r *Resolver) V2Pair(ctx context.Context, factory common.Address, tokenA, tokenB common.Address) (common.Address, error) {
	data, err := v2FactoryABI.Pack("getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getPair: %w", err)
	}
	out, err := r.call(ctx, factory, data)
	if err != nil {
		return common.Address{}, err
	}
	vals, err := v2FactoryABI.Unpack("getPair", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack getPair: %w", err)
	}
	pair, ok := vals[0].(common.Address)
	if !ok || pair == (common.Address{}) {
		return common.Address{}, errors.New("pair does not exist")
	}
	return pair, nil
}

// LoadV3State reads slot0 and the in-range liquidity to seed the
// registry before any swap event arrives.
func (r *Resolver) LoadV3State(ctx context.Context, meta PoolMeta) (*types.V3State, error) {
	block, err := r.caller.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: block number: %v", types.ErrExternalCall, err)
	}

	slot0Data, err := v3PoolABI.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("failed to pack slot0: %w", err)
	}
	out, err := r.call(ctx, meta.Address, slot0Data)
	if err != nil {
		return nil, err
	}
	slot0, err := v3PoolABI.Unpack("slot0", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack slot0: %w", err)
	}
	sqrtPrice, ok := slot0[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected sqrtPriceX96 type")
	}
	tick, ok := slot0[1].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected tick type")
	}

	liqData, err := v3PoolABI.Pack("liquidity")
	if err != nil {
		return nil, fmt.Errorf("failed to pack liquidity: %w", err)
	}
	out, err = r.call(ctx, meta.Address, liqData)
	if err != nil {
		return nil, err
	}
	liqVals, err := v3PoolABI.Unpack("liquidity", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack liquidity: %w", err)
	}
	liquidity, ok := liqVals[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected liquidity type")
	}

	r.logger.Info("loaded initial pool state",
		zap.Stringer("pool", meta.Address),
		zap.Uint64("block", block),
		zap.String("sqrt_price_x96", sqrtPrice.String()))

	return &types.V3State{
		Token0:       meta.Token0,
		Token1:       meta.Token1,
		SqrtPriceX96: sqrtPrice,
		Tick:         int(tick.Int64()),
		Liquidity:    liquidity,
		FeeTier:      meta.FeeTier,
		Block:        block,
		SeenAt:       time.Now(),
	}, nil
}

// LoadV2State reads the pair reserves to seed the registry before any
// sync event arrives.
func (r *Resolver) LoadV2State(ctx context.Context, meta PoolMeta) (*types.V2State, error) {
	block, err := r.caller.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: block number: %v", types.ErrExternalCall, err)
	}

	data, err := v2PairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("failed to pack getReserves: %w", err)
	}
	out, err := r.call(ctx, meta.Address, data)
	if err != nil {
		return nil, err
	}
	vals, err := v2PairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getReserves: %w", err)
	}
	reserve0, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected reserve0 type")
	}
	reserve1, ok := vals[1].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected reserve1 type")
	}

	r.logger.Info("loaded initial pair reserves",
		zap.Stringer("pool", meta.Address),
		zap.Uint64("block", block))

	return &types.V2State{
		Token0:   meta.Token0,
		Token1:   meta.Token1,
		Reserve0: reserve0,
		Reserve1: reserve1,
		Block:    block,
		SeenAt:   time.Now(),
	}, nil
}
