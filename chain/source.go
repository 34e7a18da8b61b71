package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
	"github.com/fandresen/arbitrage-bot/utils/metrics"
)

var (
	// keccak256("Swap(address,address,int256,int256,uint160,uint128,int24)")
	topicV3Swap = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
	// keccak256("Sync(uint112,uint112)")
	topicV2Sync = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

	v3SwapArgs = abi.Arguments{
		{Name: "amount0", Type: mustType("int256")},
		{Name: "amount1", Type: mustType("int256")},
		{Name: "sqrtPriceX96", Type: mustType("uint160")},
		{Name: "liquidity", Type: mustType("uint128")},
		{Name: "tick", Type: mustType("int24")},
	}
	v2SyncArgs = abi.Arguments{
		{Name: "reserve0", Type: mustType("uint112")},
		{Name: "reserve1", Type: mustType("uint112")},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// errWatchdog signals that the subscription went silent for too long
// and must be torn down and rebuilt.
var errWatchdog = errors.New("event stream inactive past deadline")

// LogSubscriber is the websocket-side client surface the source needs.
// *ethclient.Client satisfies it.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
}

// PoolMeta is the static description of a watched pool. Token order is
// the pool's canonical order.
type PoolMeta struct {
	Address common.Address
	Token0  types.Token
	Token1  types.Token
	FeeTier uint32 // zero for constant-product pools
	IsV3    bool
}

// SourceConfig tunes the event source.
type SourceConfig struct {
	// BufferSize is the capacity of the outbound update channel.
	BufferSize int
	// WatchdogInterval is how often inactivity is checked.
	WatchdogInterval time.Duration
	// InactivityLimit is how long the stream may stay silent before
	// the subscription is rebuilt.
	InactivityLimit time.Duration
	// ReconnectBackoff is the pause before resubscribing after a
	// dropped or failed subscription.
	ReconnectBackoff time.Duration
	// DedupeSize bounds the replayed-log filter.
	DedupeSize int
}

func (c *SourceConfig) withDefaults() SourceConfig {
	out := *c
	if out.BufferSize <= 0 {
		out.BufferSize = 256
	}
	if out.WatchdogInterval <= 0 {
		out.WatchdogInterval = 30 * time.Second
	}
	if out.InactivityLimit <= 0 {
		out.InactivityLimit = 5 * time.Minute
	}
	if out.ReconnectBackoff <= 0 {
		out.ReconnectBackoff = 5 * time.Second
	}
	if out.DedupeSize <= 0 {
		out.DedupeSize = 4096
	}
	return out
}

// Source subscribes to swap and sync logs on the watched pools and
// turns them into whole-state pool updates. Updates are delivered over
// a bounded channel; when the consumer lags, new updates are dropped
// rather than queued, because only the latest state matters.
type Source struct {
	client  LogSubscriber
	pools   map[common.Address]*PoolMeta
	cfg     SourceConfig
	updates chan types.PoolUpdate
	dedupe  *lru.Cache

	lastActivity atomic.Int64

	metrics *metrics.Source
	logger  *zap.Logger
}

// NewSource creates an event source over the given pools.
func NewSource(client LogSubscriber, pools []PoolMeta, cfg SourceConfig, m *metrics.Source, logger *zap.Logger) (*Source, error) {
	if len(pools) == 0 {
		return nil, errors.New("no pools to watch")
	}
	if m == nil {
		m = metrics.NewSource("chain")
	}
	cfg = cfg.withDefaults()

	dedupe, err := lru.New(cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}

	s := &Source{
		client:  client,
		pools:   make(map[common.Address]*PoolMeta, len(pools)),
		cfg:     cfg,
		updates: make(chan types.PoolUpdate, cfg.BufferSize),
		dedupe:  dedupe,
		metrics: m,
		logger:  logger,
	}
	for i := range pools {
		p := pools[i]
		s.pools[p.Address] = &p
	}
	return s, nil
}

// Updates returns the outbound update channel. It is closed when Run
// returns.
func (s *Source) Updates() <-chan types.PoolUpdate { return s.updates }

// Run owns the subscription lifecycle: subscribe, stream, and on any
// error or watchdog trip, tear down and resubscribe after a backoff.
// It blocks until ctx is cancelled.
func (s *Source) Run(ctx context.Context) {
	defer close(s.updates)

	for {
		err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errWatchdog) {
			s.metrics.WatchdogRestarts.Inc()
			s.logger.Warn("watchdog restarting event subscription",
				zap.Duration("inactivity_limit", s.cfg.InactivityLimit))
		} else {
			s.metrics.Reconnects.Inc()
			s.logger.Error("event subscription lost, reconnecting",
				zap.Error(err),
				zap.Duration("backoff", s.cfg.ReconnectBackoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectBackoff):
		}
	}
}

func (s *Source) streamOnce(ctx context.Context) error {
	addrs := make([]common.Address, 0, len(s.pools))
	for addr := range s.pools {
		addrs = append(addrs, addr)
	}
	query := ethereum.FilterQuery{
		Addresses: addrs,
		Topics:    [][]common.Hash{{topicV3Swap, topicV2Sync}},
	}

	logs := make(chan ethtypes.Log, 256)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("%w: log subscription: %v", types.ErrExternalCall, err)
	}
	defer sub.Unsubscribe()

	s.touch()
	watchdog := time.NewTicker(s.cfg.WatchdogInterval)
	defer watchdog.Stop()

	s.logger.Info("subscribed to pool events", zap.Int("pools", len(addrs)))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case <-watchdog.C:
			idle := time.Since(time.Unix(0, s.lastActivity.Load()))
			if idle > s.cfg.InactivityLimit {
				return errWatchdog
			}
		case lg := <-logs:
			s.touch()
			s.handleLog(&lg)
		}
	}
}

func (s *Source) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Source) handleLog(lg *ethtypes.Log) {
	s.metrics.EventsTotal.Inc()

	if s.seen(lg) {
		s.metrics.EventsDeduped.Inc()
		return
	}

	meta, ok := s.pools[lg.Address]
	if !ok || len(lg.Topics) == 0 {
		return
	}

	var (
		update types.PoolUpdate
		err    error
	)
	switch lg.Topics[0] {
	case topicV3Swap:
		update, err = s.decodeV3Swap(meta, lg)
	case topicV2Sync:
		update, err = s.decodeV2Sync(meta, lg)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("failed to decode pool event",
			zap.Stringer("pool", lg.Address),
			zap.Uint64("block", lg.BlockNumber),
			zap.Error(err))
		return
	}

	select {
	case s.updates <- update:
	default:
		s.metrics.UpdatesDropped.Inc()
		s.logger.Debug("update channel full, dropping event",
			zap.Stringer("pool", lg.Address),
			zap.Uint64("block", lg.BlockNumber))
	}
}

// seen filters logs replayed across reconnects. Reorged logs carry the
// Removed flag and are let through so fresh state overwrites them.
func (s *Source) seen(lg *ethtypes.Log) bool {
	if lg.Removed {
		return false
	}
	h := xxhash.New()
	h.Write(lg.BlockHash.Bytes())
	var idx [4]byte
	idx[0] = byte(lg.Index >> 24)
	idx[1] = byte(lg.Index >> 16)
	idx[2] = byte(lg.Index >> 8)
	idx[3] = byte(lg.Index)
	h.Write(idx[:])
	key := h.Sum64()

	if _, dup := s.dedupe.Get(key); dup {
		return true
	}
	s.dedupe.Add(key, struct{}{})
	return false
}

func (s *Source) decodeV3Swap(meta *PoolMeta, lg *ethtypes.Log) (types.PoolUpdate, error) {
	if !meta.IsV3 {
		return types.PoolUpdate{}, fmt.Errorf("swap event from non-V3 pool %s", meta.Address)
	}
	vals, err := v3SwapArgs.Unpack(lg.Data)
	if err != nil {
		return types.PoolUpdate{}, fmt.Errorf("failed to unpack swap event: %w", err)
	}
	sqrtPrice, ok := vals[2].(*big.Int)
	if !ok {
		return types.PoolUpdate{}, errors.New("unexpected sqrtPriceX96 type")
	}
	liquidity, ok := vals[3].(*big.Int)
	if !ok {
		return types.PoolUpdate{}, errors.New("unexpected liquidity type")
	}
	tick, ok := vals[4].(*big.Int)
	if !ok {
		return types.PoolUpdate{}, errors.New("unexpected tick type")
	}
	now := time.Now()
	return types.PoolUpdate{
		Pool: meta.Address,
		V3: &types.V3State{
			Token0:       meta.Token0,
			Token1:       meta.Token1,
			SqrtPriceX96: new(big.Int).Set(sqrtPrice),
			Tick:         int(tick.Int64()),
			Liquidity:    new(big.Int).Set(liquidity),
			FeeTier:      meta.FeeTier,
			Block:        lg.BlockNumber,
			SeenAt:       now,
		},
		Block:  lg.BlockNumber,
		SeenAt: now,
	}, nil
}

func (s *Source) decodeV2Sync(meta *PoolMeta, lg *ethtypes.Log) (types.PoolUpdate, error) {
	if meta.IsV3 {
		return types.PoolUpdate{}, fmt.Errorf("sync event from non-V2 pool %s", meta.Address)
	}
	vals, err := v2SyncArgs.Unpack(lg.Data)
	if err != nil {
		return types.PoolUpdate{}, fmt.Errorf("failed to unpack sync event: %w", err)
	}
	reserve0, ok := vals[0].(*big.Int)
	if !ok {
		return types.PoolUpdate{}, errors.New("unexpected reserve0 type")
	}
	reserve1, ok := vals[1].(*big.Int)
	if !ok {
		return types.PoolUpdate{}, errors.New("unexpected reserve1 type")
	}

	now := time.Now()
	return types.PoolUpdate{
		Pool: meta.Address,
		V2: &types.V2State{
			Token0:   meta.Token0,
			Token1:   meta.Token1,
			Reserve0: new(big.Int).Set(reserve0),
			Reserve1: new(big.Int).Set(reserve1),
			Block:    lg.BlockNumber,
			SeenAt:   now,
		},
		Block:  lg.BlockNumber,
		SeenAt: now,
	}, nil
}
