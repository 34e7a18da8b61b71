package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fandresen/arbitrage-bot/types"
)

// Registry holds the last observed state per pool. States are
// replaced wholesale: a reader sees either the previous snapshot or
// the new one in full, never a torn mix of fields.
type Registry struct {
	mu          sync.RWMutex
	pools       map[common.Address]types.PoolState
	staleCutoff time.Duration
}

// NewRegistry creates a registry. A non-positive staleCutoff disables
// the staleness check.
func NewRegistry(staleCutoff time.Duration) *Registry {
	return &Registry{
		pools:       make(map[common.Address]types.PoolState),
		staleCutoff: staleCutoff,
	}
}

// Put replaces the pool's state with a new snapshot.
func (r *Registry) Put(pool common.Address, state types.PoolState) {
	if state == nil {
		return
	}
	r.mu.Lock()
	r.pools[pool] = state
	r.mu.Unlock()
}

// Get returns the pool's last snapshot, if any.
func (r *Registry) Get(pool common.Address) (types.PoolState, bool) {
	r.mu.RLock()
	state, ok := r.pools[pool]
	r.mu.RUnlock()
	return state, ok
}

// Fresh returns the pool's state only if it exists and is within the
// staleness cutoff. Absence and staleness are data availability
// preconditions, not errors: callers skip the cycle.
func (r *Registry) Fresh(pool common.Address, now time.Time) (types.PoolState, error) {
	state, ok := r.Get(pool)
	if !ok {
		return nil, fmt.Errorf("%w: pool %s", types.ErrDataUnavailable, pool.Hex())
	}
	if r.staleCutoff > 0 && now.Sub(state.ObservedAt()) > r.staleCutoff {
		return nil, fmt.Errorf("%w: pool %s last update %s", types.ErrStaleState, pool.Hex(), state.ObservedAt().Format(time.RFC3339))
	}
	return state, nil
}

// Len returns the number of tracked pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
