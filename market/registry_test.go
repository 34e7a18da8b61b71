package market

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fandresen/arbitrage-bot/types"
)

var testPool = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

func stateAt(block uint64, seen time.Time) *types.V2State {
	return &types.V2State{
		Reserve0: big.NewInt(1),
		Reserve1: big.NewInt(2),
		Block:    block,
		SeenAt:   seen,
	}
}

func TestRegistryPutReplacesWholeState(t *testing.T) {
	r := NewRegistry(time.Minute)

	r.Put(testPool, stateAt(1, time.Now()))
	r.Put(testPool, stateAt(2, time.Now()))

	got, ok := r.Get(testPool)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.BlockNumber())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryFreshMissingPool(t *testing.T) {
	r := NewRegistry(time.Minute)

	_, err := r.Fresh(testPool, time.Now())
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestRegistryFreshStaleState(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()

	r.Put(testPool, stateAt(1, now.Add(-2*time.Minute)))
	_, err := r.Fresh(testPool, now)
	assert.ErrorIs(t, err, types.ErrStaleState)

	// Inside the cutoff the same state is served.
	r.Put(testPool, stateAt(2, now.Add(-30*time.Second)))
	state, err := r.Fresh(testPool, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.BlockNumber())
}

func TestRegistryZeroCutoffDisablesStaleness(t *testing.T) {
	r := NewRegistry(0)
	now := time.Now()

	r.Put(testPool, stateAt(1, now.Add(-24*time.Hour)))
	_, err := r.Fresh(testPool, now)
	assert.NoError(t, err)
}

func TestRegistryNilStateIgnored(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Put(testPool, nil)
	assert.Equal(t, 0, r.Len())
}
