package univ3

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

var (
	tok0 = types.Token{Address: common.HexToAddress("0x1111111111111111111111111111111111111111"), Decimals: 18, Symbol: "WBNB"}
	tok1 = types.Token{Address: common.HexToAddress("0x2222222222222222222222222222222222222222"), Decimals: 18, Symbol: "USDT"}
)

func v3State(sqrtPriceX96 *big.Int) *types.V3State {
	return &types.V3State{
		Token0:       tok0,
		Token1:       tok1,
		SqrtPriceX96: sqrtPriceX96,
		Liquidity:    big.NewInt(1_000_000),
		FeeTier:      500,
		Block:        7,
		SeenAt:       time.Now(),
	}
}

func TestIndicativePriceOrientation(t *testing.T) {
	venue := New("pancake-v3", common.Address{}, 500, nil, zap.NewNop())

	// sqrt price 2*2^96 -> token1 per token0 = 4
	state := v3State(new(big.Int).Lsh(big.NewInt(1), 97))

	price, err := venue.IndicativePrice(state, tok0, tok1)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(4)), "got %s", price)

	// Reversed pair gives the reciprocal.
	price, err = venue.IndicativePrice(state, tok1, tok0)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(0.25)), "got %s", price)
}

func TestIndicativePriceUnknownPair(t *testing.T) {
	venue := New("pancake-v3", common.Address{}, 500, nil, zap.NewNop())
	other := types.Token{Address: common.HexToAddress("0x3333333333333333333333333333333333333333"), Decimals: 18}

	_, err := venue.IndicativePrice(v3State(new(big.Int).Lsh(big.NewInt(1), 96)), tok0, other)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestIndicativePriceWrongStateVariant(t *testing.T) {
	venue := New("pancake-v3", common.Address{}, 500, nil, zap.NewNop())

	_, err := venue.IndicativePrice(&types.V2State{}, tok0, tok1)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}
