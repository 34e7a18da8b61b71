package dex

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/fandresen/arbitrage-bot/types"
)

func TestSortTokensStable(t *testing.T) {
	low := types.Token{Address: common.HexToAddress("0x0000000000000000000000000000000000000001")}
	high := types.Token{Address: common.HexToAddress("0x00000000000000000000000000000000000000ff")}

	a, b := SortTokens(low, high)
	assert.Equal(t, low, a)
	assert.Equal(t, high, b)

	// The ordering does not depend on argument order.
	a, b = SortTokens(high, low)
	assert.Equal(t, low, a)
	assert.Equal(t, high, b)
}

func TestSortTokensEqual(t *testing.T) {
	tok := types.Token{Address: common.HexToAddress("0x0000000000000000000000000000000000000042")}
	a, b := SortTokens(tok, tok)
	assert.Equal(t, tok, a)
	assert.Equal(t, tok, b)
}
