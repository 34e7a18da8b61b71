package executor

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

type stubNode struct {
	nonceCalls int
	gasCalls   int
}

func (s *stubNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	s.nonceCalls++
	return 7, nil
}

func (s *stubNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	s.gasCalls++
	return 400_000, nil
}

func testDispatch() *types.Dispatch {
	return &types.Dispatch{
		Direction:  types.DirectionAToB,
		LoanAmount: big.NewInt(11000),
		Swap1: types.SwapParams{
			TokenIn:      common.HexToAddress("0x01"),
			TokenOut:     common.HexToAddress("0x02"),
			FeeTier:      2500,
			Exchange:     0,
			AmountOutMin: big.NewInt(35),
		},
		Swap2: types.SwapParams{
			TokenIn:      common.HexToAddress("0x02"),
			TokenOut:     common.HexToAddress("0x01"),
			FeeTier:      500,
			Exchange:     1,
			AmountOutMin: big.NewInt(11004),
		},
	}
}

func TestDryRunSkipsNodeAndRelay(t *testing.T) {
	node := &stubNode{}
	e, err := New(node, nil, Config{
		Contract: common.HexToAddress("0x03"),
		ChainID:  big.NewInt(56),
		GasPrice: big.NewInt(15_000_000_000),
		DryRun:   true,
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, e.Dispatch(context.Background(), testDispatch()))
	assert.Equal(t, 0, node.nonceCalls)
	assert.Equal(t, 0, node.gasCalls)
}

func TestNilKeyForcesDryRun(t *testing.T) {
	e, err := New(&stubNode{}, nil, Config{DryRun: false, ChainID: big.NewInt(56)}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, e.dryRun)
}

func TestDispatchSubmitsPrivateTransaction(t *testing.T) {
	var got struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
	}
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xdeadbeef"}`))
	}))
	defer relay.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	node := &stubNode{}
	e, err := New(node, key, Config{
		RelayURL: relay.URL,
		Contract: common.HexToAddress("0x03"),
		ChainID:  big.NewInt(56),
		GasPrice: big.NewInt(15_000_000_000),
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, e.Dispatch(context.Background(), testDispatch()))

	assert.Equal(t, 1, node.nonceCalls)
	assert.Equal(t, 1, node.gasCalls)
	assert.Equal(t, "eth_sendRawPrivateTransaction", got.Method)
	require.Len(t, got.Params, 1)
	assert.True(t, len(got.Params[0]) > 2 && got.Params[0][:2] == "0x")
}

func TestDispatchRelayError(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`))
	}))
	defer relay.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	e, err := New(&stubNode{}, key, Config{
		RelayURL: relay.URL,
		Contract: common.HexToAddress("0x03"),
		ChainID:  big.NewInt(56),
		GasPrice: big.NewInt(15_000_000_000),
	}, zap.NewNop())
	require.NoError(t, err)

	err = e.Dispatch(context.Background(), testDispatch())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExternalCall)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestExecuteArbitragePacking(t *testing.T) {
	e, err := New(&stubNode{}, nil, Config{ChainID: big.NewInt(56), DryRun: true}, zap.NewNop())
	require.NoError(t, err)

	d := testDispatch()
	data, err := e.abi.Pack("executeArbitrage",
		d.LoanAmount, new(big.Int), toSwapParams(d.Swap1), toSwapParams(d.Swap2))
	require.NoError(t, err)

	// 4-byte selector + 12 static words (2 amounts + 2 five-field tuples).
	assert.Equal(t, 4+12*32, len(data))
}
