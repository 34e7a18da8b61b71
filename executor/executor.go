package executor

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/types"
)

const (
	contentTypeJSON = "application/json"
	methodSendRaw   = "eth_sendRawPrivateTransaction"

	// extra headroom over the node's gas estimate
	gasMargin = 100_000
)

const flashLoanABIJson = `[{"inputs":[{"internalType":"uint256","name":"loanAmount0","type":"uint256"},{"internalType":"uint256","name":"loanAmount1","type":"uint256"},{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint8","name":"exchange","type":"uint8"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"}],"internalType":"struct IFlashLoanArbitrage.SwapParams","name":"swap1","type":"tuple"},{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint8","name":"exchange","type":"uint8"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"}],"internalType":"struct IFlashLoanArbitrage.SwapParams","name":"swap2","type":"tuple"}],"name":"executeArbitrage","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// swapParams mirrors the flash-loan contract's SwapParams tuple.
type swapParams struct {
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          *big.Int
	Exchange     uint8
	AmountOutMin *big.Int
}

// NodeClient covers the node calls the executor needs to build a
// transaction. *ethclient.Client satisfies it.
type NodeClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Config holds the executor's startup parameters.
type Config struct {
	RelayURL   string
	Contract   common.Address
	ChainID    *big.Int
	GasPrice   *big.Int
	DryRun     bool
	HTTPClient *http.Client
}

// Executor turns dispatch instructions into signed flash-loan
// transactions submitted through a private relay. Its contract with
// the evaluator ends at accepting {direction, amounts, slippage
// floors}; everything past the relay is out of its hands.
type Executor struct {
	node     NodeClient
	http     *http.Client
	relayURL string
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasPrice *big.Int
	dryRun   bool
	logger   *zap.Logger
}

// New creates an executor. A nil key forces dry-run mode.
func New(node NodeClient, key *ecdsa.PrivateKey, cfg Config, logger *zap.Logger) (*Executor, error) {
	parsed, err := abi.JSON(strings.NewReader(flashLoanABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse flash loan ABI: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	e := &Executor{
		node:     node,
		http:     httpClient,
		relayURL: cfg.RelayURL,
		contract: cfg.Contract,
		abi:      parsed,
		key:      key,
		chainID:  cfg.ChainID,
		gasPrice: cfg.GasPrice,
		dryRun:   cfg.DryRun || key == nil,
		logger:   logger,
	}
	if key != nil {
		e.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return e, nil
}

// Dispatch builds, signs and privately submits the flash-loan
// arbitrage transaction.
func (e *Executor) Dispatch(ctx context.Context, d *types.Dispatch) error {
	data, err := e.abi.Pack("executeArbitrage",
		d.LoanAmount,
		new(big.Int),
		toSwapParams(d.Swap1),
		toSwapParams(d.Swap2),
	)
	if err != nil {
		return fmt.Errorf("failed to pack executeArbitrage: %w", err)
	}

	if e.dryRun {
		e.logger.Info("dry run: skipping private transaction",
			zap.String("direction", d.Direction.String()),
			zap.String("loan_amount", d.LoanAmount.String()),
			zap.String("min_out_leg1", d.Swap1.AmountOutMin.String()),
			zap.String("min_out_leg2", d.Swap2.AmountOutMin.String()))
		return nil
	}

	nonce, err := e.node.PendingNonceAt(ctx, e.from)
	if err != nil {
		return fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gas, err := e.node.EstimateGas(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &e.contract,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to estimate gas: %w", err)
	}

	// Legacy transactions: private BSC relays reject typed envelopes.
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: e.gasPrice,
		Gas:      gas + gasMargin,
		To:       &e.contract,
		Value:    new(big.Int),
		Data:     data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.chainID), e.key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	txHash, err := e.sendPrivate(ctx, signed)
	if err != nil {
		return err
	}

	e.logger.Info("private transaction submitted",
		zap.String("tx_hash", txHash),
		zap.String("direction", d.Direction.String()),
		zap.String("loan_amount", d.LoanAmount.String()))
	return nil
}

func (e *Executor) sendPrivate(ctx context.Context, tx *ethtypes.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  methodSendRaw,
		"params":  []string{hexutil.Encode(raw)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.relayURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to build relay request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: relay submission: %v", types.ErrExternalCall, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read relay response: %w", err)
	}

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return "", fmt.Errorf("failed to decode relay response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("%w: relay error %d: %s", types.ErrExternalCall, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func toSwapParams(p types.SwapParams) swapParams {
	minOut := p.AmountOutMin
	if minOut == nil {
		minOut = new(big.Int)
	}
	return swapParams{
		TokenIn:      p.TokenIn,
		TokenOut:     p.TokenOut,
		Fee:          new(big.Int).SetUint64(uint64(p.FeeTier)),
		Exchange:     p.Exchange,
		AmountOutMin: minOut,
	}
}
