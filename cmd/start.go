package cmd

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fandresen/arbitrage-bot/chain"
	"github.com/fandresen/arbitrage-bot/config"
	"github.com/fandresen/arbitrage-bot/dex"
	"github.com/fandresen/arbitrage-bot/dex/univ2"
	"github.com/fandresen/arbitrage-bot/dex/univ3"
	"github.com/fandresen/arbitrage-bot/evaluator"
	"github.com/fandresen/arbitrage-bot/executor"
	"github.com/fandresen/arbitrage-bot/market"
	"github.com/fandresen/arbitrage-bot/notify"
	"github.com/fandresen/arbitrage-bot/reporter"
	"github.com/fandresen/arbitrage-bot/types"
	"github.com/fandresen/arbitrage-bot/utils"
	"github.com/fandresen/arbitrage-bot/utils/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage evaluator",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(ctx context.Context) error {
	log := utils.GetLogger()

	if err := config.LoadEnv(); err != nil {
		log.Warn("failed to load .env file", zap.Error(err))
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	httpURL, err := config.GetRequiredEnv(config.EnvHTTPRPCURL)
	if err != nil {
		return err
	}
	wsURL, err := config.GetRequiredEnv(config.EnvWSRPCURL)
	if err != nil {
		return err
	}

	httpClient, err := ethclient.DialContext(ctx, httpURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC node: %w", err)
	}
	defer httpClient.Close()

	wsClient, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket node: %w", err)
	}
	defer wsClient.Close()

	chainID, err := httpClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if chainID.Uint64() != cfg.ChainID {
		return fmt.Errorf("node chain id %s does not match configured %d", chainID, cfg.ChainID)
	}

	baseToken := tokenFromConfig(cfg.BaseToken)
	loanToken := tokenFromConfig(cfg.LoanToken)

	// Metrics
	promReg := prometheus.NewRegistry()
	evalMetrics := metrics.NewEvaluator("arbbot")
	evalMetrics.MustRegister(promReg)
	srcMetrics := metrics.NewSource("arbbot")
	srcMetrics.MustRegister(promReg)
	metricsSrv := serveMetrics(cfg.MetricsListenAddr, promReg, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	// Venues and initial pool state
	resolver := chain.NewResolver(httpClient, log)

	venueA, metaA, err := buildVenue(ctx, cfg.VenueA, baseToken, loanToken, resolver, httpClient, cfg.Quoter, log)
	if err != nil {
		return fmt.Errorf("venue %s: %w", cfg.VenueA.Name, err)
	}
	venueB, metaB, err := buildVenue(ctx, cfg.VenueB, baseToken, loanToken, resolver, httpClient, cfg.Quoter, log)
	if err != nil {
		return fmt.Errorf("venue %s: %w", cfg.VenueB.Name, err)
	}

	registry := market.NewRegistry(cfg.StaleAfter.Std())
	for _, meta := range []chain.PoolMeta{metaA, metaB} {
		if err := seedRegistry(ctx, resolver, registry, meta); err != nil {
			return fmt.Errorf("initial state for pool %s: %w", meta.Address, err)
		}
	}

	// Reporting and execution
	sinks, err := buildSinks(cfg.Reporting)
	if err != nil {
		return err
	}
	notifier := buildNotifier(log)

	exec, err := buildExecutor(httpClient, cfg, chainID, log)
	if err != nil {
		return err
	}

	rep := reporter.New(sinks, exec, notifier, cfg.ThresholdUSD(), cfg.Slippage(), log, evalMetrics)
	defer rep.Close()

	// Evaluation pipeline
	minLoan, maxLoan, step := cfg.LoanRangeBase()
	feeNum, feeDen := cfg.FlashLoanFeeFraction()

	eval := evaluator.New(evaluator.Config{
		VenueA:    evaluator.VenueRole{Venue: venueA, ExchangeID: cfg.VenueA.Exchange, FeeTier: cfg.VenueA.FeeTier},
		VenueB:    evaluator.VenueRole{Venue: venueB, ExchangeID: cfg.VenueB.Exchange, FeeTier: cfg.VenueB.FeeTier},
		BaseToken: baseToken,
		LoanToken: loanToken,
		Registry:  registry,
		Params: &evaluator.Params{
			LoanToken:   loanToken,
			BaseToken:   baseToken,
			MinLoan:     minLoan,
			MaxLoan:     maxLoan,
			Step:        step,
			FlashFeeNum: big.NewInt(feeNum),
			FlashFeeDen: big.NewInt(feeDen),
		},
		MinSpread:       cfg.MinSpreadFraction(),
		Throttle:        cfg.ThrottleInterval.Std(),
		USDPerLoanToken: cfg.USDPerLoanTokenRate(),
		Reporter:        rep,
		Logger:          log,
		Metrics:         evalMetrics,
	})

	source, err := chain.NewSource(wsClient, []chain.PoolMeta{metaA, metaB}, chain.SourceConfig{
		WatchdogInterval: cfg.WatchdogInterval.Std(),
		InactivityLimit:  cfg.InactivityLimit.Std(),
		ReconnectBackoff: cfg.ReconnectBackoff.Std(),
	}, srcMetrics, log)
	if err != nil {
		return err
	}

	log.Info("starting arbitrage evaluator",
		zap.String("venue_a", cfg.VenueA.Name),
		zap.String("venue_b", cfg.VenueB.Name),
		zap.String("pair", cfg.BaseToken.Symbol+"/"+cfg.LoanToken.Symbol))

	go source.Run(ctx)
	eval.Run(ctx, source.Updates())
	return nil
}

func tokenFromConfig(tc config.TokenConfig) types.Token {
	return types.Token{
		Address:  common.HexToAddress(tc.Address),
		Decimals: tc.Decimals,
		Symbol:   tc.Symbol,
	}
}

func buildVenue(ctx context.Context, vc config.VenueConfig, base, loan types.Token, resolver *chain.Resolver, client *ethclient.Client, qcfg config.QuoterConfig, log *zap.Logger) (dex.Venue, chain.PoolMeta, error) {
	token0, token1 := dex.SortTokens(base, loan)

	var pool common.Address
	if vc.Pool != "" {
		pool = common.HexToAddress(vc.Pool)
	} else {
		var err error
		factory := common.HexToAddress(vc.Factory)
		switch vc.Kind {
		case config.VenueUniswapV3:
			pool, err = resolver.V3Pool(ctx, factory, token0.Address, token1.Address, vc.FeeTier)
		default:
			pool, err = resolver.V2Pair(ctx, factory, token0.Address, token1.Address)
		}
		if err != nil {
			return nil, chain.PoolMeta{}, err
		}
	}

	meta := chain.PoolMeta{
		Address: pool,
		Token0:  token0,
		Token1:  token1,
		FeeTier: vc.FeeTier,
		IsV3:    vc.Kind == config.VenueUniswapV3,
	}

	if vc.Kind == config.VenueUniswapV3 {
		quoter, err := univ3.NewQuoter(client, common.HexToAddress(vc.Quoter), univ3.QuoterConfig{
			RequestsPerSecond: qcfg.RequestsPerSecond,
			Burst:             qcfg.Burst,
			CallTimeout:       qcfg.CallTimeout.Std(),
			CacheSize:         qcfg.CacheSize,
		}, log)
		if err != nil {
			return nil, chain.PoolMeta{}, err
		}
		return univ3.New(vc.Name, pool, vc.FeeTier, quoter, log), meta, nil
	}
	return univ2.New(vc.Name, pool, univ2.FeeFromTier(vc.FeeTier), log), meta, nil
}

func seedRegistry(ctx context.Context, resolver *chain.Resolver, registry *market.Registry, meta chain.PoolMeta) error {
	if meta.IsV3 {
		state, err := resolver.LoadV3State(ctx, meta)
		if err != nil {
			return err
		}
		registry.Put(meta.Address, state)
		return nil
	}
	state, err := resolver.LoadV2State(ctx, meta)
	if err != nil {
		return err
	}
	registry.Put(meta.Address, state)
	return nil
}

func buildSinks(rc config.ReportingConfig) ([]reporter.Sink, error) {
	var sinks []reporter.Sink
	if rc.CSVPath != "" {
		csvSink, err := reporter.NewCSVSink(rc.CSVPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV sink: %w", err)
		}
		sinks = append(sinks, csvSink)
	}
	if rc.SQLitePath != "" {
		dbSink, err := reporter.NewSQLiteSink(rc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite sink: %w", err)
		}
		sinks = append(sinks, dbSink)
	}
	if len(sinks) == 0 {
		return nil, errors.New("reporting needs at least one sink (csv_path or sqlite_path)")
	}
	return sinks, nil
}

func buildNotifier(log *zap.Logger) reporter.Notifier {
	slack := notify.NewSlack(os.Getenv(config.EnvSlackWebhookURL), log)

	port := 587
	if raw := os.Getenv(config.EnvSMTPPort); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			port = parsed
		}
	}
	email := notify.NewEmail(notify.EmailConfig{
		Host:     os.Getenv(config.EnvSMTPHost),
		Port:     port,
		Username: os.Getenv(config.EnvSMTPUsername),
		Password: os.Getenv(config.EnvSMTPPassword),
		To:       os.Getenv(config.EnvEmailTo),
	}, log)

	return notify.NewMulti(log, slack, email)
}

func buildExecutor(client *ethclient.Client, cfg *config.Config, chainID *big.Int, log *zap.Logger) (*executor.Executor, error) {
	var key *ecdsa.PrivateKey
	if raw := os.Getenv(config.EnvPrivateKey); raw != "" {
		parsed, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		key = parsed
	}
	if key == nil && !cfg.Executor.DryRun {
		return nil, fmt.Errorf("%s must be set when the executor is not in dry-run mode", config.EnvPrivateKey)
	}

	gasPrice := new(big.Int).Mul(big.NewInt(cfg.Executor.GasPriceGwei), big.NewInt(params.GWei))
	return executor.New(client, key, executor.Config{
		RelayURL: cfg.Executor.RelayURL,
		Contract: common.HexToAddress(cfg.Executor.Contract),
		ChainID:  chainID,
		GasPrice: gasPrice,
		DryRun:   cfg.Executor.DryRun,
	}, log)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
