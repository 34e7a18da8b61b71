package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// VenueKind selects the pricing model a venue runs.
type VenueKind string

const (
	VenueUniswapV2 VenueKind = "univ2"
	VenueUniswapV3 VenueKind = "univ3"
)

// VenueConfig describes one DEX venue. Pool may be given directly; when
// empty it is resolved through Factory at startup.
type VenueConfig struct {
	Kind    VenueKind `yaml:"kind"`
	Name    string    `yaml:"name"`
	Factory string    `yaml:"factory"`
	Quoter  string    `yaml:"quoter"`
	Pool    string    `yaml:"pool"`
	FeeTier uint32    `yaml:"fee_tier"`
	// Exchange is the identifier the flash-loan contract uses to pick
	// its router for this venue.
	Exchange uint8 `yaml:"exchange"`
}

// TokenConfig describes an ERC20 token the strategy trades.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// QuoterConfig tunes the executable-quote client.
type QuoterConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	CallTimeout       Duration `yaml:"call_timeout"`
	CacheSize         int      `yaml:"cache_size"`
}

// ReportingConfig selects the audit-trail sinks.
type ReportingConfig struct {
	CSVPath    string `yaml:"csv_path"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ExecutorConfig tunes the private-relay dispatcher.
type ExecutorConfig struct {
	RelayURL     string `yaml:"relay_url"`
	Contract     string `yaml:"contract"`
	GasPriceGwei int64  `yaml:"gas_price_gwei"`
	DryRun       bool   `yaml:"dry_run"`
}

// Config is the full strategy configuration. Financial parameters are
// decimal strings so their precision survives parsing; Validate turns
// them into exact decimals.
type Config struct {
	ChainID uint64 `yaml:"chain_id"`

	VenueA    VenueConfig `yaml:"venue_a"`
	VenueB    VenueConfig `yaml:"venue_b"`
	BaseToken TokenConfig `yaml:"base_token"`
	LoanToken TokenConfig `yaml:"loan_token"`

	// TradingFeeBudget and SafetyMargin combine with FlashLoanFee into
	// the screening threshold; the spread must strictly exceed their
	// sum before the loan-size scan is worth paying for.
	TradingFeeBudget string `yaml:"trading_fee_budget"`
	SafetyMargin     string `yaml:"safety_margin"`
	// Loan scan bounds and step, in whole loan-token units.
	LoanMin  string `yaml:"loan_min"`
	LoanMax  string `yaml:"loan_max"`
	LoanStep string `yaml:"loan_step"`
	// FlashLoanFee is the provider fee fraction, e.g. "0.0009".
	FlashLoanFee string `yaml:"flash_loan_fee"`
	// DispatchThresholdUSD gates execution and alerting.
	DispatchThresholdUSD string `yaml:"dispatch_threshold_usd"`
	// USDPerLoanToken converts net profit for the threshold check.
	USDPerLoanToken string `yaml:"usd_per_loan_token"`
	// SlippageTolerance shaves the quoted leg outputs into floors,
	// e.g. "0.005" for 0.5%.
	SlippageTolerance string `yaml:"slippage_tolerance"`

	ThrottleInterval Duration `yaml:"throttle_interval"`
	StaleAfter       Duration `yaml:"stale_after"`
	WatchdogInterval Duration `yaml:"watchdog_interval"`
	InactivityLimit  Duration `yaml:"inactivity_limit"`
	ReconnectBackoff Duration `yaml:"reconnect_backoff"`

	Quoter    QuoterConfig    `yaml:"quoter"`
	Reporting ReportingConfig `yaml:"reporting"`
	Executor  ExecutorConfig  `yaml:"executor"`

	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	feeBudget    decimal.Decimal
	safetyMargin decimal.Decimal
	loanMin      decimal.Decimal
	loanMax      decimal.Decimal
	loanStep     decimal.Decimal
	flashFee     decimal.Decimal
	thresholdUSD decimal.Decimal
	usdPerLoan   decimal.Decimal
	slippage     decimal.Decimal
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with operational defaults filled in. The
// financial parameters carry no defaults and must come from the file.
func Default() *Config {
	return &Config{
		ThrottleInterval: Duration(250 * time.Millisecond),
		StaleAfter:       Duration(2 * time.Minute),
		WatchdogInterval: Duration(30 * time.Second),
		InactivityLimit:  Duration(5 * time.Minute),
		ReconnectBackoff: Duration(5 * time.Second),
		Quoter: QuoterConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			CallTimeout:       Duration(3 * time.Second),
			CacheSize:         512,
		},
		Executor: ExecutorConfig{
			GasPriceGwei: 15,
			DryRun:       true,
		},
		MetricsListenAddr: ":9090",
	}
}

// Validate checks the configuration and parses the decimal-string
// financial parameters. Missing or malformed financial parameters are
// refused rather than defaulted: a silently wrong fee or threshold is
// worse than a crash at startup.
func (c *Config) Validate() error {
	var problems []string

	if c.ChainID == 0 {
		problems = append(problems, "chain_id must be specified")
	}
	for _, v := range []struct {
		name string
		cfg  *VenueConfig
	}{{"venue_a", &c.VenueA}, {"venue_b", &c.VenueB}} {
		switch v.cfg.Kind {
		case VenueUniswapV2, VenueUniswapV3:
		default:
			problems = append(problems, fmt.Sprintf("%s.kind must be %q or %q", v.name, VenueUniswapV2, VenueUniswapV3))
		}
		if v.cfg.Name == "" {
			problems = append(problems, v.name+".name must be specified")
		}
		if v.cfg.Pool == "" && v.cfg.Factory == "" {
			problems = append(problems, v.name+" needs a pool or a factory address")
		}
		if v.cfg.Kind == VenueUniswapV3 && v.cfg.Quoter == "" {
			problems = append(problems, v.name+".quoter must be specified for concentrated-liquidity venues")
		}
		// A zero tier would mean a fee-free venue, which no real pool is.
		if v.cfg.FeeTier == 0 {
			problems = append(problems, v.name+".fee_tier must be specified")
		}
		for _, addr := range []struct{ field, value string }{
			{"factory", v.cfg.Factory}, {"quoter", v.cfg.Quoter}, {"pool", v.cfg.Pool},
		} {
			if addr.value != "" && !common.IsHexAddress(addr.value) {
				problems = append(problems, fmt.Sprintf("%s.%s is not a valid address", v.name, addr.field))
			}
		}
	}
	for _, t := range []struct {
		name string
		cfg  *TokenConfig
	}{{"base_token", &c.BaseToken}, {"loan_token", &c.LoanToken}} {
		if !common.IsHexAddress(t.cfg.Address) {
			problems = append(problems, t.name+".address is not a valid address")
		}
	}

	problems = append(problems, c.parseFinancial()...)

	if c.ThrottleInterval <= 0 {
		problems = append(problems, "throttle_interval must be positive")
	}
	if c.StaleAfter <= 0 {
		problems = append(problems, "stale_after must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) parseFinancial() []string {
	var problems []string

	parse := func(name, value string, dst *decimal.Decimal) {
		if value == "" {
			problems = append(problems, name+" must be specified")
			return
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s is not a valid decimal: %v", name, err))
			return
		}
		*dst = d
	}

	parse("trading_fee_budget", c.TradingFeeBudget, &c.feeBudget)
	parse("safety_margin", c.SafetyMargin, &c.safetyMargin)
	parse("loan_min", c.LoanMin, &c.loanMin)
	parse("loan_max", c.LoanMax, &c.loanMax)
	parse("loan_step", c.LoanStep, &c.loanStep)
	parse("flash_loan_fee", c.FlashLoanFee, &c.flashFee)
	parse("dispatch_threshold_usd", c.DispatchThresholdUSD, &c.thresholdUSD)
	parse("usd_per_loan_token", c.USDPerLoanToken, &c.usdPerLoan)
	parse("slippage_tolerance", c.SlippageTolerance, &c.slippage)

	if len(problems) > 0 {
		return problems
	}

	if c.feeBudget.Sign() < 0 || c.safetyMargin.Sign() < 0 {
		problems = append(problems, "trading_fee_budget and safety_margin must not be negative")
	}
	if c.loanMin.Sign() <= 0 || c.loanMax.Sign() <= 0 || c.loanStep.Sign() <= 0 {
		problems = append(problems, "loan_min, loan_max and loan_step must be positive")
	}
	if c.loanMax.LessThan(c.loanMin) {
		problems = append(problems, "loan_max must not be below loan_min")
	}
	if c.flashFee.Sign() < 0 || c.flashFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		problems = append(problems, "flash_loan_fee must be in [0, 1)")
	}
	// Keeps the fee's exact rational within int64 (10^18 denominator).
	if c.flashFee.Exponent() < -18 {
		problems = append(problems, "flash_loan_fee must not have more than 18 decimal places")
	}
	if c.slippage.Sign() < 0 || c.slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		problems = append(problems, "slippage_tolerance must be in [0, 1)")
	}
	if c.usdPerLoan.Sign() <= 0 {
		problems = append(problems, "usd_per_loan_token must be positive")
	}
	return problems
}

// MinSpreadFraction returns the screening threshold, derived as the
// sum of the flash-loan fee, the trading fee budget and the safety
// margin. It is never configured as a single opaque constant.
func (c *Config) MinSpreadFraction() decimal.Decimal {
	return c.flashFee.Add(c.feeBudget).Add(c.safetyMargin)
}

// ThresholdUSD returns the parsed dispatch threshold.
func (c *Config) ThresholdUSD() decimal.Decimal { return c.thresholdUSD }

// USDPerLoanTokenRate returns the parsed profit conversion rate.
func (c *Config) USDPerLoanTokenRate() decimal.Decimal { return c.usdPerLoan }

// Slippage returns the parsed slippage tolerance.
func (c *Config) Slippage() decimal.Decimal { return c.slippage }

// FlashLoanFeeFraction returns the provider fee as an exact rational.
func (c *Config) FlashLoanFeeFraction() (num, den int64) {
	exp := c.flashFee.Exponent()
	if exp >= 0 {
		// whole-number fee fraction, e.g. "0"
		return c.flashFee.IntPart(), 1
	}
	den = 1
	for i := int32(0); i < -exp; i++ {
		den *= 10
	}
	return c.flashFee.Coefficient().Int64(), den
}

// LoanRangeBase converts the loan scan bounds from whole loan-token
// units to base units.
func (c *Config) LoanRangeBase() (minLoan, maxLoan, step *big.Int) {
	scale := decimal.New(1, int32(c.LoanToken.Decimals))
	minLoan = c.loanMin.Mul(scale).BigInt()
	maxLoan = c.loanMax.Mul(scale).BigInt()
	step = c.loanStep.Mul(scale).BigInt()
	return minLoan, maxLoan, step
}
