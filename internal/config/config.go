// Package config loads and validates the engine configuration from a YAML
// file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Config is the full engine configuration.
type Config struct {
	Bot        BotConfig                 `yaml:"bot"`
	Solana     SolanaConfig              `yaml:"solana"`
	Aggregator AggregatorConfig          `yaml:"aggregator"`
	MEV        MEVConfig                 `yaml:"mev_protection"`
	Exchanges  map[string]ExchangeConfig `yaml:"exchanges"`
	Risk       RiskConfig                `yaml:"risk_management"`
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	WebSocket  WebSocketConfig           `yaml:"websocket"`
	AI         AIConfig                  `yaml:"ai"`
	Hub        HubConfig                 `yaml:"hub"`
	Logging    LoggingConfig             `yaml:"logging"`
	Monitoring MonitoringConfig          `yaml:"monitoring"`
	Postgres   PostgresConfig            `yaml:"postgres"`

	// WalletPrivateKey comes only from the environment, never the file.
	WalletPrivateKey string `yaml:"-"`
}

// BotConfig holds top-level run switches.
type BotConfig struct {
	Name                string  `yaml:"name"`
	DryRun              bool    `yaml:"dry_run"`
	PaperTrading        bool    `yaml:"paper_trading"`
	UpdateIntervalMs    int     `yaml:"update_interval_ms"`
	MaxConcurrentOrders int     `yaml:"max_concurrent_orders"`
	InitialBalance      float64 `yaml:"initial_balance"`
}

// SolanaConfig configures chain RPC access.
type SolanaConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	EnhancedRPCURL string `yaml:"enhanced_rpc_url"`
	Commitment     string `yaml:"commitment"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AggregatorConfig configures the DEX aggregator (Jupiter) endpoints.
type AggregatorConfig struct {
	QuoteURL       string `yaml:"quote_url"`
	SwapURL        string `yaml:"swap_url"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MEVConfig configures bundled submission through the Jito relay.
type MEVConfig struct {
	Enabled              bool     `yaml:"enabled"`
	RelayURL             string   `yaml:"relay_url"`
	TipAccounts          []string `yaml:"tip_accounts"`
	BundleTimeoutSeconds int      `yaml:"bundle_timeout_seconds"`
	MaxTipLamports       uint64   `yaml:"max_tip_lamports"`
	ThresholdNotional    float64  `yaml:"threshold_notional"`
	Fallback             bool     `yaml:"fallback"`
}

// ExchangeConfig is per-venue transport configuration.
type ExchangeConfig struct {
	Enabled            bool    `yaml:"enabled"`
	APIURL             string  `yaml:"api_url"`
	WebSocketURL       string  `yaml:"websocket_url"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	ProgramID          string  `yaml:"program_id"`
	Weight             float64 `yaml:"weight"`
}

// RiskConfig holds the risk manager's limits.
type RiskConfig struct {
	GlobalMaxExposure      float64 `yaml:"global_max_exposure"`
	MaxDailyLoss           float64 `yaml:"max_daily_loss"`
	MaxDrawdown            float64 `yaml:"max_drawdown"`
	MaxPositions           int     `yaml:"max_positions"`
	MaxExposurePerTokenPct float64 `yaml:"max_exposure_per_token_pct"`
	MaxPriceImpactPct      float64 `yaml:"max_price_impact_pct"`
	PositionSizingMethod   string  `yaml:"position_sizing_method"`
	FixedPositionSize      float64 `yaml:"fixed_position_size"`
	PositionSizePct        float64 `yaml:"position_size_pct"`
	TargetVolatility       float64 `yaml:"target_volatility"`
	MinPositionSize        float64 `yaml:"min_position_size"`
	MaxPositionSize        float64 `yaml:"max_position_size"`
	StopLossPct            float64 `yaml:"stop_loss_pct"`
	TakeProfitPct          float64 `yaml:"take_profit_pct"`
	MaxSlippageBps         int     `yaml:"max_slippage_bps"`
	ConsecutiveLossLimit   int     `yaml:"consecutive_loss_limit"`
	AIRiskWeight           float64 `yaml:"ai_risk_weight"`
}

// StrategyConfig is the per-strategy section; Params carries
// strategy-specific fields parsed by the strategy itself.
type StrategyConfig struct {
	Enabled             bool               `yaml:"enabled"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	MinConfidence       float64            `yaml:"min_confidence"`
	MaxPositionSize     float64            `yaml:"max_position_size"`
	StopLossPct         float64            `yaml:"stop_loss_percentage"`
	TakeProfitPct       float64            `yaml:"take_profit_percentage"`
	CooldownSeconds     int                `yaml:"cooldown_seconds"`
	Params              map[string]float64 `yaml:"params"`
	PreferredQuotes     []string           `yaml:"preferred_quotes"`
	CreatorBlacklist    []string           `yaml:"creator_blacklist"`
}

// WebSocketConfig tunes the stream manager.
type WebSocketConfig struct {
	ReconnectTimeoutSeconds int      `yaml:"reconnect_timeout_seconds"`
	MaxRetries              int      `yaml:"max_retries"`
	PingIntervalSeconds     int      `yaml:"ping_interval_seconds"`
	Subscriptions           []string `yaml:"subscriptions"`
	EventBufferSize         int      `yaml:"event_buffer_size"`
}

// AIConfig configures the optional enrichment provider.
type AIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// HubConfig selects the coordination store backend.
type HubConfig struct {
	Path         string `yaml:"path"`
	EventLogSize int    `yaml:"event_log_size"`
}

// LoggingConfig configures zap output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

// MonitoringConfig configures the Prometheus endpoint.
type MonitoringConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// PostgresConfig configures the optional trade-history store.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Load reads the YAML file at path, applies .env and environment overrides
// and validates the result. A broken configuration fails fast with
// ConfigInvalid; missing signing key material with KeyMaterialMissing.
func Load(path string) (*Config, error) {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewCodedError(domain.CodeConfigInvalid, fmt.Sprintf("read config %s", path), err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.NewCodedError(domain.CodeConfigInvalid, "parse config", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Name:                "sniperbot",
			UpdateIntervalMs:    1000,
			MaxConcurrentOrders: 5,
			InitialBalance:      10_000,
		},
		Solana: SolanaConfig{
			Commitment:     "confirmed",
			TimeoutSeconds: 10,
		},
		Aggregator: AggregatorConfig{
			QuoteURL:       "https://quote-api.jup.ag/v6/quote",
			SwapURL:        "https://quote-api.jup.ag/v6/swap",
			MaxRetries:     3,
			TimeoutSeconds: 10,
		},
		MEV: MEVConfig{
			BundleTimeoutSeconds: 30,
			MaxTipLamports:       1_000_000,
		},
		Risk: RiskConfig{
			GlobalMaxExposure:      10_000,
			MaxDailyLoss:           1_000,
			MaxDrawdown:            0.2,
			MaxPositions:           10,
			MaxExposurePerTokenPct: 0.1,
			MaxPriceImpactPct:      0.03,
			PositionSizingMethod:   "percentage",
			PositionSizePct:        0.02,
			TargetVolatility:       0.05,
			MinPositionSize:        10,
			MaxPositionSize:        1_000,
			StopLossPct:            0.10,
			TakeProfitPct:          0.25,
			MaxSlippageBps:         300,
			ConsecutiveLossLimit:   5,
			AIRiskWeight:           0.4,
		},
		WebSocket: WebSocketConfig{
			ReconnectTimeoutSeconds: 60,
			MaxRetries:              0, // unlimited
			PingIntervalSeconds:     30,
			EventBufferSize:         1024,
		},
		Hub: HubConfig{
			EventLogSize: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Console:    true,
		},
		Monitoring: MonitoringConfig{
			MetricsPort: 9109,
		},
	}
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("HELIUS_API_KEY"); v != "" && c.Solana.EnhancedRPCURL != "" {
		c.Solana.EnhancedRPCURL = c.Solana.EnhancedRPCURL + "?api-key=" + v
	}
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		c.WalletPrivateKey = v
	}
	if v := os.Getenv("HUB_PATH"); v != "" {
		c.Hub.Path = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Bot.DryRun = b
		}
	}
}

// Validate checks cross-field invariants. Returns ConfigInvalid or
// KeyMaterialMissing coded errors.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return domain.NewCodedError(domain.CodeConfigInvalid, msg, nil)
	}

	if c.Solana.RPCURL == "" {
		return invalid("solana.rpc_url is required")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return invalid(fmt.Sprintf("solana.commitment %q must be processed, confirmed or finalized", c.Solana.Commitment))
	}
	if c.Bot.UpdateIntervalMs <= 0 {
		return invalid("bot.update_interval_ms must be positive")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return invalid("risk_management.max_drawdown must be in (0,1)")
	}
	if c.Risk.MaxExposurePerTokenPct <= 0 || c.Risk.MaxExposurePerTokenPct > 1 {
		return invalid("risk_management.max_exposure_per_token_pct must be in (0,1]")
	}
	switch c.Risk.PositionSizingMethod {
	case "fixed", "percentage", "volatility_adjusted":
	default:
		return invalid(fmt.Sprintf("risk_management.position_sizing_method %q unknown", c.Risk.PositionSizingMethod))
	}
	if c.Risk.MinPositionSize > c.Risk.MaxPositionSize {
		return invalid("risk_management.min_position_size exceeds max_position_size")
	}
	if c.MEV.Enabled {
		if c.MEV.RelayURL == "" {
			return invalid("mev_protection.relay_url required when enabled")
		}
		if len(c.MEV.TipAccounts) == 0 {
			return invalid("mev_protection.tip_accounts required when enabled")
		}
	}
	for id, sc := range c.Strategies {
		if sc.ConfidenceThreshold < 0 || sc.ConfidenceThreshold > 1 {
			return invalid(fmt.Sprintf("strategies.%s.confidence_threshold must be in [0,1]", id))
		}
		if sc.CooldownSeconds < 0 {
			return invalid(fmt.Sprintf("strategies.%s.cooldown_seconds must not be negative", id))
		}
	}
	if !c.Bot.DryRun && !c.Bot.PaperTrading && c.WalletPrivateKey == "" {
		return domain.NewCodedError(domain.CodeKeyMaterialMissing,
			"WALLET_PRIVATE_KEY is required for live trading", nil)
	}
	return nil
}

// SolanaTimeout returns the chain RPC timeout as a duration.
func (c *Config) SolanaTimeout() time.Duration {
	return time.Duration(c.Solana.TimeoutSeconds) * time.Second
}

// UpdateInterval returns the main loop tick as a duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Bot.UpdateIntervalMs) * time.Millisecond
}
