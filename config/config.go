// Package config loads and validates the engine configuration from YAML or
// JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tradewheel/engine/risk"
	"github.com/tradewheel/engine/sizing"
)

// Config represents the complete engine configuration.
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Backtest  BacktestConfig  `json:"backtest" yaml:"backtest"`
}

// AccountConfig contains account initialization parameters.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Cash     float64 `json:"cash" yaml:"cash"`
}

// ExecutionConfig contains signal execution parameters.
type ExecutionConfig struct {
	SizingMethod       string  `json:"sizing_method" yaml:"sizing_method"`
	RiskPerTradePct    float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	HardComplianceGate bool    `json:"hard_compliance_gate" yaml:"hard_compliance_gate"`
	AllowExtendedHours bool    `json:"allow_extended_hours" yaml:"allow_extended_hours"`
	// OrderTimeout bounds one signal execution, e.g. "10s". Empty disables
	// the deadline.
	OrderTimeout string `json:"order_timeout,omitempty" yaml:"order_timeout,omitempty"`
}

// ParseOrderTimeout converts the timeout string to a duration. Zero means
// no deadline.
func (c ExecutionConfig) ParseOrderTimeout() (time.Duration, error) {
	if c.OrderTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.OrderTimeout)
}

// RiskConfig contains circuit breaker and limit parameters. Zero values fall
// back to the engine defaults; max_daily_loss_dollar of zero disables the
// absolute daily-loss breaker.
type RiskConfig struct {
	MaxRiskPerTradePct   float64 `json:"max_risk_per_trade_pct" yaml:"max_risk_per_trade_pct"`
	MaxPositionSizePct   float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	MaxRiskPerDayPct     float64 `json:"max_risk_per_day_pct" yaml:"max_risk_per_day_pct"`
	MaxDailyDrawdownPct  float64 `json:"max_daily_drawdown_pct" yaml:"max_daily_drawdown_pct"`
	MaxDailyLossDollar   float64 `json:"max_daily_loss_dollar,omitempty" yaml:"max_daily_loss_dollar,omitempty"`
	MaxOpenPositions     int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MaxATRMultiplier     float64 `json:"max_atr_multiplier" yaml:"max_atr_multiplier"`
}

// SimulatorConfig contains paper-trading venue parameters.
type SimulatorConfig struct {
	SlippageBPS        float64 `json:"slippage_bps" yaml:"slippage_bps"`
	CommissionPerTrade float64 `json:"commission_per_trade" yaml:"commission_per_trade"`
	LedgerDir          string  `json:"ledger_dir,omitempty" yaml:"ledger_dir,omitempty"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "csv", "sqlite", or "none"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// BacktestConfig contains historical replay parameters.
type BacktestConfig struct {
	DataDir  string   `json:"data_dir" yaml:"data_dir"`
	Symbols  []string `json:"symbols" yaml:"symbols"`
	Start    string   `json:"start" yaml:"start"` // YYYY-MM-DD
	End      string   `json:"end" yaml:"end"`
	MinBars  int      `json:"min_bars,omitempty" yaml:"min_bars,omitempty"`
	Workers  int      `json:"workers,omitempty" yaml:"workers,omitempty"`
	Strategy string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file, YAML for .yaml/.yml extensions
// and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Cash <= 0 {
		return fmt.Errorf("account.cash must be positive")
	}
	if m := sizing.Method(c.Execution.SizingMethod); c.Execution.SizingMethod != "" && !m.Valid() {
		return fmt.Errorf("unknown sizing method: %s", c.Execution.SizingMethod)
	}
	if c.Execution.RiskPerTradePct <= 0 || c.Execution.RiskPerTradePct > 1 {
		return fmt.Errorf("execution.risk_per_trade_pct must be between 0 and 1")
	}
	if _, err := c.Execution.ParseOrderTimeout(); err != nil {
		return fmt.Errorf("bad execution.order_timeout: %w", err)
	}
	if c.Risk.MaxDailyLossDollar < 0 {
		return fmt.Errorf("risk.max_daily_loss_dollar must not be negative")
	}
	if c.Simulator.SlippageBPS < 0 {
		return fmt.Errorf("simulator.slippage_bps must not be negative")
	}
	if c.Simulator.CommissionPerTrade < 0 {
		return fmt.Errorf("simulator.commission_per_trade must not be negative")
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal.dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite', or 'none'")
	}
	return nil
}

// RiskLimits converts the configured risk section into engine limits,
// filling unset fields from the defaults.
func (c *Config) RiskLimits() risk.Limits {
	limits := risk.DefaultLimits()

	if c.Risk.MaxRiskPerTradePct > 0 {
		limits.MaxRiskPerTradePct = c.Risk.MaxRiskPerTradePct
	}
	if c.Risk.MaxPositionSizePct > 0 {
		limits.MaxPositionSizePct = c.Risk.MaxPositionSizePct
	}
	if c.Risk.MaxRiskPerDayPct > 0 {
		limits.MaxRiskPerDayPct = c.Risk.MaxRiskPerDayPct
	}
	if c.Risk.MaxDailyDrawdownPct > 0 {
		limits.MaxDailyDrawdownPct = c.Risk.MaxDailyDrawdownPct
	}
	if c.Risk.MaxDailyLossDollar > 0 {
		d := decimal.NewFromFloat(c.Risk.MaxDailyLossDollar)
		limits.MaxDailyLossDollar = &d
	}
	if c.Risk.MaxOpenPositions > 0 {
		limits.MaxOpenPositions = c.Risk.MaxOpenPositions
	}
	if c.Risk.MaxConsecutiveLosses > 0 {
		limits.MaxConsecutiveLosses = c.Risk.MaxConsecutiveLosses
	}
	if c.Risk.MaxATRMultiplier > 0 {
		limits.MaxATRMultiplier = c.Risk.MaxATRMultiplier
	}
	return limits
}

// SizingMethod returns the configured sizing method, defaulting to fixed
// fractional.
func (c *Config) SizingMethod() sizing.Method {
	if c.Execution.SizingMethod == "" {
		return sizing.MethodFixedFractional
	}
	return sizing.Method(c.Execution.SizingMethod)
}

// InitialCash returns the starting cash as a decimal.
func (c *Config) InitialCash() decimal.Decimal {
	return decimal.NewFromFloat(c.Account.Cash)
}

// Default returns a configuration with sensible paper-trading defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Cash:     100000,
		},
		Execution: ExecutionConfig{
			SizingMethod:    string(sizing.MethodFixedFractional),
			RiskPerTradePct: 0.01,
		},
		Risk: RiskConfig{
			MaxRiskPerTradePct:   0.01,
			MaxPositionSizePct:   0.20,
			MaxRiskPerDayPct:     0.03,
			MaxDailyDrawdownPct:  0.05,
			MaxOpenPositions:     5,
			MaxConsecutiveLosses: 3,
			MaxATRMultiplier:     3.0,
		},
		Simulator: SimulatorConfig{
			SlippageBPS:        1.5,
			CommissionPerTrade: 2.0,
		},
		Journal: JournalConfig{
			Type: "csv",
			Dir:  "./journal",
		},
		Backtest: BacktestConfig{
			DataDir: "./data",
			MinBars: 50,
			Workers: 4,
		},
	}
}
