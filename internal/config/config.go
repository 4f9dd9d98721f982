// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/backtest"
	"github.com/tathienbao/volarb/internal/strategy"
	"github.com/tathienbao/volarb/internal/types"
	"gopkg.in/yaml.v3"
)

// dateLayout is the accepted format for backtest.start and backtest.end.
const dateLayout = "2006-01-02"

// Config represents the full application configuration.
type Config struct {
	Data        DataConfig        `yaml:"data"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// DataConfig points at the bar data to replay.
type DataConfig struct {
	CSVPath string `yaml:"csv_path"`
	Symbol  string `yaml:"symbol"`
}

// BacktestConfig holds backtest run settings.
type BacktestConfig struct {
	Start                   string  `yaml:"start"` // YYYY-MM-DD
	End                     string  `yaml:"end"`   // YYYY-MM-DD
	InitialCapital          float64 `yaml:"initial_capital"`
	IncludeTransactionCosts bool    `yaml:"include_transaction_costs"`
	CostPerTrade            float64 `yaml:"cost_per_trade"`
	CostPercent             float64 `yaml:"cost_percent"`
}

// StrategyConfig holds the volatility-arbitrage strategy settings.
type StrategyConfig struct {
	HoldingPeriod  int         `yaml:"holding_period"`
	EntryQuantity  float64     `yaml:"entry_quantity"`
	TenorDays      int         `yaml:"tenor_days"`
	EntryThreshold float64     `yaml:"entry_threshold"`
	ExitThreshold  float64     `yaml:"exit_threshold"`
	TargetDelta    float64     `yaml:"target_delta"`
	DeltaTolerance float64     `yaml:"delta_tolerance"`
	GARCH          GARCHConfig `yaml:"garch"`
}

// GARCHConfig pins explicit GARCH parameters. All zeros means calibrate
// from the data instead.
type GARCHConfig struct {
	Omega        float64 `yaml:"omega"`
	Alpha        float64 `yaml:"alpha"`
	Beta         float64 `yaml:"beta"`
	CalibrateMLE bool    `yaml:"calibrate_mle"`
}

// SweepConfig holds parameter sweep settings.
type SweepConfig struct {
	Workers int                  `yaml:"workers"`
	Grid    map[string][]float64 `yaml:"grid"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// PersistenceConfig holds result storage settings.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. Environment
// variables in the document are expanded before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration, collecting every problem into a
// single error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string

	// Data validation
	if c.Data.Symbol == "" {
		errs = append(errs, "data.symbol is required")
	}

	// Backtest validation
	if c.Backtest.InitialCapital <= 0 {
		errs = append(errs, "backtest.initial_capital must be positive")
	}
	var start, end time.Time
	if c.Backtest.Start != "" {
		t, err := time.Parse(dateLayout, c.Backtest.Start)
		if err != nil {
			errs = append(errs, "backtest.start must be formatted YYYY-MM-DD")
		} else {
			start = t
		}
	}
	if c.Backtest.End != "" {
		t, err := time.Parse(dateLayout, c.Backtest.End)
		if err != nil {
			errs = append(errs, "backtest.end must be formatted YYYY-MM-DD")
		} else {
			end = t
		}
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		errs = append(errs, "backtest.start must be before backtest.end")
	}

	// Strategy validation
	if c.Strategy.HoldingPeriod <= 0 {
		errs = append(errs, "strategy.holding_period must be positive")
	}
	if c.Strategy.EntryQuantity <= 0 {
		errs = append(errs, "strategy.entry_quantity must be positive")
	}
	if c.Strategy.TenorDays <= 0 {
		errs = append(errs, "strategy.tenor_days must be positive")
	}
	if c.Strategy.EntryThreshold < 0 || c.Strategy.ExitThreshold < 0 {
		errs = append(errs, "strategy thresholds must not be negative")
	}
	if c.Strategy.EntryThreshold <= c.Strategy.ExitThreshold {
		errs = append(errs, "strategy.entry_threshold must exceed strategy.exit_threshold")
	}

	// GARCH validation only when parameters are pinned
	if c.HasPinnedGARCH() {
		g := c.Strategy.GARCH
		if g.Omega <= 0 {
			errs = append(errs, "strategy.garch.omega must be positive")
		}
		if g.Alpha < 0 || g.Beta < 0 {
			errs = append(errs, "strategy.garch.alpha and beta must not be negative")
		}
		if g.Alpha+g.Beta >= 1 {
			errs = append(errs, "strategy.garch must be stationary (alpha + beta < 1)")
		}
	}

	// Sweep validation
	if c.Sweep.Workers < 0 {
		errs = append(errs, "sweep.workers must not be negative")
	}

	// Metrics defaults
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 {
			c.Metrics.Port = 9090
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
	}

	// Persistence validation
	if c.Persistence.Enabled && c.Persistence.Path == "" {
		errs = append(errs, "persistence.path is required when persistence is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// HasPinnedGARCH reports whether the config pins explicit GARCH
// parameters rather than calibrating from the data.
func (c *Config) HasPinnedGARCH() bool {
	g := c.Strategy.GARCH
	return g.Omega != 0 || g.Alpha != 0 || g.Beta != 0
}

// ToBacktestParams converts the backtest section into engine parameters.
// Fields left empty fall back to the engine defaults.
func (c *Config) ToBacktestParams() backtest.Params {
	params := backtest.DefaultParams()
	if t, err := time.Parse(dateLayout, c.Backtest.Start); err == nil {
		params.Start = t
	}
	if t, err := time.Parse(dateLayout, c.Backtest.End); err == nil {
		params.End = t
	}
	if c.Backtest.InitialCapital > 0 {
		params.InitialCapital = decimal.NewFromFloat(c.Backtest.InitialCapital)
	}
	if c.Data.Symbol != "" {
		params.Symbols = []string{c.Data.Symbol}
	}
	params.IncludeTransactionCosts = c.Backtest.IncludeTransactionCosts
	params.CostPerTrade = decimal.NewFromFloat(c.Backtest.CostPerTrade)
	params.CostPercent = decimal.NewFromFloat(c.Backtest.CostPercent)
	return params
}

// ToStrategyConfig converts the strategy section.
func (c *Config) ToStrategyConfig() strategy.Config {
	return strategy.Config{
		HoldingPeriod:  c.Strategy.HoldingPeriod,
		EntryQuantity:  c.Strategy.EntryQuantity,
		TenorDays:      c.Strategy.TenorDays,
		EntryThreshold: c.Strategy.EntryThreshold,
		ExitThreshold:  c.Strategy.ExitThreshold,
		TargetDelta:    c.Strategy.TargetDelta,
		DeltaTolerance: c.Strategy.DeltaTolerance,
	}
}

// InitialCapitalDecimal returns the starting capital as decimal.
func (c *Config) InitialCapitalDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Backtest.InitialCapital)
}

// MetricsAddr returns the listen address for the metrics server.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf(":%d", c.Metrics.Port)
}
