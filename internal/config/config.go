// Package config exposes strongly typed robot configuration loaded from
// YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/signal"
)

// Variant selects one of the closed set of strategy behaviors.
type Variant string

const (
	VariantProfitRsiSMA Variant = "profit_rsi_sma"
	VariantStupid       Variant = "stupid"
	VariantRandom       Variant = "random"
)

// KeepOrdersAlive holds the per-direction retry thresholds: how many ticks
// a standing order survives before it is canceled and replaced.
type KeepOrdersAlive struct {
	Buy  int `yaml:"buy"`
	Sell int `yaml:"sell"`
}

// StrategyConfig describes one strategy instance bound to one instrument.
type StrategyConfig struct {
	Figi            string                       `yaml:"figi"`
	OrderLots       int                          `yaml:"order_lots"`
	BrokerFee       float64                      `yaml:"broker_fee"`
	Variant         Variant                      `yaml:"variant"`
	Interval        broker.Interval              `yaml:"interval"`
	Profit          *signal.ProfitLossConfig     `yaml:"profit,omitempty"`
	SMA             *signal.SMACrossoverConfig   `yaml:"sma,omitempty"`
	RSI             *signal.RSICrossoverConfig   `yaml:"rsi,omitempty"`
	KeepOrdersAlive KeepOrdersAlive              `yaml:"keep_orders_alive"`
}

// Stream tunes the streaming robot.
type Stream struct {
	// ReconnectBackoffMs spaces resubscription attempts. Zero retries
	// immediately.
	ReconnectBackoffMs int `yaml:"reconnect_backoff_ms"`
	// PortfolioPollSecs is the fallback portfolio refresh cadence used
	// alongside push updates.
	PortfolioPollSecs int `yaml:"portfolio_poll_secs"`
}

// App captures process-wide runtime settings.
type App struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	DryRun      bool   `yaml:"dry_run"`
	Sandbox     bool   `yaml:"sandbox"`
	// TradesPath is where executed orders are appended as JSONL;
	// empty disables recording.
	TradesPath string `yaml:"trades_path"`
}

// Config collects every configuration leaf for marshaling from YAML.
type Config struct {
	App        App              `yaml:"app"`
	Stream     Stream           `yaml:"stream"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// Load reads a YAML file from disk, hydrates a Config and validates it.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the robot must not start with.
func (c *Config) Validate() error {
	if len(c.Strategies) == 0 {
		return fmt.Errorf("config: at least one strategy required")
	}
	for i := range c.Strategies {
		if err := c.Strategies[i].Validate(); err != nil {
			return fmt.Errorf("strategy %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks one strategy block.
func (s *StrategyConfig) Validate() error {
	if s.Figi == "" {
		return fmt.Errorf("figi is required")
	}
	if s.OrderLots <= 0 {
		return fmt.Errorf("order_lots must be positive")
	}
	if s.BrokerFee < 0 {
		return fmt.Errorf("broker_fee must not be negative")
	}
	if _, err := s.Interval.Duration(); err != nil {
		return err
	}
	if s.KeepOrdersAlive.Buy < 0 || s.KeepOrdersAlive.Sell < 0 {
		return fmt.Errorf("keep_orders_alive thresholds must not be negative")
	}
	switch s.Variant {
	case VariantProfitRsiSMA:
		if s.Profit == nil && s.SMA == nil && s.RSI == nil {
			return fmt.Errorf("variant %s needs at least one of profit/sma/rsi", s.Variant)
		}
	case VariantStupid, VariantRandom:
	default:
		return fmt.Errorf("unknown strategy variant %q", string(s.Variant))
	}
	return nil
}
