package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/signal"
)

const sampleYAML = `
app:
  metrics_addr: ":9100"
  log_level: warn
  sandbox: true
stream:
  reconnect_backoff_ms: 0
  portfolio_poll_secs: 50
strategies:
  - figi: BBG000DBD6F6
    order_lots: 1
    broker_fee: 0.05
    variant: profit_rsi_sma
    interval: 1min
    profit: { take_profit: 1.5, stop_loss: 1.5 }
    sma: { fast_length: 6, slow_length: 12 }
    rsi: { period: 14, high_level: 70, low_level: 30 }
    keep_orders_alive: { buy: 5, sell: 15 }
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSample(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.App.MetricsAddr)
	assert.True(t, cfg.App.Sandbox)
	require.Len(t, cfg.Strategies, 1)

	st := cfg.Strategies[0]
	assert.Equal(t, "BBG000DBD6F6", st.Figi)
	assert.Equal(t, VariantProfitRsiSMA, st.Variant)
	assert.Equal(t, broker.Interval1Min, st.Interval)
	assert.Equal(t, 5, st.KeepOrdersAlive.Buy)
	assert.Equal(t, 15, st.KeepOrdersAlive.Sell)
	require.NotNil(t, st.RSI)
	assert.Equal(t, 14, st.RSI.Period)
}

func TestValidateRejectsUnknownVariant(t *testing.T) {
	cfg := &Config{Strategies: []StrategyConfig{{
		Figi:      "X",
		OrderLots: 1,
		Variant:   Variant("martingale"),
		Interval:  broker.Interval1Min,
	}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy variant")
}

func TestValidateRejectsBadInterval(t *testing.T) {
	cfg := &Config{Strategies: []StrategyConfig{{
		Figi:      "X",
		OrderLots: 1,
		Variant:   VariantRandom,
		Interval:  broker.Interval("2min"),
	}}}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresSignalConfig(t *testing.T) {
	cfg := &Config{Strategies: []StrategyConfig{{
		Figi:      "X",
		OrderLots: 1,
		Variant:   VariantProfitRsiSMA,
		Interval:  broker.Interval1Min,
	}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := &Config{
		App: App{LogLevel: "info"},
		Strategies: []StrategyConfig{{
			Figi:      "TCS10A101X50",
			OrderLots: 100,
			Variant:   VariantStupid,
			Interval:  broker.Interval1Min,
			Profit:    &signal.ProfitLossConfig{TakeProfit: 1.5, StopLoss: 1.5},
		}},
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Strategies[0].Figi, loaded.Strategies[0].Figi)
	require.NotNil(t, loaded.Strategies[0].Profit)
	assert.InDelta(t, 1.5, loaded.Strategies[0].Profit.TakeProfit, 1e-9)
}
