package signal

import (
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/candles"
)

// BuyLowSellHighConfig carries the signal's tuning surface. TakeProfit
// and StopLoss are accepted but never read by the comparison below; the
// fee-adjusted spread alone drives both sides.
type BuyLowSellHighConfig struct {
	TakeProfit float64 `yaml:"take_profit"`
	StopLoss   float64 `yaml:"stop_loss"`
}

// DefaultBuyLowSellHighConfig returns the stock thresholds.
func DefaultBuyLowSellHighConfig() BuyLowSellHighConfig {
	return BuyLowSellHighConfig{TakeProfit: 15, StopLoss: 5}
}

// BuyLowSellHigh sells once the price has risen above cost plus fee and
// buys after a one-bar drop larger than the fee-adjusted spread.
type BuyLowSellHigh struct {
	cfg BuyLowSellHighConfig
	log zerolog.Logger
}

func NewBuyLowSellHigh(log zerolog.Logger) *BuyLowSellHigh {
	return &BuyLowSellHigh{
		cfg: DefaultBuyLowSellHighConfig(),
		log: log.With().Str("signal", "buy_low_sell_high").Logger(),
	}
}

func (s *BuyLowSellHigh) Name() string { return "buy_low_sell_high" }

// MinCandles needs the last two closes.
func (s *BuyLowSellHigh) MinCandles() int { return 2 }

func (s *BuyLowSellHigh) Evaluate(w *candles.Window, ctx Context) Result {
	if w.Len() < 2 {
		return Hold
	}
	closes := w.Closes()
	prevClose := closes[len(closes)-2]
	currClose := closes[len(closes)-1]

	if ctx.AvailableLots > 0 && currClose >= ctx.AvgBuyPrice+ctx.FeeAdjustedSpread {
		s.log.Warn().Float64("close", currClose).Float64("avg_buy", ctx.AvgBuyPrice).
			Msg("price rose above cost plus fee, selling")
		return Sell
	}
	if currClose <= prevClose-ctx.FeeAdjustedSpread {
		s.log.Warn().Float64("close", currClose).Float64("prev_close", prevClose).
			Msg("price dropped, buying")
		return Buy
	}
	return Hold
}
