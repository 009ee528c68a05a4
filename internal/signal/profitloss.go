package signal

import (
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/candles"
)

// ProfitLossConfig sets the exit thresholds as percentages of the buy
// price.
type ProfitLossConfig struct {
	// TakeProfit sells once the current yield reaches this gain.
	TakeProfit float64 `yaml:"take_profit"`
	// StopLoss sells once the loss reaches this size.
	StopLoss float64 `yaml:"stop_loss"`
}

// ProfitLoss closes a held position on strong deviation of the current
// price from the acquisition price, either direction.
type ProfitLoss struct {
	cfg ProfitLossConfig
	log zerolog.Logger
}

func NewProfitLoss(cfg ProfitLossConfig, log zerolog.Logger) *ProfitLoss {
	return &ProfitLoss{cfg: cfg, log: log.With().Str("signal", "profit_loss").Logger()}
}

func (s *ProfitLoss) Name() string { return "profit_loss" }

func (s *ProfitLoss) MinCandles() int { return 1 }

func (s *ProfitLoss) Evaluate(_ *candles.Window, ctx Context) Result {
	// ProfitPercent is zero without a position, so neither branch can
	// fire a spurious sell on an empty portfolio.
	if ctx.AvailableLots <= 0 {
		return Hold
	}
	if s.cfg.TakeProfit > 0 && ctx.ProfitPercent >= s.cfg.TakeProfit {
		s.log.Warn().Float64("profit_pct", ctx.ProfitPercent).Msg("take profit reached")
		return Sell
	}
	if s.cfg.StopLoss > 0 && ctx.ProfitPercent <= -s.cfg.StopLoss {
		s.log.Warn().Float64("profit_pct", ctx.ProfitPercent).Msg("stop loss reached")
		return Sell
	}
	return Hold
}
