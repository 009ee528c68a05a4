package signal

import (
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/candles"
	"github.com/rame0/tinkoff-robot/internal/indicator"
)

// SMACrossoverConfig sets the fast and slow moving average lookbacks.
type SMACrossoverConfig struct {
	FastLength int `yaml:"fast_length"`
	SlowLength int `yaml:"slow_length"`
}

// SMACrossover buys when the fast average crosses the slow one and sells
// on the opposite crossing.
type SMACrossover struct {
	cfg SMACrossoverConfig
	log zerolog.Logger
}

func NewSMACrossover(cfg SMACrossoverConfig, log zerolog.Logger) *SMACrossover {
	if cfg.FastLength <= 0 {
		cfg.FastLength = 6
	}
	if cfg.SlowLength <= cfg.FastLength {
		cfg.SlowLength = cfg.FastLength * 2
	}
	return &SMACrossover{cfg: cfg, log: log.With().Str("signal", "sma_crossover").Logger()}
}

func (s *SMACrossover) Name() string { return "sma_crossover" }

// MinCandles needs two valid samples of the slow average.
func (s *SMACrossover) MinCandles() int { return s.cfg.SlowLength + 1 }

func (s *SMACrossover) Evaluate(w *candles.Window, _ Context) Result {
	if w.Len() < s.MinCandles() {
		return Hold
	}
	closes := w.Closes()
	fast := indicator.SMA(closes, s.cfg.FastLength)
	slow := indicator.SMA(closes, s.cfg.SlowLength)
	if fast == nil || slow == nil {
		return Hold
	}
	if indicator.Crossover(fast, slow) {
		s.log.Warn().Int("fast", s.cfg.FastLength).Int("slow", s.cfg.SlowLength).
			Msg("fast sma crossed slow, buying")
		return Buy
	}
	if indicator.Crossunder(fast, slow) {
		s.log.Warn().Int("fast", s.cfg.FastLength).Int("slow", s.cfg.SlowLength).
			Msg("fast sma crossed under slow, selling")
		return Sell
	}
	return Hold
}
