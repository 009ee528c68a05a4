package signal

import (
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/candles"
	"github.com/rame0/tinkoff-robot/internal/indicator"
)

// RSICrossoverConfig sets the RSI period and the trigger levels.
type RSICrossoverConfig struct {
	Period    int     `yaml:"period"`
	HighLevel float64 `yaml:"high_level"`
	LowLevel  float64 `yaml:"low_level"`
}

// RSICrossover buys when the RSI drops below the low level and sells when
// it rises above the high level.
type RSICrossover struct {
	cfg RSICrossoverConfig
	log zerolog.Logger
}

func NewRSICrossover(cfg RSICrossoverConfig, log zerolog.Logger) *RSICrossover {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.HighLevel <= 0 {
		cfg.HighLevel = 70
	}
	if cfg.LowLevel <= 0 {
		cfg.LowLevel = 30
	}
	return &RSICrossover{cfg: cfg, log: log.With().Str("signal", "rsi_crossover").Logger()}
}

func (s *RSICrossover) Name() string { return "rsi_crossover" }

// MinCandles needs period+1 closes for one RSI value plus one more for
// the crossing.
func (s *RSICrossover) MinCandles() int { return s.cfg.Period + 2 }

func (s *RSICrossover) Evaluate(w *candles.Window, _ Context) Result {
	if w.Len() < s.MinCandles() {
		return Hold
	}
	series := indicator.RSI(w.Closes(), s.cfg.Period)
	if len(series) < 2 {
		return Hold
	}
	prev, curr := series[len(series)-2], series[len(series)-1]
	if prev >= s.cfg.LowLevel && curr < s.cfg.LowLevel {
		s.log.Warn().Float64("rsi", curr).Float64("level", s.cfg.LowLevel).
			Msg("rsi fell through low level, buying")
		return Buy
	}
	if prev <= s.cfg.HighLevel && curr > s.cfg.HighLevel {
		s.log.Warn().Float64("rsi", curr).Float64("level", s.cfg.HighLevel).
			Msg("rsi rose through high level, selling")
		return Sell
	}
	return Hold
}
