package signal

import (
	"math/rand"

	"github.com/rame0/tinkoff-robot/internal/candles"
)

// Random draws one of buy/sell/hold with equal probability on every
// evaluation. Baseline for validating the orchestration independent of
// market logic.
type Random struct {
	rng *rand.Rand
}

// NewRandom builds the baseline signal. A nil source falls back to the
// global generator.
func NewRandom(rng *rand.Rand) *Random {
	return &Random{rng: rng}
}

func (s *Random) Name() string { return "random" }

func (s *Random) MinCandles() int { return 1 }

func (s *Random) Evaluate(_ *candles.Window, _ Context) Result {
	var n int
	if s.rng != nil {
		n = s.rng.Intn(3)
	} else {
		n = rand.Intn(3)
	}
	switch n {
	case 0:
		return Buy
	case 1:
		return Sell
	default:
		return Hold
	}
}
