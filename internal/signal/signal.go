// Package signal holds the ternary market signals a strategy combines
// into one order decision per tick.
package signal

import (
	"github.com/rame0/tinkoff-robot/internal/candles"
)

// Result is the verdict of one signal evaluation.
type Result int

const (
	Hold Result = iota
	Buy
	Sell
)

func (r Result) String() string {
	switch r {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}

// Context is the auxiliary position/price state a signal may consult in
// addition to the candle window. Passed by value: signals never mutate
// shared state.
type Context struct {
	// AvgBuyPrice is the average acquisition price, zero without a position.
	AvgBuyPrice float64
	// FeeAdjustedSpread is the price move that covers the broker fee.
	FeeAdjustedSpread float64
	// AvailableLots is the unblocked position size in lots.
	AvailableLots int
	// ProfitPercent is the current yield for one unit sold now, fees
	// included. Zero without a position.
	ProfitPercent float64
}

// Signal is one configured evaluator. MinCandles sizes the window at
// strategy construction; Evaluate must treat the window as read-only.
type Signal interface {
	Name() string
	MinCandles() int
	Evaluate(w *candles.Window, ctx Context) Result
}
