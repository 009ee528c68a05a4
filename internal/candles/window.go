// Package candles keeps the bounded per-instrument bar history signals
// evaluate against.
package candles

import (
	"github.com/rame0/tinkoff-robot/internal/broker"
)

// Window is an ordered FIFO of candles with a fixed capacity, sized at
// construction to the largest lookback any active signal needs. Length
// never exceeds capacity; pushing at capacity evicts the oldest bar.
type Window struct {
	bars []broker.Candle
	cap  int
}

// NewWindow builds an empty window holding up to capacity bars.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{bars: make([]broker.Candle, 0, capacity), cap: capacity}
}

// Cap returns the fixed capacity.
func (w *Window) Cap() int { return w.cap }

// Len returns the current number of bars.
func (w *Window) Len() int { return len(w.bars) }

// Reload replaces the whole history with the tail of bars (bulk population
// on cold start and in polling mode). Bars are expected oldest first.
func (w *Window) Reload(bars []broker.Candle) {
	if len(bars) > w.cap {
		bars = bars[len(bars)-w.cap:]
	}
	w.bars = w.bars[:0]
	w.bars = append(w.bars, bars...)
}

// Push appends one bar, evicting the oldest when at capacity (incremental
// population in streaming mode).
func (w *Window) Push(bar broker.Candle) {
	if len(w.bars) == w.cap {
		copy(w.bars, w.bars[1:])
		w.bars[len(w.bars)-1] = bar
		return
	}
	w.bars = append(w.bars, bar)
}

// At returns the i-th bar, oldest first.
func (w *Window) At(i int) broker.Candle { return w.bars[i] }

// Last returns the most recent bar; ok is false on an empty window.
func (w *Window) Last() (broker.Candle, bool) {
	if len(w.bars) == 0 {
		return broker.Candle{}, false
	}
	return w.bars[len(w.bars)-1], true
}

// Closes returns the close price series, oldest first. The slice is a copy
// so callers cannot mutate the window through it.
func (w *Window) Closes() []float64 {
	out := make([]float64, len(w.bars))
	for i, bar := range w.bars {
		out[i] = bar.Close
	}
	return out
}
