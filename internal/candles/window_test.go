package candles

import (
	"testing"
	"time"

	"github.com/rame0/tinkoff-robot/internal/broker"
)

func bar(close float64) broker.Candle {
	return broker.Candle{Close: close, Time: time.Unix(int64(close), 0), Complete: true}
}

func TestPushNeverExceedsCapacity(t *testing.T) {
	w := NewWindow(5)
	for i := 1; i <= 100; i++ {
		w.Push(bar(float64(i)))
		if w.Len() > w.Cap() {
			t.Fatalf("len %d exceeded cap %d after %d pushes", w.Len(), w.Cap(), i)
		}
	}
	if w.Len() != 5 {
		t.Fatalf("expected full window, got len %d", w.Len())
	}
}

func TestPushEvictsOldestFirst(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 4; i++ {
		w.Push(bar(float64(i)))
	}
	closes := w.Closes()
	want := []float64{2, 3, 4}
	for i, c := range want {
		if closes[i] != c {
			t.Fatalf("expected closes %v, got %v", want, closes)
		}
	}
}

func TestReloadKeepsTail(t *testing.T) {
	w := NewWindow(2)
	w.Reload([]broker.Candle{bar(1), bar(2), bar(3)})
	if w.Len() != 2 {
		t.Fatalf("expected len 2, got %d", w.Len())
	}
	last, ok := w.Last()
	if !ok || last.Close != 3 {
		t.Fatalf("expected newest bar to survive reload, got %+v", last)
	}
	if w.At(0).Close != 2 {
		t.Fatalf("expected oldest retained bar close 2, got %.1f", w.At(0).Close)
	}
}

func TestLastOnEmptyWindow(t *testing.T) {
	w := NewWindow(3)
	if _, ok := w.Last(); ok {
		t.Fatalf("expected ok=false on empty window")
	}
}

func TestClosesIsACopy(t *testing.T) {
	w := NewWindow(2)
	w.Push(bar(10))
	closes := w.Closes()
	closes[0] = 999
	if w.At(0).Close != 10 {
		t.Fatalf("mutating Closes() result leaked into the window")
	}
}
