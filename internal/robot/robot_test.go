package robot

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/broker/sandbox"
	"github.com/rame0/tinkoff-robot/internal/config"
	"github.com/rame0/tinkoff-robot/internal/metrics"
)

func testSetup(t *testing.T, figi string) (*sandbox.Account, *Robot) {
	t.Helper()
	account := sandbox.NewAccount(10_000, zerolog.Nop())
	account.AddInstrument(broker.Instrument{
		Figi: figi, Ticker: "TST", Lot: 1, Currency: "rub", TradingAvailable: true,
	}, 100)
	account.SetCandles(figi, []broker.Candle{
		{Close: 100, Time: time.Unix(0, 0), Complete: true},
		{Close: 90, Time: time.Unix(60, 0), Complete: true},
	})
	account.SetPrice(figi, 90)

	cfg := &config.Config{
		Strategies: []config.StrategyConfig{{
			Figi:      figi,
			OrderLots: 1,
			Variant:   config.VariantStupid,
			Interval:  broker.Interval1Min,
		}},
	}
	r, err := New(cfg, Providers{Market: account, Portfolio: account, Orders: account}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new robot: %v", err)
	}
	return account, r
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	_, err := New(cfg, Providers{}, zerolog.Nop())
	if err == nil {
		t.Fatalf("expected error for empty strategy list")
	}
}

func TestRunOnceExecutesStrategies(t *testing.T) {
	ctx := context.Background()
	account, r := testSetup(t, "BBG00POLL0001")

	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	open, _ := account.OpenOrders(ctx)
	if len(open) != 1 || open[0].Direction != broker.Buy {
		t.Fatalf("expected a buy order after the cycle, got %+v", open)
	}
}

func TestRunOnceRefreshesSharedSnapshot(t *testing.T) {
	ctx := context.Background()
	account, r := testSetup(t, "BBG00POLL0002")
	account.SetPosition("BBG00POLL0002", 2, 80)

	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}
	pf := r.Snapshot().Portfolio()
	if pf.BuyPrice("BBG00POLL0002") != 80 {
		t.Fatalf("expected snapshot to carry the refreshed position")
	}
}

func TestStreamingDedupSingleTick(t *testing.T) {
	account, r := testSetup(t, "BBG00STRM0001")
	s := NewStreaming(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	// let the candle subscription land
	time.Sleep(50 * time.Millisecond)

	before := testutil.ToFloat64(metrics.CandlesTotal.WithLabelValues("BBG00STRM0001"))

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	// two bars truncating to the same minute: exactly one tick
	account.PushCandle("BBG00STRM0001", broker.Candle{Close: 89, Time: base.Add(5 * time.Second), Complete: true})
	account.PushCandle("BBG00STRM0001", broker.Candle{Close: 88, Time: base.Add(25 * time.Second), Complete: true})

	accepted := testutil.ToFloat64(metrics.CandlesTotal.WithLabelValues("BBG00STRM0001")) - before
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted candle, got %.0f", accepted)
	}
	open, _ := account.OpenOrders(context.Background())
	if len(open) != 1 {
		t.Fatalf("expected exactly one order from one tick, got %d", len(open))
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("streaming robot did not stop")
	}
}

func TestStreamingTeardownUnsubscribes(t *testing.T) {
	account, r := testSetup(t, "BBG00STRM0002")
	s := NewStreaming(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("streaming robot did not stop")
	}

	// callbacks after teardown must not tick
	account.PushCandle("BBG00STRM0002", broker.Candle{Close: 80, Time: time.Now(), Complete: true})
	open, _ := account.OpenOrders(context.Background())
	if len(open) != 0 {
		t.Fatalf("expected no orders after teardown, got %+v", open)
	}
}

func TestPortfolioPushReplacesSnapshot(t *testing.T) {
	account, r := testSetup(t, "BBG00STRM0003")
	s := NewStreaming(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// a fill notifies portfolio subscribers, which must replace the
	// shared snapshot
	_, err := account.PostLimitOrder(ctx, broker.LimitOrderRequest{
		Figi: "BBG00STRM0003", Direction: broker.Buy, Lots: 1, Price: 90,
	})
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	account.FillAll()

	deadline := time.After(2 * time.Second)
	for {
		if r.Snapshot().Portfolio().BuyPrice("BBG00STRM0003") == 90 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("snapshot never picked up the pushed portfolio")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
