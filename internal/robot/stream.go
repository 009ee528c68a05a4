package robot

import (
	"context"
	"sync"
	"time"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/metrics"
	"github.com/rame0/tinkoff-robot/internal/strategy"
)

const defaultPortfolioPoll = 50 * time.Second

// StreamingRobot drives the engines from pushed candles instead of a
// polling cycle. Portfolio pushes replace the shared snapshot directly; a
// low-frequency poll refreshes it as a fallback.
type StreamingRobot struct {
	*Robot

	// mu serializes engine ticks: one callback at a time, so engine
	// state never sees concurrent mutation.
	mu      sync.Mutex
	running bool
}

// NewStreaming wraps a constructed Robot for streaming execution.
func NewStreaming(r *Robot) *StreamingRobot {
	return &StreamingRobot{Robot: r}
}

// Run subscribes every strategy to its candle feed plus one account-level
// portfolio feed, then blocks until the context is canceled. Teardown
// invokes every unsubscribe handle and clears the running flag; in-flight
// callbacks finish naturally.
func (s *StreamingRobot) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	var unsubscribes []func()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		for _, unsub := range unsubscribes {
			unsub()
		}
		s.log.Warn().Msg("streaming robot stopped")
	}()

	// prime the shared snapshot so the first pushed bar can act
	if err := s.snapshot.RefreshPortfolio(ctx, s.prov.Portfolio); err != nil {
		return err
	}
	if err := s.snapshot.RefreshOrders(ctx, s.prov.Orders); err != nil {
		return err
	}

	unsubPortfolio, err := s.prov.Portfolio.SubscribePortfolio(ctx, func(p broker.Portfolio) {
		s.snapshot.SetPortfolio(p)
	})
	if err != nil {
		return err
	}
	unsubscribes = append(unsubscribes, unsubPortfolio)

	for _, engine := range s.engines {
		engine := engine
		s.log.Info().Str("figi", engine.Figi()).Str("interval", string(engine.Interval())).
			Msg("subscribing to candles")
		unsub, err := s.prov.Market.SubscribeCandles(ctx, engine.Figi(), engine.Interval(),
			func(c broker.Candle) { s.onCandle(ctx, engine, c) })
		if err != nil {
			return err
		}
		unsubscribes = append(unsubscribes, unsub)
	}

	poll := defaultPortfolioPoll
	if s.cfg.Stream.PortfolioPollSecs > 0 {
		poll = time.Duration(s.cfg.Stream.PortfolioPollSecs) * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.snapshot.RefreshPortfolio(ctx, s.prov.Portfolio); err != nil {
				s.log.Error().Err(err).Msg("portfolio fallback poll failed")
			}
		}
	}
}

// onCandle applies the dedup rule and runs exactly one tick for an
// accepted bar.
func (s *StreamingRobot) onCandle(ctx context.Context, engine *strategy.Engine, c broker.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if !engine.AcceptStreamCandle(c) {
		return
	}
	metrics.CandlesTotal.WithLabelValues(engine.Figi()).Inc()
	if err := engine.Tick(ctx, &c); err != nil {
		metrics.StrategyErrorsTotal.WithLabelValues(engine.Figi()).Inc()
		s.log.Error().Err(err).Str("figi", engine.Figi()).Msg("stream tick failed")
	}
}
