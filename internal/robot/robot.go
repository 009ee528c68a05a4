// Package robot owns the orchestration of strategy engines: the polling
// cycle and the streaming variant with its resync behavior.
package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/config"
	"github.com/rame0/tinkoff-robot/internal/metrics"
	"github.com/rame0/tinkoff-robot/internal/report"
	"github.com/rame0/tinkoff-robot/internal/strategy"
)

// Providers groups the broker collaborators the robot drives.
type Providers struct {
	Market    broker.MarketDataProvider
	Portfolio broker.PortfolioProvider
	Orders    broker.OrderProvider
	Recorder  report.Recorder
}

// Robot runs every configured strategy against one account on a shared
// cadence.
type Robot struct {
	cfg      *config.Config
	prov     Providers
	log      zerolog.Logger
	snapshot *broker.Snapshot
	engines  []*strategy.Engine
	delay    time.Duration
}

// New validates the configuration and constructs all strategy engines.
// Construction failures are fatal: the robot must not start.
func New(cfg *config.Config, prov Providers, log zerolog.Logger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Robot{
		cfg:      cfg,
		prov:     prov,
		log:      log.With().Str("component", "robot").Logger(),
		snapshot: broker.NewSnapshot(),
	}
	deps := strategy.Deps{
		Market:    prov.Market,
		Portfolio: prov.Portfolio,
		Orders:    prov.Orders,
		Snapshot:  r.snapshot,
		Recorder:  prov.Recorder,
		DryRun:    cfg.App.DryRun,
	}
	for _, sc := range cfg.Strategies {
		engine, err := strategy.New(sc, deps, log)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Figi, err)
		}
		r.engines = append(r.engines, engine)
	}

	// all strategies share one cadence, derived from the first one
	delay, err := cfg.Strategies[0].Interval.Duration()
	if err != nil {
		return nil, err
	}
	r.delay = delay
	return r, nil
}

// Engines exposes the constructed engines (streaming robot, stats).
func (r *Robot) Engines() []*strategy.Engine { return r.engines }

// Snapshot exposes the shared portfolio/order view.
func (r *Robot) Snapshot() *broker.Snapshot { return r.snapshot }

// Run executes cycles until the context is canceled. With once set it
// runs a single cycle and returns, for external schedulers.
func (r *Robot) Run(ctx context.Context, once bool) error {
	if once {
		return r.RunOnce(ctx)
	}
	for {
		if err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// one failed engine aborts the whole cycle; the next
			// cycle starts fresh
			r.log.Error().Err(err).Msg("cycle failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay):
		}
	}
}

// RunOnce refreshes the shared snapshots once, then dispatches one tick
// to every engine concurrently and joins. The first engine error cancels
// the remaining ticks of this cycle.
func (r *Robot) RunOnce(ctx context.Context) error {
	r.log.Info().Msg("robot cycle started")
	if err := r.snapshot.RefreshPortfolio(ctx, r.prov.Portfolio); err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}
	if err := r.snapshot.RefreshOrders(ctx, r.prov.Orders); err != nil {
		return fmt.Errorf("load orders: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, engine := range r.engines {
		engine := engine
		g.Go(func() error {
			if err := engine.Tick(gctx, nil); err != nil {
				metrics.StrategyErrorsTotal.WithLabelValues(engine.Figi()).Inc()
				return fmt.Errorf("strategy %s: %w", engine.Figi(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.log.Info().Msg("robot cycle finished")
	return nil
}
