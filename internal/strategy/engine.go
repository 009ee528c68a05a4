// Package strategy runs the per-instrument decision loop: window upkeep,
// signal combination and the retry-before-cancel order lifecycle.
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/candles"
	"github.com/rame0/tinkoff-robot/internal/config"
	"github.com/rame0/tinkoff-robot/internal/metrics"
	"github.com/rame0/tinkoff-robot/internal/report"
	"github.com/rame0/tinkoff-robot/internal/signal"
)

// Deps bundles the collaborators one engine works through.
type Deps struct {
	Market    broker.MarketDataProvider
	Portfolio broker.PortfolioProvider
	Orders    broker.OrderProvider
	// Snapshot is the shared read-mostly portfolio/order view owned by
	// the orchestrator.
	Snapshot *broker.Snapshot
	// Recorder is optional; nil disables trade recording.
	Recorder report.Recorder
	DryRun   bool
}

// Engine owns one strategy instance: its candle window, retry counters and
// profit bookkeeping. Not safe for concurrent ticks on the same instance;
// the orchestrator dispatches at most one tick per engine per cycle.
type Engine struct {
	cfg  config.StrategyConfig
	deps Deps
	log  zerolog.Logger

	signals     []signal.Signal
	suppressBuy bool // suppress buy while a position is held (variant policy)

	window     *candles.Window
	required   int
	instrument *broker.Instrument

	fails map[broker.Direction]int

	currentPrice  float64
	currentProfit float64
	totalProfit   float64

	// streaming dedup state
	lastTime time.Time
	delay    time.Duration
}

// New builds an engine for the configured variant. Unknown variants and
// missing signal configs are construction errors; the engine must not be
// started.
func New(cfg config.StrategyConfig, deps Deps, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		deps:  deps,
		log:   log.With().Str("strategy", string(cfg.Variant)).Str("figi", cfg.Figi).Logger(),
		fails: map[broker.Direction]int{broker.Buy: 0, broker.Sell: 0},
	}
	if err := e.buildVariant(); err != nil {
		return nil, err
	}

	e.required = 1
	for _, s := range e.signals {
		if n := s.MinCandles(); n > e.required {
			e.required = n
		}
	}
	e.window = candles.NewWindow(e.required)

	delay, err := cfg.Interval.Duration()
	if err != nil {
		return nil, err
	}
	e.delay = delay
	return e, nil
}

// Figi returns the configured instrument id.
func (e *Engine) Figi() string { return e.cfg.Figi }

// Interval returns the configured candle interval.
func (e *Engine) Interval() broker.Interval { return e.cfg.Interval }

// TotalProfit returns the accumulated realized profit estimate.
func (e *Engine) TotalProfit() float64 { return e.totalProfit }

// RequiredCandles returns the window capacity derived from the signals.
func (e *Engine) RequiredCandles() int { return e.required }

// AcceptStreamCandle applies the streaming dedup rule: the bar time is
// truncated to the interval granularity and discarded unless it is at
// least one full interval past the last processed bar. Accepting records
// the new timestamp.
func (e *Engine) AcceptStreamCandle(c broker.Candle) bool {
	t := e.cfg.Interval.TruncateTime(c.Time)
	if e.lastTime.Add(e.delay).After(t) {
		return false
	}
	e.lastTime = t
	return true
}

// Tick runs one evaluation. newCandle is nil in polling mode (bulk window
// reload) and carries the freshly accepted bar in streaming mode.
func (e *Engine) Tick(ctx context.Context, newCandle *broker.Candle) error {
	metrics.TicksTotal.WithLabelValues(e.cfg.Figi).Inc()

	if err := e.loadInstrument(ctx); err != nil {
		return err
	}
	if !e.instrument.TradingAvailable {
		e.log.Warn().Msg("instrument is not tradable now, skipping tick")
		return nil
	}
	if err := e.refreshWindow(ctx, newCandle); err != nil {
		return err
	}
	if err := e.deps.Snapshot.RefreshOrders(ctx, e.deps.Orders); err != nil {
		return fmt.Errorf("refresh orders: %w", err)
	}
	if err := e.refreshPrice(ctx); err != nil {
		return err
	}
	e.calcCurrentProfit()

	verdict := e.calcSignal()
	if verdict == signal.Hold {
		return nil
	}
	if err := e.deps.Snapshot.RefreshPortfolioWithBlocked(ctx, e.deps.Portfolio); err != nil {
		return fmt.Errorf("refresh positions: %w", err)
	}
	switch verdict {
	case signal.Buy:
		return e.buy(ctx)
	case signal.Sell:
		return e.sell(ctx)
	}
	return nil
}

func (e *Engine) loadInstrument(ctx context.Context) error {
	if e.instrument != nil {
		return nil
	}
	instr, err := e.deps.Market.Instrument(ctx, e.cfg.Figi)
	if err != nil {
		return fmt.Errorf("load instrument %s: %w", e.cfg.Figi, err)
	}
	e.instrument = &instr
	return nil
}

func (e *Engine) refreshWindow(ctx context.Context, newCandle *broker.Candle) error {
	if newCandle != nil && e.window.Len() >= e.required {
		e.window.Push(*newCandle)
		return nil
	}
	bars, err := e.deps.Market.Candles(ctx, e.cfg.Figi, e.cfg.Interval, e.required)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	e.window.Reload(bars)
	if newCandle != nil {
		e.window.Push(*newCandle)
	}
	return nil
}

func (e *Engine) refreshPrice(ctx context.Context) error {
	price, err := e.deps.Market.CurrentPrice(ctx, e.cfg.Figi)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}
	e.currentPrice = price
	return nil
}

// fee is the broker commission for a round trip at the two prices.
func (e *Engine) fee(buyPrice, sellPrice float64) float64 {
	return (buyPrice + sellPrice) * e.cfg.BrokerFee / 100
}

// calcCurrentProfit computes the yield of selling one unit now, fees
// included. Zero without a position, so signals never see a phantom gain.
func (e *Engine) calcCurrentProfit() {
	buyPrice := e.deps.Snapshot.Portfolio().BuyPrice(e.cfg.Figi)
	if buyPrice == 0 {
		e.currentProfit = 0
		return
	}
	profit := e.currentPrice - buyPrice - e.fee(buyPrice, e.currentPrice)
	e.currentProfit = 100 * profit / buyPrice
}

func (e *Engine) signalContext() signal.Context {
	buyPrice := e.deps.Snapshot.Portfolio().BuyPrice(e.cfg.Figi)
	return signal.Context{
		AvgBuyPrice:       buyPrice,
		FeeAdjustedSpread: buyPrice * e.cfg.BrokerFee / 100,
		AvailableLots:     e.availableLots(),
		ProfitPercent:     e.currentProfit,
	}
}

// calcSignal combines the ordered signal list: first non-hold wins.
func (e *Engine) calcSignal() signal.Result {
	ctx := e.signalContext()
	combined := signal.Hold
	logEvent := e.log.Info()
	for _, s := range e.signals {
		verdict := s.Evaluate(e.window, ctx)
		logEvent = logEvent.Str(s.Name(), verdict.String())
		if combined == signal.Hold {
			combined = verdict
		}
	}
	if e.suppressBuy && combined == signal.Buy && ctx.AvailableLots > 0 {
		combined = signal.Hold
	}
	logEvent.Str("combined", combined.String()).Msg("signals")
	return combined
}

func (e *Engine) availableLots() int {
	qty := e.deps.Snapshot.Portfolio().AvailableQty(e.cfg.Figi)
	return int(math.Round(qty / float64(e.instrument.Lot)))
}

// checkCancelOrders implements the retry-before-cancel rule for one
// direction. Returns false while a standing order is given another tick;
// true once the path is clear to place a new order.
func (e *Engine) checkCancelOrders(ctx context.Context, direction broker.Direction) (bool, error) {
	open := e.deps.Snapshot.OrdersFor(e.cfg.Figi, direction)
	threshold := e.cfg.KeepOrdersAlive.Buy
	if direction == broker.Sell {
		threshold = e.cfg.KeepOrdersAlive.Sell
	}
	if e.fails[direction] < threshold && len(open) > 0 {
		e.fails[direction]++
		e.log.Warn().Str("direction", string(direction)).
			Int("attempt", e.fails[direction]).Int("threshold", threshold).
			Msg("standing order kept alive, waiting for fill")
		return false, nil
	}
	if err := e.deps.Orders.CancelOrders(ctx, e.cfg.Figi, direction); err != nil {
		return false, fmt.Errorf("cancel orders: %w", err)
	}
	if len(open) > 0 {
		metrics.OrderCancelsTotal.WithLabelValues(e.cfg.Figi, string(direction)).Inc()
	}
	e.fails[direction] = 0
	return true, nil
}

func (e *Engine) buy(ctx context.Context) error {
	proceed, err := e.checkCancelOrders(ctx, broker.Buy)
	if err != nil || !proceed {
		return err
	}
	if lots := e.availableLots(); lots > 0 {
		e.log.Warn().Int("lots", lots).Msg("position already held, waiting for sell signal")
		return nil
	}

	orderPrice := e.currentPrice
	total := orderPrice * float64(e.cfg.OrderLots) * float64(e.instrument.Lot) * (1 + e.cfg.BrokerFee/100)
	balance := e.deps.Snapshot.Portfolio().Balance
	if total > balance {
		e.log.Warn().Float64("required", total).Float64("balance", balance).
			Msg("insufficient funds for buy")
		return nil
	}

	e.log.Warn().Float64("price", orderPrice).Int("lots", e.cfg.OrderLots).Msg("buying")
	return e.postOrder(ctx, broker.LimitOrderRequest{
		Figi:      e.cfg.Figi,
		Direction: broker.Buy,
		Lots:      e.cfg.OrderLots,
		Price:     orderPrice,
	})
}

func (e *Engine) sell(ctx context.Context) error {
	proceed, err := e.checkCancelOrders(ctx, broker.Sell)
	if err != nil || !proceed {
		return err
	}
	lots := e.availableLots()
	if lots == 0 {
		e.log.Warn().Msg("no position, waiting for buy signal")
		return nil
	}

	buyPrice := e.deps.Snapshot.Portfolio().BuyPrice(e.cfg.Figi)
	profit := e.currentPrice - buyPrice - e.fee(buyPrice, e.currentPrice)
	e.totalProfit += profit * float64(e.cfg.OrderLots)

	e.log.Warn().Float64("price", e.currentPrice).Int("lots", lots).
		Float64("margin_pct", e.currentProfit).Msg("selling everything available")
	return e.postOrder(ctx, broker.LimitOrderRequest{
		Figi:      e.cfg.Figi,
		Direction: broker.Sell,
		Lots:      lots,
		Price:     e.currentPrice,
	})
}

func (e *Engine) postOrder(ctx context.Context, req broker.LimitOrderRequest) error {
	if e.deps.DryRun {
		e.log.Warn().Str("direction", string(req.Direction)).Msg("dry run, order not submitted")
		return nil
	}
	if _, err := e.deps.Orders.PostLimitOrder(ctx, req); err != nil {
		return fmt.Errorf("post %s order: %w", req.Direction, err)
	}
	metrics.OrdersTotal.WithLabelValues(req.Figi, string(req.Direction)).Inc()
	if e.deps.Recorder != nil {
		e.deps.Recorder.Record(report.Trade{
			Figi:          req.Figi,
			Direction:     req.Direction,
			Lots:          req.Lots,
			Price:         req.Price,
			ProfitPercent: e.currentProfit,
			TotalProfit:   e.totalProfit,
			Time:          time.Now(),
		})
	}
	return nil
}
