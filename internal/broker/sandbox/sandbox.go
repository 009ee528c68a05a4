// Package sandbox is an in-memory implementation of the broker contracts:
// a virtual account with cash, positions and resting limit orders, plus a
// scriptable market data source. Used for dry runs and tests.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rame0/tinkoff-robot/internal/broker"
)

type position struct {
	qty      decimal.Decimal // instrument units
	avgPrice decimal.Decimal
}

type candleSub struct {
	id   string
	figi string
	fn   func(broker.Candle)
}

// Account holds the whole sandbox state behind one mutex. All broker
// contract methods are safe for concurrent use.
type Account struct {
	mu  sync.Mutex
	log zerolog.Logger

	balance     decimal.Decimal
	instruments map[string]broker.Instrument
	prices      map[string]float64
	history     map[string][]broker.Candle
	positions   map[string]*position
	orders      []broker.Order

	candleSubs    []candleSub
	portfolioSubs map[string]func(broker.Portfolio)
}

// NewAccount builds a sandbox account with the given starting cash.
func NewAccount(startingCash float64, log zerolog.Logger) *Account {
	return &Account{
		log:           log.With().Str("component", "sandbox").Logger(),
		balance:       decimal.NewFromFloat(startingCash),
		instruments:   make(map[string]broker.Instrument),
		prices:        make(map[string]float64),
		history:       make(map[string][]broker.Candle),
		positions:     make(map[string]*position),
		portfolioSubs: make(map[string]func(broker.Portfolio)),
	}
}

// AddInstrument registers an instrument and its current price.
func (a *Account) AddInstrument(instr broker.Instrument, price float64) {
	a.mu.Lock()
	a.instruments[instr.Figi] = instr
	a.prices[instr.Figi] = price
	a.mu.Unlock()
}

// SetPrice moves the current price of a registered instrument.
func (a *Account) SetPrice(figi string, price float64) {
	a.mu.Lock()
	a.prices[figi] = price
	a.mu.Unlock()
}

// SetCandles replaces the candle history served for figi.
func (a *Account) SetCandles(figi string, bars []broker.Candle) {
	a.mu.Lock()
	a.history[figi] = append([]broker.Candle(nil), bars...)
	a.mu.Unlock()
}

// SetPosition scripts a held position directly, bypassing order flow.
func (a *Account) SetPosition(figi string, qty, avgPrice float64) {
	a.mu.Lock()
	if qty == 0 {
		delete(a.positions, figi)
	} else {
		a.positions[figi] = &position{
			qty:      decimal.NewFromFloat(qty),
			avgPrice: decimal.NewFromFloat(avgPrice),
		}
	}
	a.mu.Unlock()
}

// PushCandle appends a bar to the history and fans it out to candle
// subscribers, moving the current price to the bar close.
func (a *Account) PushCandle(figi string, bar broker.Candle) {
	a.mu.Lock()
	a.history[figi] = append(a.history[figi], bar)
	a.prices[figi] = bar.Close
	subs := make([]candleSub, 0, len(a.candleSubs))
	for _, s := range a.candleSubs {
		if s.figi == figi {
			subs = append(subs, s)
		}
	}
	a.mu.Unlock()
	for _, s := range subs {
		s.fn(bar)
	}
}

// Instrument implements broker.MarketDataProvider.
func (a *Account) Instrument(_ context.Context, figi string) (broker.Instrument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	instr, ok := a.instruments[figi]
	if !ok {
		return broker.Instrument{}, fmt.Errorf("%w: %s", broker.ErrUnknownInstrument, figi)
	}
	return instr, nil
}

// CurrentPrice implements broker.MarketDataProvider.
func (a *Account) CurrentPrice(_ context.Context, figi string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	price, ok := a.prices[figi]
	if !ok {
		return 0, fmt.Errorf("%w: %s", broker.ErrUnknownInstrument, figi)
	}
	return price, nil
}

// Candles implements broker.MarketDataProvider: returns the most recent
// bars, oldest first.
func (a *Account) Candles(_ context.Context, figi string, _ broker.Interval, minCount int) ([]broker.Candle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bars := a.history[figi]
	if len(bars) < minCount {
		return nil, fmt.Errorf("not enough history for %s: have %d, need %d", figi, len(bars), minCount)
	}
	out := make([]broker.Candle, len(bars))
	copy(out, bars)
	return out, nil
}

// SubscribeCandles implements broker.MarketDataProvider.
func (a *Account) SubscribeCandles(_ context.Context, figi string, _ broker.Interval, onCandle func(broker.Candle)) (func(), error) {
	id := uuid.NewString()
	a.mu.Lock()
	a.candleSubs = append(a.candleSubs, candleSub{id: id, figi: figi, fn: onCandle})
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.candleSubs {
			if s.id == id {
				a.candleSubs = append(a.candleSubs[:i], a.candleSubs[i+1:]...)
				return
			}
		}
	}, nil
}

// SubscribePortfolio implements broker.PortfolioProvider. Subscribers are
// notified after every fill.
func (a *Account) SubscribePortfolio(_ context.Context, onUpdate func(broker.Portfolio)) (func(), error) {
	id := uuid.NewString()
	a.mu.Lock()
	a.portfolioSubs[id] = onUpdate
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.portfolioSubs, id)
		a.mu.Unlock()
	}, nil
}

// LoadPositions implements broker.PortfolioProvider.
func (a *Account) LoadPositions(_ context.Context) (broker.Portfolio, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.portfolioLocked(false), nil
}

// LoadPositionsWithBlocked implements broker.PortfolioProvider: quantity
// reserved by open sell orders is excluded from Available.
func (a *Account) LoadPositionsWithBlocked(_ context.Context) (broker.Portfolio, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.portfolioLocked(true), nil
}

func (a *Account) portfolioLocked(withBlocked bool) broker.Portfolio {
	balance, _ := a.balance.Float64()
	pf := broker.Portfolio{Balance: balance}
	for figi, pos := range a.positions {
		qty, _ := pos.qty.Float64()
		avg, _ := pos.avgPrice.Float64()
		available := qty
		if withBlocked {
			available -= a.blockedQtyLocked(figi)
			if available < 0 {
				available = 0
			}
		}
		price := a.prices[figi]
		yield := 0.0
		if avg > 0 {
			yield = 100 * (price - avg) / avg
		}
		pf.Positions = append(pf.Positions, broker.Position{
			Figi:         figi,
			Quantity:     qty,
			Available:    available,
			AvgPrice:     avg,
			CurrentPrice: price,
			YieldPercent: yield,
		})
	}
	return pf
}

func (a *Account) blockedQtyLocked(figi string) float64 {
	var blocked float64
	for _, o := range a.orders {
		if o.Status == broker.OrderOpen && o.Figi == figi && o.Direction == broker.Sell {
			blocked += float64(o.Lots * a.instruments[figi].Lot)
		}
	}
	return blocked
}

// OpenOrders implements broker.OrderProvider.
func (a *Account) OpenOrders(_ context.Context) ([]broker.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []broker.Order
	for _, o := range a.orders {
		if o.Status == broker.OrderOpen {
			out = append(out, o)
		}
	}
	return out, nil
}

// PostLimitOrder implements broker.OrderProvider.
func (a *Account) PostLimitOrder(_ context.Context, req broker.LimitOrderRequest) (broker.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	instr, ok := a.instruments[req.Figi]
	if !ok {
		return broker.Order{}, fmt.Errorf("%w: %s", broker.ErrUnknownInstrument, req.Figi)
	}
	if req.Lots <= 0 || req.Price <= 0 {
		return broker.Order{}, fmt.Errorf("%w: bad lots/price", broker.ErrOrderRejected)
	}
	notional := decimal.NewFromFloat(req.Price).
		Mul(decimal.NewFromInt(int64(req.Lots))).
		Mul(decimal.NewFromInt(int64(instr.Lot)))

	switch req.Direction {
	case broker.Buy:
		if notional.GreaterThan(a.balance) {
			return broker.Order{}, fmt.Errorf("%w: %w", broker.ErrOrderRejected, broker.ErrInsufficientFunds)
		}
	case broker.Sell:
		pos := a.positions[req.Figi]
		units := decimal.NewFromInt(int64(req.Lots * instr.Lot))
		if pos == nil || pos.qty.LessThan(units) {
			return broker.Order{}, fmt.Errorf("%w: %w", broker.ErrOrderRejected, broker.ErrNoPosition)
		}
	default:
		return broker.Order{}, fmt.Errorf("%w: unknown direction", broker.ErrOrderRejected)
	}

	order := broker.Order{
		ID:        uuid.NewString(),
		Figi:      req.Figi,
		Direction: req.Direction,
		Lots:      req.Lots,
		Price:     req.Price,
		Status:    broker.OrderOpen,
	}
	a.orders = append(a.orders, order)
	a.log.Info().Str("figi", req.Figi).Str("direction", string(req.Direction)).
		Int("lots", req.Lots).Float64("price", req.Price).Msg("limit order accepted")
	return order, nil
}

// CancelOrders implements broker.OrderProvider. No-op when nothing
// matches.
func (a *Account) CancelOrders(_ context.Context, figi string, direction broker.Direction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.orders {
		o := &a.orders[i]
		if o.Status == broker.OrderOpen && o.Figi == figi && o.Direction == direction {
			o.Status = broker.OrderCanceled
		}
	}
	return nil
}

// MarkPrice moves the current price and fills open orders it crosses:
// buys at or below the mark, sells at or above it. Portfolio subscribers
// are notified when anything filled.
func (a *Account) MarkPrice(figi string, price float64) {
	a.mu.Lock()
	a.prices[figi] = price
	filled := false
	for i := range a.orders {
		o := &a.orders[i]
		if o.Status != broker.OrderOpen || o.Figi != figi {
			continue
		}
		crossed := (o.Direction == broker.Buy && price <= o.Price) ||
			(o.Direction == broker.Sell && price >= o.Price)
		if !crossed {
			continue
		}
		a.fillLocked(o)
		filled = true
	}
	if !filled {
		a.mu.Unlock()
		return
	}
	subs := make([]func(broker.Portfolio), 0, len(a.portfolioSubs))
	for _, fn := range a.portfolioSubs {
		subs = append(subs, fn)
	}
	pf := a.portfolioLocked(true)
	a.mu.Unlock()
	for _, fn := range subs {
		fn(pf)
	}
}

// FillAll executes every open order at its limit price, settling cash and
// positions, then notifies portfolio subscribers.
func (a *Account) FillAll() {
	a.mu.Lock()
	for i := range a.orders {
		o := &a.orders[i]
		if o.Status != broker.OrderOpen {
			continue
		}
		a.fillLocked(o)
	}
	subs := make([]func(broker.Portfolio), 0, len(a.portfolioSubs))
	for _, fn := range a.portfolioSubs {
		subs = append(subs, fn)
	}
	pf := a.portfolioLocked(true)
	a.mu.Unlock()
	for _, fn := range subs {
		fn(pf)
	}
}

func (a *Account) fillLocked(o *broker.Order) {
	instr := a.instruments[o.Figi]
	units := decimal.NewFromInt(int64(o.Lots * instr.Lot))
	price := decimal.NewFromFloat(o.Price)
	notional := price.Mul(units)

	pos := a.positions[o.Figi]
	switch o.Direction {
	case broker.Buy:
		if pos == nil {
			pos = &position{}
			a.positions[o.Figi] = pos
		}
		newQty := pos.qty.Add(units)
		// volume-weighted average cost
		pos.avgPrice = pos.avgPrice.Mul(pos.qty).Add(notional).Div(newQty)
		pos.qty = newQty
		a.balance = a.balance.Sub(notional)
	case broker.Sell:
		if pos == nil {
			return
		}
		pos.qty = pos.qty.Sub(units)
		a.balance = a.balance.Add(notional)
		if pos.qty.IsZero() || pos.qty.IsNegative() {
			delete(a.positions, o.Figi)
		}
	}
	o.Status = broker.OrderFilled
}

// Balance returns the free cash.
func (a *Account) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	balance, _ := a.balance.Float64()
	return balance
}
