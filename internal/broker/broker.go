// Package broker declares the collaborator contracts the robot consumes:
// market data, account portfolio and order management. Concrete backends
// (sandbox account, exchange client) live in subpackages.
package broker

import (
	"context"
	"errors"
	"time"
)

// Direction of an order.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// OrderStatus models the lifecycle of a limit order.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"
)

var (
	ErrNotTradable       = errors.New("instrument is not tradable")
	ErrInsufficientFunds = errors.New("insufficient funds for order")
	ErrNoPosition        = errors.New("no position to sell")
	ErrOrderRejected     = errors.New("order rejected by broker")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Instrument is the immutable description of a tradable asset. Loaded once
// per strategy and cached for the process lifetime.
type Instrument struct {
	Figi             string
	Ticker           string
	Lot              int
	Currency         string
	TradingAvailable bool
}

// Candle is one OHLCV bar. Consumed read-only by signals.
type Candle struct {
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
	Complete bool
}

// Position is a snapshot of one holding from the portfolio.
type Position struct {
	Figi         string
	Quantity     float64 // held quantity, instrument units
	Available    float64 // quantity not reserved by open sell orders
	AvgPrice     float64
	CurrentPrice float64
	YieldPercent float64
}

// Order is a snapshot of one limit order.
type Order struct {
	ID        string
	Figi      string
	Direction Direction
	Lots      int
	Price     float64
	Status    OrderStatus
}

// LimitOrderRequest is a placement request for PostLimitOrder.
type LimitOrderRequest struct {
	Figi      string
	Direction Direction
	Lots      int
	Price     float64
}

// Portfolio is the shared read-mostly snapshot refreshed once per
// orchestration tick. Strategies never mutate it.
type Portfolio struct {
	Balance   float64
	Positions []Position
}

// BuyPrice returns the average acquisition price for figi, zero when the
// position is not held.
func (p Portfolio) BuyPrice(figi string) float64 {
	for _, pos := range p.Positions {
		if pos.Figi == figi {
			return pos.AvgPrice
		}
	}
	return 0
}

// AvailableQty returns the unblocked quantity for figi.
func (p Portfolio) AvailableQty(figi string) float64 {
	for _, pos := range p.Positions {
		if pos.Figi == figi {
			return pos.Available
		}
	}
	return 0
}

// MarketDataProvider serves prices and candle history, plus the push feed
// used by the streaming robot.
type MarketDataProvider interface {
	Instrument(ctx context.Context, figi string) (Instrument, error)
	CurrentPrice(ctx context.Context, figi string) (float64, error)
	// Candles returns at least minCount most recent bars, oldest first.
	Candles(ctx context.Context, figi string, interval Interval, minCount int) ([]Candle, error)
	// SubscribeCandles delivers bars to onCandle until the returned
	// unsubscribe func is called.
	SubscribeCandles(ctx context.Context, figi string, interval Interval, onCandle func(Candle)) (func(), error)
}

// PortfolioProvider serves account state.
type PortfolioProvider interface {
	LoadPositions(ctx context.Context) (Portfolio, error)
	// LoadPositionsWithBlocked includes quantity reserved by open sell
	// orders in Position.Available accounting.
	LoadPositionsWithBlocked(ctx context.Context) (Portfolio, error)
	SubscribePortfolio(ctx context.Context, onUpdate func(Portfolio)) (func(), error)
}

// OrderProvider manages limit orders.
type OrderProvider interface {
	OpenOrders(ctx context.Context) ([]Order, error)
	PostLimitOrder(ctx context.Context, req LimitOrderRequest) (Order, error)
	// CancelOrders cancels all open orders matching figi+direction.
	// Idempotent: a no-op when none match.
	CancelOrders(ctx context.Context, figi string, direction Direction) error
}
