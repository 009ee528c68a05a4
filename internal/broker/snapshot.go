package broker

import (
	"context"
	"sync"
)

// Snapshot is the shared portfolio/order view one orchestration tick works
// against. The orchestrator refreshes it once per cycle; strategies read
// it and never write. The streaming robot's portfolio push replaces the
// cached portfolio wholesale between ticks, so readers must tolerate a
// snapshot that moves underneath a tick.
type Snapshot struct {
	mu        sync.RWMutex
	portfolio Portfolio
	orders    []Order
}

func NewSnapshot() *Snapshot { return &Snapshot{} }

// Portfolio returns the cached portfolio view.
func (s *Snapshot) Portfolio() Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolio
}

// SetPortfolio replaces the cached portfolio (push update path).
func (s *Snapshot) SetPortfolio(p Portfolio) {
	s.mu.Lock()
	s.portfolio = p
	s.mu.Unlock()
}

// Orders returns the cached open orders.
func (s *Snapshot) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// OrdersFor filters the cached open orders by instrument and direction.
func (s *Snapshot) OrdersFor(figi string, direction Direction) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if o.Figi == figi && o.Direction == direction {
			out = append(out, o)
		}
	}
	return out
}

// RefreshPortfolio reloads the portfolio without blocked quantities.
func (s *Snapshot) RefreshPortfolio(ctx context.Context, p PortfolioProvider) error {
	pf, err := p.LoadPositions(ctx)
	if err != nil {
		return err
	}
	s.SetPortfolio(pf)
	return nil
}

// RefreshPortfolioWithBlocked reloads the portfolio including quantity
// reserved by open sell orders.
func (s *Snapshot) RefreshPortfolioWithBlocked(ctx context.Context, p PortfolioProvider) error {
	pf, err := p.LoadPositionsWithBlocked(ctx)
	if err != nil {
		return err
	}
	s.SetPortfolio(pf)
	return nil
}

// RefreshOrders reloads the open order list.
func (s *Snapshot) RefreshOrders(ctx context.Context, o OrderProvider) error {
	orders, err := o.OpenOrders(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.orders = orders
	s.mu.Unlock()
	return nil
}
