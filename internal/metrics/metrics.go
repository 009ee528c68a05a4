// Package metrics exposes prometheus counters for the robot's hot paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Strategy ticks executed"},
		[]string{"figi"},
	)
	CandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_total", Help: "Candles accepted from the stream"},
		[]string{"figi"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Limit orders submitted"},
		[]string{"figi", "direction"},
	)
	OrderCancelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_cancels_total", Help: "Order cancellations issued"},
		[]string{"figi", "direction"},
	)
	StrategyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_errors_total", Help: "Strategy ticks that returned an error"},
		[]string{"figi"},
	)
	StreamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Market/portfolio stream resubscriptions"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		CandlesTotal,
		OrdersTotal,
		OrderCancelsTotal,
		StrategyErrorsTotal,
		StreamReconnectsTotal,
	)
}

// Serve starts the /metrics endpoint on addr without blocking the caller.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
