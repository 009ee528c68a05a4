package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/broker"
)

func TestIntervalToBinance(t *testing.T) {
	cases := map[broker.Interval]string{
		broker.Interval1Min:  "1m",
		broker.Interval5Min:  "5m",
		broker.Interval15Min: "15m",
		broker.IntervalHour:  "1h",
		broker.IntervalDay:   "1d",
	}
	for interval, expected := range cases {
		got, err := intervalToBinance(interval)
		if err != nil {
			t.Fatalf("%s: %v", interval, err)
		}
		if got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
	if _, err := intervalToBinance(broker.Interval("2min")); err == nil {
		t.Fatalf("expected error for unsupported interval")
	}
}

func TestCandlesParsesKlines(t *testing.T) {
	const body = `[[1714550400000,"100.1","101.5","99.8","100.9","1250.0",1714550459999,"0",10,"0","0","0"],
[1714550460000,"100.9","102.0","100.5","101.7","900.0",1714550519999,"0",8,"0","0","0"]]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), WithBaseURLs(server.URL, ""))
	bars, err := client.Candles(context.Background(), "BTCUSDT", broker.Interval1Min, 2)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	first := bars[0]
	if first.Open != 100.1 || first.Close != 100.9 || first.Volume != 1250 {
		t.Fatalf("unexpected first bar: %+v", first)
	}
	if !first.Time.Equal(time.UnixMilli(1714550400000)) {
		t.Fatalf("unexpected bar time %v", first.Time)
	}
	if !first.Complete {
		t.Fatalf("rest bars must be complete")
	}
}

func TestCandlesShortHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), WithBaseURLs(server.URL, ""))
	if _, err := client.Candles(context.Background(), "BTCUSDT", broker.Interval1Min, 5); err == nil {
		t.Fatalf("expected error on short history")
	}
}

func TestCurrentPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64123.50"}`))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), WithBaseURLs(server.URL, ""))
	price, err := client.CurrentPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if price != 64123.50 {
		t.Fatalf("expected 64123.50, got %.2f", price)
	}
}

func TestInstrumentTradability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"}]}`))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), WithBaseURLs(server.URL, ""))
	instr, err := client.Instrument(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	if !instr.TradingAvailable || instr.Lot != 1 || instr.Currency != "usdt" {
		t.Fatalf("unexpected instrument: %+v", instr)
	}
}

func TestCandleStreamReconnectReleasesGoroutines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()
	streamURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client := NewClient(zerolog.Nop(),
		WithBaseURLs("", streamURL),
		WithReconnectBackoff(time.Millisecond))

	before := runtime.NumGoroutine()
	unsub, err := client.SubscribeCandles(context.Background(), "BTCUSDT", broker.Interval1Min, func(broker.Candle) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	// hundreds of reconnects happen in this window; per-connection
	// goroutines must be released as each connection dies
	time.Sleep(500 * time.Millisecond)
	during := runtime.NumGoroutine()
	if during > before+20 {
		t.Fatalf("goroutines grew from %d to %d across reconnects", before, during)
	}
}

func TestParseKlineEvent(t *testing.T) {
	const message = `{"e":"kline","E":1714550465000,"s":"BTCUSDT",
"k":{"t":1714550460000,"T":1714550519999,"o":"100.0","h":"101.0","l":"99.5","c":"100.5","v":"42.0","x":true}}`
	bar, ok, err := parseKlineEvent([]byte(message))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ok {
		t.Fatalf("expected a kline event")
	}
	if bar.Close != 100.5 || !bar.Complete {
		t.Fatalf("unexpected bar: %+v", bar)
	}

	_, ok, err = parseKlineEvent([]byte(`{"e":"depthUpdate"}`))
	if err != nil || ok {
		t.Fatalf("non-kline events must be skipped, ok=%v err=%v", ok, err)
	}
}
