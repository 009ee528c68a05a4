// Package exchange implements the market data contract against Binance
// public endpoints: REST for history and prices, websocket for the candle
// push feed.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rame0/tinkoff-robot/internal/broker"
)

const (
	defaultRestBaseURL   = "https://api.binance.com"
	defaultStreamBaseURL = "wss://stream.binance.com:9443"
)

// Client serves the broker.MarketDataProvider contract. Instruments are
// exchange symbols; the figi of a strategy config maps 1:1 onto a symbol.
type Client struct {
	restBaseURL   string
	streamBaseURL string
	httpClient    *http.Client
	log           zerolog.Logger
	// reconnectBackoff spaces stream resubscriptions; zero retries
	// immediately.
	reconnectBackoff time.Duration
}

// Option configures Client construction.
type Option func(*Client)

// WithBaseURLs overrides the REST and websocket endpoints (tests, mirrors).
func WithBaseURLs(rest, stream string) Option {
	return func(c *Client) {
		if rest != "" {
			c.restBaseURL = strings.TrimSuffix(rest, "/")
		}
		if stream != "" {
			c.streamBaseURL = strings.TrimSuffix(stream, "/")
		}
	}
}

// WithReconnectBackoff spaces stream resubscription attempts.
func WithReconnectBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectBackoff = d
		}
	}
}

// NewClient builds a market data client.
func NewClient(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		restBaseURL:   defaultRestBaseURL,
		streamBaseURL: defaultStreamBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		log:           log.With().Str("component", "exchange").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func intervalToBinance(interval broker.Interval) (string, error) {
	switch interval {
	case broker.Interval1Min:
		return "1m", nil
	case broker.Interval5Min:
		return "5m", nil
	case broker.Interval15Min:
		return "15m", nil
	case broker.IntervalHour:
		return "1h", nil
	case broker.IntervalDay:
		return "1d", nil
	default:
		return "", fmt.Errorf("unsupported interval %q", string(interval))
	}
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// Instrument implements broker.MarketDataProvider. Lot size is 1 for
// exchange symbols; tradability follows the symbol status.
func (c *Client) Instrument(ctx context.Context, figi string) (broker.Instrument, error) {
	url := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%s", c.restBaseURL, strings.ToUpper(figi))
	var resp exchangeInfoResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return broker.Instrument{}, err
	}
	if len(resp.Symbols) == 0 {
		return broker.Instrument{}, fmt.Errorf("%w: %s", broker.ErrUnknownInstrument, figi)
	}
	s := resp.Symbols[0]
	return broker.Instrument{
		Figi:             figi,
		Ticker:           s.Symbol,
		Lot:              1,
		Currency:         strings.ToLower(s.QuoteAsset),
		TradingAvailable: s.Status == "TRADING",
	}, nil
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// CurrentPrice implements broker.MarketDataProvider.
func (c *Client) CurrentPrice(ctx context.Context, figi string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.restBaseURL, strings.ToUpper(figi))
	var resp tickerPriceResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q for %s", resp.Price, figi)
	}
	return price, nil
}

// Candles implements broker.MarketDataProvider: the most recent minCount
// closed bars, oldest first.
func (c *Client) Candles(ctx context.Context, figi string, interval broker.Interval, minCount int) ([]broker.Candle, error) {
	binInterval, err := intervalToBinance(interval)
	if err != nil {
		return nil, err
	}
	limit := minCount
	if limit < 1 {
		limit = 1
	}
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		c.restBaseURL, strings.ToUpper(figi), binInterval, limit)

	var raw [][]json.RawMessage
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	bars := make([]broker.Candle, 0, len(raw))
	for _, row := range raw {
		bar, err := parseKlineRow(row)
		if err != nil {
			c.log.Warn().Err(err).Str("figi", figi).Msg("skipping malformed kline row")
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) < minCount {
		return nil, fmt.Errorf("short candle history for %s: have %d, need %d", figi, len(bars), minCount)
	}
	return bars, nil
}

// parseKlineRow decodes one REST kline entry:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(row []json.RawMessage) (broker.Candle, error) {
	if len(row) < 7 {
		return broker.Candle{}, fmt.Errorf("kline row too short: %d fields", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return broker.Candle{}, fmt.Errorf("open time: %w", err)
	}
	prices := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			return broker.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return broker.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		prices[i-1] = v
	}
	return broker.Candle{
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		Volume:   int64(prices[4]),
		Time:     time.UnixMilli(openTime),
		Complete: true,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("exchange returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
