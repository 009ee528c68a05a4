package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rame0/tinkoff-robot/internal/broker"
	"github.com/rame0/tinkoff-robot/internal/metrics"
)

type klineEnvelope struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type klineData struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

// SubscribeCandles implements broker.MarketDataProvider. The returned
// unsubscribe stops the feed. On stream error or close the subscription
// is reestablished unconditionally, spaced only by the configured
// backoff.
func (c *Client) SubscribeCandles(ctx context.Context, figi string, interval broker.Interval, onCandle func(broker.Candle)) (func(), error) {
	binInterval, err := intervalToBinance(interval)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/ws/%s@kline_%s", c.streamBaseURL, strings.ToLower(figi), binInterval)

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			if subCtx.Err() != nil {
				return
			}
			if err := c.consumeCandleStream(subCtx, url, onCandle); err != nil {
				if subCtx.Err() != nil {
					return
				}
				c.log.Warn().Err(err).Str("figi", figi).Msg("candle stream dropped, resubscribing")
				metrics.StreamReconnectsTotal.Inc()
				if c.reconnectBackoff > 0 {
					select {
					case <-time.After(c.reconnectBackoff):
					case <-subCtx.Done():
						return
					}
				}
				continue
			}
			return
		}
	}()
	return cancel, nil
}

func (c *Client) consumeCandleStream(ctx context.Context, url string, onCandle func(broker.Candle)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.Info().Str("url", url).Msg("candle stream connected")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	// connCtx ends with this connection, releasing the ping and close
	// watchers on every reconnect, not only at unsubscribe
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Warn().Err(err).Msg("candle stream ping failed")
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	// close the connection when the subscription is canceled so the
	// blocked read returns
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		bar, ok, err := parseKlineEvent(message)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to decode kline event")
			continue
		}
		if !ok {
			continue
		}
		onCandle(bar)
	}
}

// parseKlineEvent decodes one websocket kline message. ok is false for
// non-kline events.
func parseKlineEvent(message []byte) (broker.Candle, bool, error) {
	var env klineEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return broker.Candle{}, false, err
	}
	if env.EventType != "kline" {
		return broker.Candle{}, false, nil
	}
	k := env.Kline
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return broker.Candle{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		values[i] = v
	}
	return broker.Candle{
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   int64(values[4]),
		Time:     time.UnixMilli(k.OpenTime),
		Complete: k.Closed,
	}, true, nil
}
