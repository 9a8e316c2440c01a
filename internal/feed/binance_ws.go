// Package feed streams live market data into the price cache so monitor
// cycles can usually skip the REST hop.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helixtrade/helixbot/internal/domain"
)

// DefaultBinanceWSURL is the production combined-stream endpoint.
const DefaultBinanceWSURL = "wss://stream.binance.com:9443/stream"

// BinanceTickerFeed subscribes to Binance miniTicker streams for a set of
// symbols and writes every tick into the price cache. It reconnects on
// disconnect.
type BinanceTickerFeed struct {
	wsURL     string
	symbols   []string
	cache     domain.PriceCache
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewBinanceTickerFeed creates a feed for the given spot symbols.
func NewBinanceTickerFeed(wsURL string, symbols []string, cache domain.PriceCache, logger *slog.Logger) *BinanceTickerFeed {
	if wsURL == "" {
		wsURL = DefaultBinanceWSURL
	}
	return &BinanceTickerFeed{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		logger:  logger.With(slog.String("component", "binance_ws_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled, reconnecting with backoff
// on disconnect.
func (f *BinanceTickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to stream, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("binance ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

// miniTicker is the payload of a <symbol>@miniTicker stream event.
type miniTicker struct {
	Symbol     string `json:"s"`
	ClosePrice string `json:"c"`
	EventTime  int64  `json:"E"` // milliseconds
}

type streamEnvelope struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

func (f *BinanceTickerFeed) streamURL() string {
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	return f.wsURL + "?streams=" + strings.Join(streams, "/")
}

func (f *BinanceTickerFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.streamURL(), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial binance ws: %w", err)
	}
	defer conn.Close()

	f.logger.Info("binance ws connected", slog.Int("symbols", len(f.symbols)))

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read binance ws: %w", err)
		}

		var env streamEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			f.logger.Warn("unparseable ws message", slog.String("error", err.Error()))
			continue
		}
		if env.Data.Symbol == "" || env.Data.ClosePrice == "" {
			continue
		}

		price, err := strconv.ParseFloat(env.Data.ClosePrice, 64)
		if err != nil || price <= 0 {
			continue
		}

		ts := time.UnixMilli(env.Data.EventTime)
		if env.Data.EventTime == 0 {
			ts = time.Now()
		}
		if err := f.cache.SetPrice(ctx, env.Data.Symbol, price, ts); err != nil {
			f.logger.Warn("price cache write failed",
				slog.String("symbol", env.Data.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close stops the feed.
func (f *BinanceTickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
