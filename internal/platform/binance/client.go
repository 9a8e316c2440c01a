// Package binance wraps the go-binance SDK for spot ticker reads and market
// order execution.
package binance

import (
	"context"
	"fmt"
	"strconv"

	binance "github.com/adshao/go-binance/v2"

	"github.com/helixtrade/helixbot/internal/domain"
)

// Config carries endpoint overrides for the Binance REST API.
type Config struct {
	// BaseURL overrides the production endpoint, e.g. for the spot testnet.
	BaseURL string
}

// Client wraps an authenticated go-binance spot client. Credentials may be
// empty for public endpoints such as ticker prices.
type Client struct {
	api *binance.Client
}

// NewClient creates a Binance client for the given credentials.
func NewClient(apiKey, apiSecret string, cfg Config) *Client {
	api := binance.NewClient(apiKey, apiSecret)
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}
	return &Client{api: api}
}

// TickerPrice returns the latest trade price for a spot symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance: ticker %s: %w", symbol, domain.ErrNotFound)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse ticker %s: %w", symbol, err)
	}
	return price, nil
}

// MarketOrder places a spot market order and reports the volume-weighted fill
// price. side is the order direction: SideLong buys, SideShort sells.
func (c *Client) MarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.ExitFill, error) {
	orderSide := binance.SideTypeBuy
	if side == domain.SideShort {
		orderSide = binance.SideTypeSell
	}

	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("binance: market order %s %s: %w", orderSide, symbol, err)
	}

	executedQty, err := strconv.ParseFloat(res.ExecutedQuantity, 64)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("binance: parse executed quantity: %w", err)
	}
	cumQuote, err := strconv.ParseFloat(res.CummulativeQuoteQuantity, 64)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("binance: parse quote quantity: %w", err)
	}
	if executedQty == 0 {
		return domain.ExitFill{}, fmt.Errorf("binance: market order %s filled zero quantity", symbol)
	}

	return domain.ExitFill{
		FilledPrice:  cumQuote / executedQty,
		FilledAmount: executedQty,
		Reference:    strconv.FormatInt(res.OrderID, 10),
	}, nil
}

// AccountBalance returns the free balance for an asset, used by pre-trade
// validation.
func (c *Client) AccountBalance(ctx context.Context, asset string) (float64, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: get account: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("binance: parse balance %s: %w", asset, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// Ping verifies connectivity and credentials with a lightweight call.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("binance: ping: %w", err)
	}
	return nil
}
