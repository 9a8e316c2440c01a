// Package dexscreener is the REST client for the DexScreener public API,
// used as the primary price source for Solana tokens.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixtrade/helixbot/internal/domain"
)

// DefaultBaseURL is the public DexScreener API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client is the DexScreener REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new DexScreener client. An empty baseURL uses the
// public endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiPair is a trading pair as returned by /latest/dex/tokens.
type apiPair struct {
	ChainID   string `json:"chainId"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
}

type tokensResponse struct {
	Pairs []apiPair `json:"pairs"`
}

// TokenPrice returns the USD price of a Solana token mint, taken from the
// deepest pool listing the token. It returns domain.ErrPriceUnavailable when
// no pool with a usable price exists.
func (c *Client) TokenPrice(ctx context.Context, mint string) (float64, error) {
	info, err := c.TokenInfo(ctx, mint)
	if err != nil {
		return 0, err
	}
	return info.PriceUSD, nil
}

// TokenInfo returns token metadata and price for a Solana mint.
func (c *Client) TokenInfo(ctx context.Context, mint string) (domain.TokenInfo, error) {
	path := "/latest/dex/tokens/" + url.PathEscape(mint)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener: get token %s: %w", mint, err)
	}

	var res tokensResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener: decode token %s: %w", mint, err)
	}

	best, ok := deepestSolanaPair(res.Pairs)
	if !ok {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener: token %s: %w", mint, domain.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(best.PriceUSD, 64)
	if err != nil || price <= 0 {
		return domain.TokenInfo{}, fmt.Errorf("dexscreener: token %s: %w", mint, domain.ErrPriceUnavailable)
	}

	return domain.TokenInfo{
		Mint:     mint,
		Symbol:   best.BaseToken.Symbol,
		Name:     best.BaseToken.Name,
		PriceUSD: price,
	}, nil
}

// deepestSolanaPair picks the Solana pair with the highest USD liquidity.
func deepestSolanaPair(pairs []apiPair) (apiPair, bool) {
	var best apiPair
	found := false
	for _, p := range pairs {
		if p.ChainID != "solana" || p.PriceUSD == "" {
			continue
		}
		if !found || p.Liquidity.USD > best.Liquidity.USD {
			best = p
			found = true
		}
	}
	return best, found
}

// doGet sends an unauthenticated GET request to the DexScreener API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
