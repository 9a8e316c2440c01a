// Package jupiter is the REST client for the Jupiter aggregator: swap quotes
// and serialized swap transactions for Solana DEX exits, plus the price API
// used as a fallback oracle.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixtrade/helixbot/internal/domain"
)

// Default API endpoints. Quote hosts are tried in order until one answers.
var (
	DefaultQuoteHosts = []string{
		"https://quote-api.jup.ag/v6",
		"https://lite-api.jup.ag/swap/v1",
	}
	DefaultPriceHost = "https://lite-api.jup.ag/price/v2"
)

// USDCMint is the canonical USDC mint on Solana mainnet.
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Client is the Jupiter REST client.
type Client struct {
	quoteHosts []string
	priceHost  string
	httpClient *http.Client
}

// NewClient creates a Jupiter client. Empty arguments use the public
// endpoints.
func NewClient(quoteHosts []string, priceHost string) *Client {
	if len(quoteHosts) == 0 {
		quoteHosts = DefaultQuoteHosts
	}
	if priceHost == "" {
		priceHost = DefaultPriceHost
	}
	return &Client{
		quoteHosts: quoteHosts,
		priceHost:  priceHost,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Quote holds a swap quote. Raw carries the untouched quote JSON because the
// swap endpoint wants it echoed back verbatim.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Raw        json.RawMessage
}

type apiQuote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

// GetQuote fetches a swap quote for amount base units of inputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	path := "/quote?" + params.Encode()

	var lastErr error
	for _, host := range c.quoteHosts {
		body, err := c.doGet(ctx, host+path)
		if err != nil {
			lastErr = err
			continue
		}

		var q apiQuote
		if err := json.Unmarshal(body, &q); err != nil {
			lastErr = fmt.Errorf("decode quote: %w", err)
			continue
		}

		in, err := strconv.ParseUint(q.InAmount, 10, 64)
		if err != nil {
			lastErr = fmt.Errorf("parse inAmount: %w", err)
			continue
		}
		out, err := strconv.ParseUint(q.OutAmount, 10, 64)
		if err != nil {
			lastErr = fmt.Errorf("parse outAmount: %w", err)
			continue
		}

		return Quote{
			InputMint:  q.InputMint,
			OutputMint: q.OutputMint,
			InAmount:   in,
			OutAmount:  out,
			Raw:        json.RawMessage(body),
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no quote hosts configured")
	}
	return Quote{}, fmt.Errorf("jupiter: quote %s->%s: %w", inputMint, outputMint, lastErr)
}

type swapRequest struct {
	QuoteResponse   json.RawMessage `json:"quoteResponse"`
	UserPublicKey   string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool           `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildSwapTransaction exchanges a quote for an unsigned serialized
// transaction, base64-encoded, with the wallet as fee payer.
func (c *Client) BuildSwapTransaction(ctx context.Context, quote Quote, userPublicKey string) (string, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return "", fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	var lastErr error
	for _, host := range c.quoteHosts {
		body, err := c.doPost(ctx, host+"/swap", payload)
		if err != nil {
			lastErr = err
			continue
		}

		var res swapResponse
		if err := json.Unmarshal(body, &res); err != nil {
			lastErr = fmt.Errorf("decode swap response: %w", err)
			continue
		}
		if res.SwapTransaction == "" {
			lastErr = errors.New("empty swap transaction")
			continue
		}
		return res.SwapTransaction, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no quote hosts configured")
	}
	return "", fmt.Errorf("jupiter: build swap: %w", lastErr)
}

type priceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// TokenPrice returns the USD price for a token mint from the Jupiter price
// API. It returns domain.ErrPriceUnavailable when the API does not know the
// token.
func (c *Client) TokenPrice(ctx context.Context, mint string) (float64, error) {
	params := url.Values{}
	params.Set("ids", mint)

	body, err := c.doGet(ctx, c.priceHost+"?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("jupiter: price %s: %w", mint, err)
	}

	var res priceResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("jupiter: decode price %s: %w", mint, err)
	}

	entry, ok := res.Data[mint]
	if !ok || entry.Price == "" {
		return 0, fmt.Errorf("jupiter: price %s: %w", mint, domain.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("jupiter: price %s: %w", mint, domain.ErrPriceUnavailable)
	}
	return price, nil
}

func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) doPost(ctx context.Context, fullURL string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
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
