// Package solana is a minimal JSON-RPC client for a Solana node: enough to
// submit signed transactions, confirm them, and read balances.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// lamportsPerSOL converts between lamports and whole SOL.
const lamportsPerSOL = 1_000_000_000

// Client is a Solana JSON-RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// NewClient creates a Solana RPC client for the given endpoint.
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("solana: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("solana: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("solana: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solana: %s: HTTP %d: %s", method, resp.StatusCode, body)
	}

	var rpcRes rpcResponse
	if err := json.Unmarshal(body, &rpcRes); err != nil {
		return fmt.Errorf("solana: decode %s response: %w", method, err)
	}
	if rpcRes.Error != nil {
		return fmt.Errorf("solana: %s: rpc error %d: %s", method, rpcRes.Error.Code, rpcRes.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(rpcRes.Result, out); err != nil {
			return fmt.Errorf("solana: decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendTransaction submits a signed, base64-encoded transaction and returns
// its signature.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	var signature string
	err := c.call(ctx, "sendTransaction",
		[]any{signedTxBase64, map[string]any{"encoding": "base64", "skipPreflight": false}},
		&signature)
	if err != nil {
		return "", err
	}
	return signature, nil
}

// ConfirmTransaction polls until the signature reaches at least confirmed
// commitment, or the context is cancelled.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) error {
	type status struct {
		ConfirmationStatus string    `json:"confirmationStatus"`
		Err                any       `json:"err"`
	}
	type statusResult struct {
		Value []*status `json:"value"`
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var res statusResult
		err := c.call(ctx, "getSignatureStatuses",
			[]any{[]string{signature}, map[string]any{"searchTransactionHistory": true}},
			&res)
		if err != nil {
			return err
		}

		if len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("solana: transaction %s failed on chain: %v", signature, st.Err)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("solana: confirm %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Balance returns the SOL balance of an account.
func (c *Client) Balance(ctx context.Context, pubkey string) (float64, error) {
	type balanceResult struct {
		Value uint64 `json:"value"`
	}
	var res balanceResult
	if err := c.call(ctx, "getBalance", []any{pubkey}, &res); err != nil {
		return 0, err
	}
	return float64(res.Value) / lamportsPerSOL, nil
}

// TokenDecimals returns the decimal count of an SPL token mint.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (int, error) {
	type supplyResult struct {
		Value struct {
			Decimals int `json:"decimals"`
		} `json:"value"`
	}
	var res supplyResult
	if err := c.call(ctx, "getTokenSupply", []any{mint}, &res); err != nil {
		return 0, err
	}
	return res.Value.Decimals, nil
}

// LatestBlockhash returns the most recent blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	type blockhashResult struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	var res blockhashResult
	if err := c.call(ctx, "getLatestBlockhash", []any{}, &res); err != nil {
		return "", err
	}
	return res.Value.Blockhash, nil
}
