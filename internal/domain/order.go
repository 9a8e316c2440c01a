package domain

import "time"

// ExitFill is the result of a successful exit execution: the price the
// closing order actually filled at, and an opaque reference (CEX order id
// or Solana transaction signature).
type ExitFill struct {
	FilledPrice  float64
	FilledAmount float64
	Reference    string
}

// ExitEvent is published on the signal bus after a position closes. It is
// also the payload rendered into the owner notification.
type ExitEvent struct {
	PositionID  string     `json:"position_id"`
	OwnerID     int64      `json:"owner_id"`
	Venue       Venue      `json:"venue"`
	Instrument  string     `json:"instrument"`
	Side        Side       `json:"side"`
	Amount      float64    `json:"amount"`
	EntryPrice  float64    `json:"entry_price"`
	ClosePrice  float64    `json:"close_price"`
	PnLAbsolute float64    `json:"pnl_absolute"`
	PnLPercent  float64    `json:"pnl_percent"`
	Reason      ExitReason `json:"reason"`
	Reference   string     `json:"reference"`
	ClosedAt    time.Time  `json:"closed_at"`
}

// TokenInfo is DEX token metadata resolved from market-data providers.
type TokenInfo struct {
	Mint     string
	Symbol   string
	Name     string
	Decimals int
	PriceUSD float64
}
