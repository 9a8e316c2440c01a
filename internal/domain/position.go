package domain

import (
	"fmt"
	"time"
)

// Venue identifies where a position trades: a centralized exchange reached
// through an authenticated API session, or a Solana DEX reached through a
// wallet-signed swap.
type Venue string

const (
	VenueCEX Venue = "cex"
	VenueDEX Venue = "dex"
)

// Side is the direction of a position. A long position profits when price
// rises, a short position when it falls.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionStatus tracks the lifecycle of a position. Closed and cancelled
// are terminal.
type PositionStatus string

const (
	PositionStatusOpen      PositionStatus = "open"
	PositionStatusClosed    PositionStatus = "closed"
	PositionStatusCancelled PositionStatus = "cancelled"
)

// ExitReason says which rule triggered an automated closure.
type ExitReason string

const (
	ExitReasonTakeProfit   ExitReason = "take_profit"
	ExitReasonStopLoss     ExitReason = "stop_loss"
	ExitReasonTrailingStop ExitReason = "trailing_stop"
	ExitReasonManual       ExitReason = "manual"
)

// Position is the central entity: an open or historical trade with entry
// terms and optional automated exit rules.
//
// Amount is always a base-asset quantity, never a notional. P&L is
// (close - entry) * amount for long positions and the negation for shorts.
type Position struct {
	ID         string
	OwnerID    int64
	Venue      Venue
	Instrument string // CEX symbol (e.g. "SOLUSDT") or DEX token mint address
	Side       Side
	Amount     float64
	EntryPrice float64

	// CurrentPrice and HighestPriceSeen are mutated only by the monitor.
	// HighestPriceSeen is tracked only while a trailing stop is configured;
	// for long positions it never decreases, for shorts it tracks the lowest
	// price seen instead.
	CurrentPrice     float64
	HighestPriceSeen *float64

	TakeProfitPrice     *float64
	StopLossPrice       *float64
	TrailingStopPercent *float64
	AutoExitEnabled     bool

	ExchangeName string  // CEX only: "binance", "bybit", ...
	SlippageBps  int     // DEX only: swap slippage tolerance
	Status       PositionStatus

	// Populated exactly once, at closure.
	ClosePrice  *float64
	PnLAbsolute *float64
	PnLPercent  *float64
	CloseReason *ExitReason
	ClosedAt    *time.Time

	OpenedAt  time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the position is still live.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// PnL computes absolute and percentage profit for an exit at closePrice.
func (p Position) PnL(closePrice float64) (absolute, percent float64) {
	absolute = (closePrice - p.EntryPrice) * p.Amount
	if p.Side == SideShort {
		absolute = -absolute
	}
	if p.EntryPrice != 0 {
		percent = (closePrice - p.EntryPrice) / p.EntryPrice * 100
		if p.Side == SideShort {
			percent = -percent
		}
	}
	return absolute, percent
}

// ExitSide returns the order side that flattens the position.
func (p Position) ExitSide() Side {
	if p.Side == SideLong {
		return SideShort
	}
	return SideLong
}

// ValidateExitRules checks that the configured thresholds are directionally
// consistent with the position side. It is called when rules are set, not
// at evaluation time.
func (p Position) ValidateExitRules() error {
	if p.TakeProfitPrice != nil {
		tp := *p.TakeProfitPrice
		if tp <= 0 {
			return fmt.Errorf("%w: take profit must be positive", ErrInvalidExitRule)
		}
		if p.Side == SideLong && tp <= p.EntryPrice {
			return fmt.Errorf("%w: take profit %.8g must be above entry %.8g for a long", ErrInvalidExitRule, tp, p.EntryPrice)
		}
		if p.Side == SideShort && tp >= p.EntryPrice {
			return fmt.Errorf("%w: take profit %.8g must be below entry %.8g for a short", ErrInvalidExitRule, tp, p.EntryPrice)
		}
	}
	if p.StopLossPrice != nil {
		sl := *p.StopLossPrice
		if sl <= 0 {
			return fmt.Errorf("%w: stop loss must be positive", ErrInvalidExitRule)
		}
		if p.Side == SideLong && sl >= p.EntryPrice {
			return fmt.Errorf("%w: stop loss %.8g must be below entry %.8g for a long", ErrInvalidExitRule, sl, p.EntryPrice)
		}
		if p.Side == SideShort && sl <= p.EntryPrice {
			return fmt.Errorf("%w: stop loss %.8g must be above entry %.8g for a short", ErrInvalidExitRule, sl, p.EntryPrice)
		}
	}
	if p.TrailingStopPercent != nil {
		pct := *p.TrailingStopPercent
		if pct <= 0 || pct >= 100 {
			return fmt.Errorf("%w: trailing stop percent %.8g must be in (0, 100)", ErrInvalidExitRule, pct)
		}
	}
	return nil
}
