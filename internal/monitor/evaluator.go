// Package monitor watches open positions and drives automated exits: a pure
// rule evaluator, a scanning loop, and a closure pipeline.
package monitor

import (
	"github.com/helixtrade/helixbot/internal/domain"
)

// Decision is the outcome of evaluating exit rules against a price.
type Decision struct {
	ShouldClose bool
	Reason      domain.ExitReason
}

// Evaluate applies a position's exit rules to an observed price. It is pure:
// no I/O, no clock, no mutation.
//
// Rules are checked in a fixed priority order: take profit, then stop loss,
// then trailing stop. Thresholds are inclusive, so a price exactly at a
// boundary triggers. Shorts mirror every inequality.
func Evaluate(p domain.Position, price float64) Decision {
	if !p.AutoExitEnabled || !p.IsOpen() {
		return Decision{}
	}

	if p.TakeProfitPrice != nil {
		tp := *p.TakeProfitPrice
		if (p.Side == domain.SideLong && price >= tp) ||
			(p.Side == domain.SideShort && price <= tp) {
			return Decision{ShouldClose: true, Reason: domain.ExitReasonTakeProfit}
		}
	}

	if p.StopLossPrice != nil {
		sl := *p.StopLossPrice
		if (p.Side == domain.SideLong && price <= sl) ||
			(p.Side == domain.SideShort && price >= sl) {
			return Decision{ShouldClose: true, Reason: domain.ExitReasonStopLoss}
		}
	}

	if p.TrailingStopPercent != nil {
		pct := *p.TrailingStopPercent
		mark := trailingMark(p, price)
		if p.Side == domain.SideLong {
			floor := mark * (1 - pct/100)
			if price <= floor {
				return Decision{ShouldClose: true, Reason: domain.ExitReasonTrailingStop}
			}
		} else {
			ceiling := mark * (1 + pct/100)
			if price >= ceiling {
				return Decision{ShouldClose: true, Reason: domain.ExitReasonTrailingStop}
			}
		}
	}

	return Decision{}
}

// trailingMark returns the effective high-water mark (low-water for shorts).
// The entry price seeds the mark before any observation, and the current
// observation is folded in so the mark is correct even when the persisted
// value lags by one cycle.
func trailingMark(p domain.Position, price float64) float64 {
	mark := p.EntryPrice
	if p.HighestPriceSeen != nil {
		mark = *p.HighestPriceSeen
	}
	if p.Side == domain.SideLong {
		if price > mark {
			mark = price
		}
	} else {
		if price < mark {
			mark = price
		}
	}
	return mark
}
