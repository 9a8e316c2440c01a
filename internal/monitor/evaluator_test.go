package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixtrade/helixbot/internal/domain"
)

func f(v float64) *float64 { return &v }

func openLong(entry float64) domain.Position {
	return domain.Position{
		ID:              "pos-1",
		Side:            domain.SideLong,
		EntryPrice:      entry,
		Amount:          10,
		Status:          domain.PositionStatusOpen,
		AutoExitEnabled: true,
	}
}

func openShort(entry float64) domain.Position {
	p := openLong(entry)
	p.Side = domain.SideShort
	return p
}

func TestEvaluateNoRulesConfigured(t *testing.T) {
	p := openLong(100)
	assert.False(t, Evaluate(p, 500).ShouldClose)
	assert.False(t, Evaluate(p, 1).ShouldClose)
}

func TestEvaluateTakeProfitBoundary(t *testing.T) {
	p := openLong(100)
	p.TakeProfitPrice = f(110)

	d := Evaluate(p, 110)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonTakeProfit, d.Reason)

	assert.False(t, Evaluate(p, 109.99).ShouldClose)
}

func TestEvaluateTakeProfitGapThrough(t *testing.T) {
	p := openLong(100)
	p.TakeProfitPrice = f(110)

	d := Evaluate(p, 115)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonTakeProfit, d.Reason)
}

func TestEvaluateStopLossLong(t *testing.T) {
	p := openLong(100)
	p.StopLossPrice = f(90)

	d := Evaluate(p, 90)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonStopLoss, d.Reason)

	assert.False(t, Evaluate(p, 90.01).ShouldClose)
}

func TestEvaluateTakeProfitBeforeStopLoss(t *testing.T) {
	// Degenerate configuration where both rules match: take profit wins.
	p := openLong(100)
	p.TakeProfitPrice = f(50)
	p.StopLossPrice = f(90)

	d := Evaluate(p, 60)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonTakeProfit, d.Reason)
}

func TestEvaluateTrailingStopBoundary(t *testing.T) {
	p := openLong(100)
	p.TrailingStopPercent = f(10)
	p.HighestPriceSeen = f(200)

	d := Evaluate(p, 180)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonTrailingStop, d.Reason)

	assert.False(t, Evaluate(p, 180.01).ShouldClose)
}

func TestEvaluateTrailingStopSeedsFromEntry(t *testing.T) {
	p := openLong(100)
	p.TrailingStopPercent = f(10)

	// No observation recorded yet: the entry price is the mark.
	assert.True(t, Evaluate(p, 90).ShouldClose)
	assert.False(t, Evaluate(p, 90.01).ShouldClose)
}

func TestEvaluateTrailingStopFoldsInCurrentPrice(t *testing.T) {
	p := openLong(100)
	p.TrailingStopPercent = f(10)
	p.HighestPriceSeen = f(150)

	// A fresh high moves the floor up, so the same price cannot trigger.
	assert.False(t, Evaluate(p, 200).ShouldClose)
}

func TestEvaluateShortMirrors(t *testing.T) {
	p := openShort(100)
	p.TakeProfitPrice = f(90)
	p.StopLossPrice = f(110)

	d := Evaluate(p, 90)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonTakeProfit, d.Reason)

	d = Evaluate(p, 110)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonStopLoss, d.Reason)

	assert.False(t, Evaluate(p, 100).ShouldClose)
}

func TestEvaluateShortTrailingStop(t *testing.T) {
	p := openShort(100)
	p.TrailingStopPercent = f(10)
	p.HighestPriceSeen = f(50) // lowest price seen for a short

	d := Evaluate(p, 55)
	assert.True(t, d.ShouldClose)
	assert.Equal(t, domain.ExitReasonTrailingStop, d.Reason)

	assert.False(t, Evaluate(p, 54.99).ShouldClose)
}

func TestEvaluateDisabledOrClosedNeverTriggers(t *testing.T) {
	p := openLong(100)
	p.TakeProfitPrice = f(110)

	p.AutoExitEnabled = false
	assert.False(t, Evaluate(p, 200).ShouldClose)

	p.AutoExitEnabled = true
	p.Status = domain.PositionStatusClosed
	assert.False(t, Evaluate(p, 200).ShouldClose)
}

func TestPnLSigns(t *testing.T) {
	long := openLong(1.0)
	long.Amount = 10
	abs, pct := long.PnL(1.5)
	assert.InDelta(t, 5.0, abs, 1e-9)
	assert.InDelta(t, 50.0, pct, 1e-9)

	short := openShort(1.0)
	short.Amount = 10
	abs, pct = short.PnL(1.5)
	assert.InDelta(t, -5.0, abs, 1e-9)
	assert.InDelta(t, -50.0, pct, 1e-9)
}
