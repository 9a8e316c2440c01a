package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/helixbot/internal/domain"
	"github.com/helixtrade/helixbot/internal/notify"
)

func newCloser(store domain.PositionStore, gw *fakeGateway) (*Closer, *fakeBus, *fakeAudit, *fakeNotifier) {
	bus := &fakeBus{}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	c := NewCloser(store, gw, newMemLocks(), nil, bus, audit, notifier, testLogger())
	return c, bus, audit, notifier
}

func TestCloserHappyPath(t *testing.T) {
	p := openLong(1.0)
	p.Amount = 10
	store := newMemStore(p)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5, Reference: "order-1"}}
	c, bus, _, notifier := newCloser(store, gw)

	err := c.Close(context.Background(), p, 1.5, domain.ExitReasonTakeProfit)
	require.NoError(t, err)

	closed := store.get(p.ID)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.PnLAbsolute)
	assert.InDelta(t, 5.0, *closed.PnLAbsolute, 1e-9)
	assert.InDelta(t, 50.0, *closed.PnLPercent, 1e-9)
	assert.Equal(t, domain.ExitReasonTakeProfit, *closed.CloseReason)

	assert.Len(t, bus.published, 1)
	assert.Len(t, bus.appended, 1)
	assert.Equal(t, []string{notify.EventPositionClosed}, notifier.events)
}

func TestCloserNotifiesEachOwner(t *testing.T) {
	first := openLong(1.0)
	first.ID = "pos-42"
	first.OwnerID = 42
	second := openLong(1.0)
	second.ID = "pos-99"
	second.OwnerID = 99
	store := newMemStore(first, second)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5}}
	c, _, _, notifier := newCloser(store, gw)

	require.NoError(t, c.Close(context.Background(), first, 1.5, domain.ExitReasonTakeProfit))
	require.NoError(t, c.Close(context.Background(), second, 1.5, domain.ExitReasonTakeProfit))

	// Each notification carries its own position's owner id.
	assert.Equal(t, []int64{42, 99}, notifier.owners)
}

func TestCloserDoubleCloseIsNoOp(t *testing.T) {
	p := openLong(1.0)
	store := newMemStore(p)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5, Reference: "order-1"}}
	c, _, _, _ := newCloser(store, gw)

	require.NoError(t, c.Close(context.Background(), p, 1.5, domain.ExitReasonTakeProfit))
	// Second call, e.g. from the backstop sweep with a stale snapshot.
	require.NoError(t, c.Close(context.Background(), p, 1.5, domain.ExitReasonTakeProfit))

	assert.Equal(t, 1, gw.callCount())
}

func TestCloserSkipsWhenLockHeld(t *testing.T) {
	p := openLong(1.0)
	store := newMemStore(p)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5}}
	locks := newMemLocks()
	c := NewCloser(store, gw, locks, nil, nil, nil, nil, testLogger())

	unlock, err := locks.Acquire(context.Background(), "close:"+p.ID, 0)
	require.NoError(t, err)
	defer unlock()

	require.NoError(t, c.Close(context.Background(), p, 1.5, domain.ExitReasonTakeProfit))
	assert.Equal(t, 0, gw.callCount())
	assert.Equal(t, domain.PositionStatusOpen, store.get(p.ID).Status)
}

func TestCloserExecutionFailurePropagates(t *testing.T) {
	p := openLong(1.0)
	store := newMemStore(p)
	gw := &fakeGateway{err: errors.New("exchange rejected order")}
	c, _, _, _ := newCloser(store, gw)

	err := c.Close(context.Background(), p, 1.5, domain.ExitReasonStopLoss)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInconsistentState)
	assert.Equal(t, domain.PositionStatusOpen, store.get(p.ID).Status)
}

func TestCloserPersistFailureAfterFillIsInconsistent(t *testing.T) {
	p := openLong(1.0)
	store := &failingCloseStore{newMemStore(p)}
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5, Reference: "tx-9"}}
	bus := &fakeBus{}
	audit := &fakeAudit{}
	c := NewCloser(store, gw, newMemLocks(), nil, bus, audit, nil, testLogger())

	err := c.Close(context.Background(), p, 1.5, domain.ExitReasonTakeProfit)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assert.Equal(t, []string{"position_close_inconsistent"}, audit.events)
	// No exit event is published for a close that did not persist.
	assert.Empty(t, bus.published)
}

func TestCloserNotificationFailureDoesNotRollBack(t *testing.T) {
	p := openLong(1.0)
	store := newMemStore(p)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5, Reference: "order-1"}}
	notifier := &fakeNotifier{err: errors.New("telegram 502")}
	c := NewCloser(store, gw, newMemLocks(), nil, nil, nil, notifier, testLogger())

	err := c.Close(context.Background(), p, 1.5, domain.ExitReasonTakeProfit)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, store.get(p.ID).Status)
}

func TestCloserShortPnL(t *testing.T) {
	p := openShort(1.0)
	p.Amount = 10
	store := newMemStore(p)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 1.5}}
	c, _, _, _ := newCloser(store, gw)

	require.NoError(t, c.Close(context.Background(), p, 1.5, domain.ExitReasonStopLoss))

	closed := store.get(p.ID)
	require.NotNil(t, closed.PnLAbsolute)
	assert.InDelta(t, -5.0, *closed.PnLAbsolute, 1e-9)
	assert.InDelta(t, -50.0, *closed.PnLPercent, 1e-9)
}

func TestCloserGapThroughClosesAtFilledPrice(t *testing.T) {
	// Price gapped past the 110 take profit straight to 115; the recorded
	// close price is the actual fill, not the threshold.
	p := openLong(100)
	p.TakeProfitPrice = f(110)
	store := newMemStore(p)
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 115}}
	c, _, _, _ := newCloser(store, gw)

	require.NoError(t, c.Close(context.Background(), p, 115, domain.ExitReasonTakeProfit))

	closed := store.get(p.ID)
	require.NotNil(t, closed.ClosePrice)
	assert.Equal(t, 115.0, *closed.ClosePrice)
}
