package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/helixbot/internal/domain"
)

// syncCloser runs the real closure pipeline parts needed by the monitor
// tests, or a canned error.
type syncCloser struct {
	mu     sync.Mutex
	inner  ExitCloser
	err    error
	closed []string
}

func (c *syncCloser) Close(ctx context.Context, p domain.Position, price float64, reason domain.ExitReason) error {
	c.mu.Lock()
	c.closed = append(c.closed, p.ID)
	c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.inner != nil {
		return c.inner.Close(ctx, p, price, reason)
	}
	return nil
}

func (c *syncCloser) closedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.closed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond())
}

func monitorConfig() Config {
	return Config{
		Interval:              time.Hour, // sweeps are driven manually
		BackstopInterval:      time.Hour,
		MaxConcurrent:         4,
		FailureAlertThreshold: 3,
	}
}

func TestSweepFailureIsolation(t *testing.T) {
	// Five positions; the oracle fails for exactly one. The other four must
	// still be evaluated and closed where their rules trigger.
	var positions []domain.Position
	resolver := &fakeResolver{prices: map[string]float64{}, broken: map[string]bool{}}
	for i := 1; i <= 5; i++ {
		p := openLong(100)
		p.ID = fmt.Sprintf("pos-%d", i)
		p.Instrument = fmt.Sprintf("TOK%dUSDT", i)
		p.TakeProfitPrice = f(110)
		positions = append(positions, p)
		resolver.prices[p.Instrument] = 120
	}
	resolver.broken["TOK3USDT"] = true

	store := newMemStore(positions...)
	closer := &syncCloser{}
	m := New(store, resolver, closer, &fakeNotifier{}, monitorConfig(), testLogger())

	m.Sweep(context.Background())
	waitFor(t, func() bool { return len(closer.closedIDs()) == 4 })

	assert.NotContains(t, closer.closedIDs(), "pos-3")
}

func TestSweepEndToEndClosesPosition(t *testing.T) {
	p := openLong(100)
	p.Instrument = "SOLUSDT"
	p.TakeProfitPrice = f(110)
	store := newMemStore(p)
	resolver := &fakeResolver{prices: map[string]float64{"SOLUSDT": 115}}
	gw := &fakeGateway{fill: domain.ExitFill{FilledPrice: 115, Reference: "order-7"}}
	closer := NewCloser(store, gw, newMemLocks(), nil, nil, nil, nil, testLogger())
	m := New(store, resolver, closer, &fakeNotifier{}, monitorConfig(), testLogger())

	m.Sweep(context.Background())
	waitFor(t, func() bool { return store.get(p.ID).Status == domain.PositionStatusClosed })

	closed := store.get(p.ID)
	assert.Equal(t, 115.0, *closed.ClosePrice)
	assert.Equal(t, domain.ExitReasonTakeProfit, *closed.CloseReason)
	assert.Equal(t, 1, gw.callCount())
}

func TestSweepUpdatesHighWaterMonotonically(t *testing.T) {
	p := openLong(100)
	p.Instrument = "SOLUSDT"
	p.TrailingStopPercent = f(50) // wide, so nothing triggers here
	store := newMemStore(p)
	resolver := &fakeResolver{prices: map[string]float64{"SOLUSDT": 150}}
	closer := &syncCloser{}
	m := New(store, resolver, closer, &fakeNotifier{}, monitorConfig(), testLogger())

	m.Sweep(context.Background())
	waitFor(t, func() bool {
		p := store.get("pos-1")
		return p.HighestPriceSeen != nil && *p.HighestPriceSeen == 150
	})

	// A lower observation must not lower the mark.
	resolver.mu.Lock()
	resolver.prices["SOLUSDT"] = 130
	resolver.mu.Unlock()

	m.Sweep(context.Background())
	waitFor(t, func() bool { return store.get("pos-1").CurrentPrice == 130 })
	assert.Equal(t, 150.0, *store.get("pos-1").HighestPriceSeen)
}

func TestSweepSkipsInFlightPositions(t *testing.T) {
	p := openLong(100)
	p.Instrument = "SOLUSDT"
	p.TakeProfitPrice = f(110)
	store := newMemStore(p)
	resolver := &fakeResolver{prices: map[string]float64{"SOLUSDT": 115}}

	started := make(chan struct{})
	block := make(chan struct{})
	closer := &blockingCloser{started: started, block: block}
	m := New(store, resolver, closer, &fakeNotifier{}, monitorConfig(), testLogger())

	m.Sweep(context.Background())
	<-started

	// Overlapping sweep while the first close is still running.
	m.Sweep(context.Background())
	close(block)
	waitFor(t, func() bool { return closer.callCount() == 1 })
}

type blockingCloser struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	block   chan struct{}
	once    sync.Once
}

func (c *blockingCloser) Close(context.Context, domain.Position, float64, domain.ExitReason) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.once.Do(func() { close(c.started) })
	<-c.block
	return nil
}

func (c *blockingCloser) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestConsecutiveFailuresEscalate(t *testing.T) {
	p := openLong(100)
	p.Instrument = "SOLUSDT"
	p.TakeProfitPrice = f(110)
	store := newMemStore(p)
	resolver := &fakeResolver{prices: map[string]float64{"SOLUSDT": 115}}
	closer := &syncCloser{err: errors.New("exchange down")}
	notifier := &fakeNotifier{}
	m := New(store, resolver, closer, notifier, monitorConfig(), testLogger())

	for i := 0; i < 3; i++ {
		m.Sweep(context.Background())
		waitFor(t, func() bool { return len(closer.closedIDs()) == i+1 })
	}

	waitFor(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.alerts) == 1
	})
}

func TestInconsistentStateAlertsImmediately(t *testing.T) {
	p := openLong(100)
	p.Instrument = "SOLUSDT"
	p.TakeProfitPrice = f(110)
	store := newMemStore(p)
	resolver := &fakeResolver{prices: map[string]float64{"SOLUSDT": 115}}
	closer := &syncCloser{err: fmt.Errorf("persist failed: %w", domain.ErrInconsistentState)}
	notifier := &fakeNotifier{}
	m := New(store, resolver, closer, notifier, monitorConfig(), testLogger())

	m.Sweep(context.Background())
	waitFor(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.alerts) == 1
	})
}

func TestPriceFailureDoesNotCountTowardEscalation(t *testing.T) {
	p := openLong(100)
	p.Instrument = "SOLUSDT"
	p.TakeProfitPrice = f(110)
	store := newMemStore(p)
	resolver := &fakeResolver{broken: map[string]bool{"SOLUSDT": true}, prices: map[string]float64{}}
	closer := &syncCloser{}
	notifier := &fakeNotifier{}
	m := New(store, resolver, closer, notifier, monitorConfig(), testLogger())

	for i := 0; i < 5; i++ {
		m.Sweep(context.Background())
	}
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, closer.closedIDs())
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Empty(t, notifier.alerts)
}
