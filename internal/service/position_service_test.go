package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/helixbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newStubPositionStore() *stubPositionStore {
	return &stubPositionStore{positions: map[string]domain.Position{}}
}

func (s *stubPositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = p
	return nil
}

func (s *stubPositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *stubPositionStore) ListOpenAutoExit(context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (s *stubPositionStore) ListOpenByOwner(_ context.Context, ownerID int64) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.OwnerID == ownerID && p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPositionStore) ListHistory(context.Context, int64, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

func (s *stubPositionStore) ListClosedBefore(context.Context, time.Time) ([]domain.Position, error) {
	return nil, nil
}

func (s *stubPositionStore) UpdatePrice(_ context.Context, id string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.positions[id]
	p.CurrentPrice = price
	s.positions[id] = p
	return nil
}

func (s *stubPositionStore) UpdateHighestPrice(context.Context, string, float64, domain.Side) error {
	return nil
}

func (s *stubPositionStore) SetExitRules(_ context.Context, id string, tp, sl, trailingPct *float64, autoExit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	p.TakeProfitPrice = tp
	p.StopLossPrice = sl
	p.TrailingStopPercent = trailingPct
	p.AutoExitEnabled = autoExit
	s.positions[id] = p
	return nil
}

func (s *stubPositionStore) Close(_ context.Context, id string, close domain.PositionClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrPositionClosed
	}
	p.Status = domain.PositionStatusClosed
	p.ClosePrice = &close.ClosePrice
	s.positions[id] = p
	return nil
}

func (s *stubPositionStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrPositionClosed
	}
	p.Status = domain.PositionStatusCancelled
	s.positions[id] = p
	return nil
}

var _ domain.PositionStore = (*stubPositionStore)(nil)

type stubBus struct{}

func (stubBus) Publish(context.Context, string, []byte) error { return nil }
func (stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}
func (stubBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type stubAudit struct{}

func (stubAudit) Log(context.Context, string, map[string]any) error { return nil }
func (stubAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type stubPricer struct {
	price float64
	err   error
}

func (p stubPricer) Resolve(context.Context, domain.Position) (float64, error) {
	return p.price, p.err
}

type recordingCloser struct {
	store  *stubPositionStore
	reason domain.ExitReason
	calls  int
}

func (c *recordingCloser) Close(ctx context.Context, p domain.Position, price float64, reason domain.ExitReason) error {
	c.calls++
	c.reason = reason
	return c.store.Close(ctx, p.ID, domain.PositionClose{ClosePrice: price, Reason: reason})
}

func newTestService(store *stubPositionStore, closer ManualCloser) *PositionService {
	return NewPositionService(store, stubPricer{price: 100}, closer, stubBus{}, stubAudit{}, testLogger())
}

func ptr(v float64) *float64 { return &v }

func TestOpenPositionValidatesRules(t *testing.T) {
	store := newStubPositionStore()
	svc := newTestService(store, &recordingCloser{store: store})

	_, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID:         7,
		Venue:           domain.VenueCEX,
		Instrument:      "SOLUSDT",
		Side:            domain.SideLong,
		Amount:          10,
		EntryPrice:      100,
		TakeProfitPrice: ptr(90), // below entry for a long
	})
	assert.ErrorIs(t, err, domain.ErrInvalidExitRule)

	pos, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID:         7,
		Venue:           domain.VenueCEX,
		Instrument:      "SOLUSDT",
		Side:            domain.SideLong,
		Amount:          10,
		EntryPrice:      100,
		TakeProfitPrice: ptr(110),
		AutoExitEnabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
}

func TestOpenPositionRejectsDEXShort(t *testing.T) {
	store := newStubPositionStore()
	svc := newTestService(store, &recordingCloser{store: store})

	_, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID:    7,
		Venue:      domain.VenueDEX,
		Instrument: "So11111111111111111111111111111111111111112",
		Side:       domain.SideShort,
		Amount:     1,
		EntryPrice: 100,
	})
	assert.Error(t, err)
}

func TestSetExitRulesEnforcesOwnership(t *testing.T) {
	store := newStubPositionStore()
	svc := newTestService(store, &recordingCloser{store: store})

	pos, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID: 7, Venue: domain.VenueCEX, Instrument: "SOLUSDT",
		Side: domain.SideLong, Amount: 10, EntryPrice: 100,
	})
	require.NoError(t, err)

	_, err = svc.SetExitRules(context.Background(), 8, pos.ID, ExitRuleUpdate{
		TakeProfitPrice: ptr(110), AutoExitEnabled: true,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := svc.SetExitRules(context.Background(), 7, pos.ID, ExitRuleUpdate{
		TakeProfitPrice: ptr(110), AutoExitEnabled: true,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.TakeProfitPrice)
	assert.Equal(t, 110.0, *updated.TakeProfitPrice)
	assert.True(t, updated.AutoExitEnabled)
}

func TestSetExitRulesRejectsInvalidUpdate(t *testing.T) {
	store := newStubPositionStore()
	svc := newTestService(store, &recordingCloser{store: store})

	pos, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID: 7, Venue: domain.VenueCEX, Instrument: "SOLUSDT",
		Side: domain.SideLong, Amount: 10, EntryPrice: 100,
	})
	require.NoError(t, err)

	_, err = svc.SetExitRules(context.Background(), 7, pos.ID, ExitRuleUpdate{
		TrailingStopPercent: ptr(150),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidExitRule)
}

func TestClosePositionRunsPipelineWithManualReason(t *testing.T) {
	store := newStubPositionStore()
	closer := &recordingCloser{store: store}
	svc := newTestService(store, closer)

	pos, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID: 7, Venue: domain.VenueCEX, Instrument: "SOLUSDT",
		Side: domain.SideLong, Amount: 10, EntryPrice: 100,
	})
	require.NoError(t, err)

	closed, err := svc.ClosePosition(context.Background(), 7, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, domain.ExitReasonManual, closer.reason)

	_, err = svc.ClosePosition(context.Background(), 7, pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
}

func TestOpenPositionAppliesRiskCheck(t *testing.T) {
	store := newStubPositionStore()
	risk := NewRiskService(store, nil, RiskConfig{MaxPositions: 1}, testLogger())
	svc := newTestService(store, &recordingCloser{store: store}).WithRiskChecker(risk)

	_, err := svc.OpenPosition(context.Background(), OpenParams{
		OwnerID: 7, Venue: domain.VenueCEX, Instrument: "SOLUSDT",
		Side: domain.SideLong, Amount: 10, EntryPrice: 100,
	})
	require.NoError(t, err)

	_, err = svc.OpenPosition(context.Background(), OpenParams{
		OwnerID: 7, Venue: domain.VenueCEX, Instrument: "BTCUSDT",
		Side: domain.SideLong, Amount: 1, EntryPrice: 100,
	})
	assert.ErrorContains(t, err, "max positions")
}

func TestRiskServiceSizingAndDefaults(t *testing.T) {
	svc := NewRiskService(newStubPositionStore(), nil, RiskConfig{}, testLogger())

	size := svc.SuggestSize(domain.RiskConservative, 1000, 50)
	assert.InDelta(t, 1.0, size, 1e-9)

	sl, tp := svc.DefaultExitRules(domain.RiskModerate, domain.SideLong, 100)
	assert.InDelta(t, 90.0, sl, 1e-9)
	assert.InDelta(t, 120.0, tp, 1e-9)

	sl, tp = svc.DefaultExitRules(domain.RiskModerate, domain.SideShort, 100)
	assert.InDelta(t, 110.0, sl, 1e-9)
	assert.InDelta(t, 80.0, tp, 1e-9)
}
