package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/helixtrade/helixbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory domain.PositionStore with the same idempotent
// close semantics as the PostgreSQL implementation.
type memStore struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
}

func newMemStore(positions ...domain.Position) *memStore {
	s := &memStore{positions: make(map[string]*domain.Position)}
	for i := range positions {
		p := positions[i]
		s.positions[p.ID] = &p
	}
	return s
}

func (s *memStore) get(id string) domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.positions[id]
}

func (s *memStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = &p
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return *p, nil
}

func (s *memStore) ListOpenAutoExit(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen && p.AutoExitEnabled {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenByOwner(_ context.Context, ownerID int64) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.OwnerID == ownerID && p.Status == domain.PositionStatusOpen {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) ListHistory(_ context.Context, ownerID int64, _ domain.ListOpts) ([]domain.Position, error) {
	return s.ListOpenByOwner(context.Background(), ownerID)
}

func (s *memStore) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusClosed && p.ClosedAt != nil && p.ClosedAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) UpdatePrice(_ context.Context, id string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	p.CurrentPrice = price
	return nil
}

func (s *memStore) UpdateHighestPrice(_ context.Context, id string, price float64, side domain.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	if p.HighestPriceSeen == nil {
		v := price
		p.HighestPriceSeen = &v
		return nil
	}
	if side == domain.SideLong && price > *p.HighestPriceSeen {
		*p.HighestPriceSeen = price
	}
	if side == domain.SideShort && price < *p.HighestPriceSeen {
		*p.HighestPriceSeen = price
	}
	return nil
}

func (s *memStore) SetExitRules(_ context.Context, id string, tp, sl, trailingPct *float64, autoExit bool) error {
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
	if trailingPct == nil {
		p.HighestPriceSeen = nil
	}
	return nil
}

func (s *memStore) Close(_ context.Context, id string, close domain.PositionClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrPositionClosed
	}
	now := time.Now().UTC()
	p.Status = domain.PositionStatusClosed
	p.ClosePrice = &close.ClosePrice
	p.PnLAbsolute = &close.PnLAbsolute
	p.PnLPercent = &close.PnLPercent
	reason := close.Reason
	p.CloseReason = &reason
	p.ClosedAt = &now
	return nil
}

func (s *memStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrPositionClosed
	}
	p.Status = domain.PositionStatusCancelled
	return nil
}

var _ domain.PositionStore = (*memStore)(nil)

// memLocks is an in-process domain.LockManager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

var _ domain.LockManager = (*memLocks)(nil)

// fakeGateway returns canned fills or errors and counts executions.
type fakeGateway struct {
	mu    sync.Mutex
	fill  domain.ExitFill
	err   error
	calls int
}

func (g *fakeGateway) ExecuteExit(_ context.Context, p domain.Position) (domain.ExitFill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return domain.ExitFill{}, g.err
	}
	fill := g.fill
	if fill.FilledAmount == 0 {
		fill.FilledAmount = p.Amount
	}
	return fill, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeResolver maps instrument to price, or fails for listed instruments.
type fakeResolver struct {
	mu     sync.Mutex
	prices map[string]float64
	broken map[string]bool
}

func (r *fakeResolver) Resolve(_ context.Context, p domain.Position) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken[p.Instrument] {
		return 0, domain.ErrPriceUnavailable
	}
	price, ok := r.prices[p.Instrument]
	if !ok {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}

// fakeNotifier records notifications and can be made to fail.
type fakeNotifier struct {
	mu     sync.Mutex
	err    error
	events []string
	owners []int64
	alerts []string
}

func (n *fakeNotifier) Notify(_ context.Context, event string, ownerID int64, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.owners = append(n.owners, ownerID)
	return n.err
}

func (n *fakeNotifier) NotifyAll(_ context.Context, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, title)
	return n.err
}

// fakeBus records published payloads.
type fakeBus struct {
	mu        sync.Mutex
	published [][]byte
	appended  [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended = append(b.appended, payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

var _ domain.SignalBus = (*fakeBus)(nil)

// fakeAudit records audit events.
type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var _ domain.AuditStore = (*fakeAudit)(nil)

// failingCloseStore wraps memStore but fails the Close call.
type failingCloseStore struct {
	*memStore
}

func (s *failingCloseStore) Close(context.Context, string, domain.PositionClose) error {
	return errors.New("connection reset")
}
