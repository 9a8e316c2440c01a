package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/helixtrade/helixbot/internal/domain"
)

// PriceResolver resolves the current price for a position's instrument.
type PriceResolver interface {
	Resolve(ctx context.Context, p domain.Position) (float64, error)
}

// ExitCloser runs the closure pipeline for a triggered position.
type ExitCloser interface {
	Close(ctx context.Context, p domain.Position, price float64, reason domain.ExitReason) error
}

// Alerter delivers operator-facing alerts. Implemented by notify.Notifier.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Config tunes the monitoring loop.
type Config struct {
	// Interval is the primary scan cadence.
	Interval time.Duration
	// BackstopInterval is the slower sweep that re-triggers scans missed by
	// the primary loop. Both run the same idempotent sweep.
	BackstopInterval time.Duration
	// MaxConcurrent bounds how many positions are processed at once.
	MaxConcurrent int64
	// FailureAlertThreshold is how many consecutive execution failures a
	// position accumulates before an alert is raised.
	FailureAlertThreshold int
}

// Monitor periodically snapshots open auto-exit positions, refreshes their
// prices, evaluates exit rules, and hands triggered positions to the closer.
// Each position is processed independently; one position's failure never
// stops the sweep.
type Monitor struct {
	store    domain.PositionStore
	resolver PriceResolver
	closer   ExitCloser
	alerter  Alerter
	cfg      Config
	logger   *slog.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
	failures map[string]int
}

// New creates a position monitor.
func New(
	store domain.PositionStore,
	resolver PriceResolver,
	closer ExitCloser,
	alerter Alerter,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.BackstopInterval <= 0 {
		cfg.BackstopInterval = time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.FailureAlertThreshold <= 0 {
		cfg.FailureAlertThreshold = 3
	}
	return &Monitor{
		store:    store,
		resolver: resolver,
		closer:   closer,
		alerter:  alerter,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "monitor")),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		inFlight: make(map[string]struct{}),
		failures: make(map[string]int),
	}
}

// Run starts the primary and backstop loops and blocks until the context is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Duration("backstop_interval", m.cfg.BackstopInterval),
		slog.Int64("max_concurrent", m.cfg.MaxConcurrent),
	)
	defer m.logger.Info("monitor stopped")

	primary := time.NewTicker(m.cfg.Interval)
	defer primary.Stop()
	backstop := time.NewTicker(m.cfg.BackstopInterval)
	defer backstop.Stop()

	m.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-primary.C:
			m.Sweep(ctx)
		case <-backstop.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep takes a consistent snapshot of open auto-exit positions and processes
// each one. Positions already being processed by an earlier sweep are
// skipped, so overlapping sweeps are harmless.
func (m *Monitor) Sweep(ctx context.Context) {
	snapshot, err := m.store.ListOpenAutoExit(ctx)
	if err != nil {
		m.logger.Error("snapshot failed", slog.String("error", err.Error()))
		return
	}

	for _, p := range snapshot {
		if !m.claim(p.ID) {
			continue
		}
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.release(p.ID)
			return
		}

		go func(p domain.Position) {
			defer m.sem.Release(1)
			defer m.release(p.ID)
			m.process(ctx, p)
		}(p)
	}
}

// claim marks a position as in flight. It returns false when another sweep
// already holds it.
func (m *Monitor) claim(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[id]; busy {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Monitor) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// process refreshes one position's price, evaluates its rules, and closes it
// when a rule fires.
func (m *Monitor) process(ctx context.Context, p domain.Position) {
	log := m.logger.With(
		slog.String("position_id", p.ID),
		slog.String("instrument", p.Instrument),
	)

	price, err := m.resolver.Resolve(ctx, p)
	if err != nil {
		// Price failures are transient: skip this cycle, keep the position.
		log.Warn("price unavailable, skipping cycle", slog.String("error", err.Error()))
		return
	}

	if err := m.store.UpdatePrice(ctx, p.ID, price); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return // closed between snapshot and now
		}
		log.Warn("price persist failed", slog.String("error", err.Error()))
	}

	if p.TrailingStopPercent != nil {
		if err := m.store.UpdateHighestPrice(ctx, p.ID, price, p.Side); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn("high-water persist failed", slog.String("error", err.Error()))
		}
	}

	decision := Evaluate(p, price)
	if !decision.ShouldClose {
		return
	}

	log.Info("exit rule triggered",
		slog.String("reason", string(decision.Reason)),
		slog.Float64("price", price),
	)

	err = m.closer.Close(ctx, p, price, decision.Reason)
	switch {
	case err == nil, errors.Is(err, domain.ErrPositionClosed):
		m.resetFailures(p.ID)

	case errors.Is(err, domain.ErrInconsistentState):
		// Critical: the exit executed but the record does not reflect it.
		// Never retried automatically.
		log.Error("inconsistent state after exit", slog.String("error", err.Error()))
		m.alert(ctx, "Position in inconsistent state",
			fmt.Sprintf("Position %s (%s) executed an exit but could not be persisted. Manual intervention required: %v",
				p.ID, p.Instrument, err))
		m.resetFailures(p.ID)

	default:
		m.recordFailure(ctx, p, err)
	}
}

// recordFailure counts consecutive execution failures per position and
// raises an alert once the threshold is crossed.
func (m *Monitor) recordFailure(ctx context.Context, p domain.Position, err error) {
	m.mu.Lock()
	m.failures[p.ID]++
	count := m.failures[p.ID]
	if count >= m.cfg.FailureAlertThreshold {
		m.failures[p.ID] = 0
	}
	m.mu.Unlock()

	m.logger.Warn("exit execution failed",
		slog.String("position_id", p.ID),
		slog.Int("consecutive_failures", count),
		slog.String("error", err.Error()),
	)

	if count >= m.cfg.FailureAlertThreshold {
		m.alert(ctx, "Repeated exit failures",
			fmt.Sprintf("Position %s (%s) failed to exit %d times in a row: %v",
				p.ID, p.Instrument, count, err))
	}
}

func (m *Monitor) resetFailures(id string) {
	m.mu.Lock()
	delete(m.failures, id)
	m.mu.Unlock()
}

func (m *Monitor) alert(ctx context.Context, title, message string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.NotifyAll(ctx, title, message); err != nil {
		m.logger.Warn("alert delivery failed", slog.String("error", err.Error()))
	}
}
