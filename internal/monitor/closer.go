package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixtrade/helixbot/internal/domain"
	"github.com/helixtrade/helixbot/internal/notify"
)

// Pub/sub channel and durable stream for closed-position events.
const (
	ExitChannel = "positions.closed"
	ExitStream  = "stream:positions.closed"
)

// closeLockTTL bounds how long a closure may hold the per-position lock.
const closeLockTTL = 30 * time.Second

// ExitExecutor executes the venue-side exit order.
type ExitExecutor interface {
	ExecuteExit(ctx context.Context, p domain.Position) (domain.ExitFill, error)
}

// FeeRecorder records the platform fee owed on a closed position.
type FeeRecorder interface {
	RecordExitFee(ctx context.Context, p domain.Position, fill domain.ExitFill) error
}

// EventNotifier delivers notifications addressed to a position owner.
// Implemented by notify.Notifier.
type EventNotifier interface {
	Notify(ctx context.Context, event string, ownerID int64, title, message string) error
}

// Closer runs the closure pipeline: verify the position is still open,
// execute the exit, persist the terminal state, then fan out fee recording,
// event publication, and notification.
//
// Ordering is strict. Nothing after the persist step can undo it: a failed
// notification or fee write is logged and dropped, never rolled back. The
// one non-recoverable shape is an exit that executed but could not be
// persisted; that surfaces as domain.ErrInconsistentState and is left for an
// operator.
type Closer struct {
	store   domain.PositionStore
	gateway ExitExecutor
	locks   domain.LockManager
	fees    FeeRecorder
	bus     domain.SignalBus
	audit   domain.AuditStore
	events  EventNotifier
	logger  *slog.Logger
}

// NewCloser creates a closure pipeline. fees, bus, audit, and events may be
// nil; the corresponding step is skipped.
func NewCloser(
	store domain.PositionStore,
	gateway ExitExecutor,
	locks domain.LockManager,
	fees FeeRecorder,
	bus domain.SignalBus,
	audit domain.AuditStore,
	events EventNotifier,
	logger *slog.Logger,
) *Closer {
	return &Closer{
		store:   store,
		gateway: gateway,
		locks:   locks,
		fees:    fees,
		bus:     bus,
		audit:   audit,
		events:  events,
		logger:  logger.With(slog.String("component", "closer")),
	}
}

// Close closes a position at the observed price for the given reason.
// Calling it for an already-closed position is a silent no-op, so the
// primary loop, the backstop sweep, and manual closes can all race safely.
func (c *Closer) Close(ctx context.Context, p domain.Position, price float64, reason domain.ExitReason) error {
	log := c.logger.With(
		slog.String("position_id", p.ID),
		slog.String("reason", string(reason)),
	)

	unlock, err := c.locks.Acquire(ctx, "close:"+p.ID, closeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.Debug("close already in progress elsewhere")
			return nil
		}
		return fmt.Errorf("closer: lock %s: %w", p.ID, err)
	}
	defer unlock()

	// Re-fetch under the lock: the snapshot the caller evaluated may be
	// stale by now.
	fresh, err := c.store.GetByID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("closer: refetch %s: %w", p.ID, err)
	}
	if !fresh.IsOpen() {
		log.Debug("position no longer open, nothing to do")
		return nil
	}

	fill, err := c.gateway.ExecuteExit(ctx, fresh)
	if err != nil {
		if errors.Is(err, domain.ErrPositionClosed) {
			return nil
		}
		return fmt.Errorf("closer: execute exit %s: %w", p.ID, err)
	}

	pnlAbs, pnlPct := fresh.PnL(fill.FilledPrice)

	if err := c.store.Close(ctx, p.ID, domain.PositionClose{
		ClosePrice:  fill.FilledPrice,
		PnLAbsolute: pnlAbs,
		PnLPercent:  pnlPct,
		Reason:      reason,
	}); err != nil {
		// The order filled on the venue but the record still says open.
		c.recordInconsistency(ctx, fresh, fill, err)
		return fmt.Errorf("closer: persist close %s after execution (reference %s): %v: %w",
			p.ID, fill.Reference, err, domain.ErrInconsistentState)
	}

	log.Info("position closed",
		slog.Float64("close_price", fill.FilledPrice),
		slog.Float64("pnl_absolute", pnlAbs),
		slog.Float64("pnl_percent", pnlPct),
		slog.String("reference", fill.Reference),
	)

	event := domain.ExitEvent{
		PositionID:  fresh.ID,
		OwnerID:     fresh.OwnerID,
		Venue:       fresh.Venue,
		Instrument:  fresh.Instrument,
		Side:        fresh.Side,
		Amount:      fresh.Amount,
		EntryPrice:  fresh.EntryPrice,
		ClosePrice:  fill.FilledPrice,
		PnLAbsolute: pnlAbs,
		PnLPercent:  pnlPct,
		Reason:      reason,
		Reference:   fill.Reference,
		ClosedAt:    time.Now().UTC(),
	}

	// Everything from here is best effort. The close is already durable.
	if c.fees != nil {
		if err := c.fees.RecordExitFee(ctx, fresh, fill); err != nil {
			log.Warn("fee record failed", slog.String("error", err.Error()))
		}
	}
	c.publish(ctx, event, log)
	c.notifyOwner(ctx, event, log)

	return nil
}

// recordInconsistency audits a persist failure that happened after the venue
// order filled.
func (c *Closer) recordInconsistency(ctx context.Context, p domain.Position, fill domain.ExitFill, cause error) {
	c.logger.Error("close persisted nothing after a filled exit",
		slog.String("position_id", p.ID),
		slog.String("reference", fill.Reference),
		slog.String("error", cause.Error()),
	)
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ctx, "position_close_inconsistent", map[string]any{
		"position_id":   p.ID,
		"owner_id":      p.OwnerID,
		"instrument":    p.Instrument,
		"filled_price":  fill.FilledPrice,
		"filled_amount": fill.FilledAmount,
		"reference":     fill.Reference,
		"error":         cause.Error(),
	}); err != nil {
		c.logger.Error("audit write failed", slog.String("error", err.Error()))
	}
}

func (c *Closer) publish(ctx context.Context, event domain.ExitEvent, log *slog.Logger) {
	if c.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Warn("exit event marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := c.bus.Publish(ctx, ExitChannel, payload); err != nil {
		log.Warn("exit event publish failed", slog.String("error", err.Error()))
	}
	if err := c.bus.StreamAppend(ctx, ExitStream, payload); err != nil {
		log.Warn("exit event stream append failed", slog.String("error", err.Error()))
	}
}

func (c *Closer) notifyOwner(ctx context.Context, event domain.ExitEvent, log *slog.Logger) {
	if c.events == nil {
		return
	}
	title, message := notify.FormatExitEvent(event)
	if err := c.events.Notify(ctx, notify.EventPositionClosed, event.OwnerID, title, message); err != nil {
		log.Warn("owner notification failed", slog.String("error", err.Error()))
	}
}
