package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixtrade/helixbot/internal/domain"
)

// ManualCloser runs the closure pipeline for a user-initiated close.
// Implemented by monitor.Closer.
type ManualCloser interface {
	Close(ctx context.Context, p domain.Position, price float64, reason domain.ExitReason) error
}

// Pricer resolves a position's current price. Implemented by
// pricing.Resolver.
type Pricer interface {
	Resolve(ctx context.Context, p domain.Position) (float64, error)
}

// RiskChecker validates a prospective position against account-level limits.
// Implemented by RiskService.
type RiskChecker interface {
	PreOpenCheck(ctx context.Context, params OpenParams) error
}

// OpenParams carries everything needed to record a new position.
type OpenParams struct {
	OwnerID      int64
	Venue        domain.Venue
	Instrument   string
	Side         domain.Side
	Amount       float64
	EntryPrice   float64
	ExchangeName string
	SlippageBps  int

	TakeProfitPrice     *float64
	StopLossPrice       *float64
	TrailingStopPercent *float64
	AutoExitEnabled     bool
}

// PortfolioStats summarizes an owner's open book.
type PortfolioStats struct {
	OpenPositions int
	TotalExposure float64 // sum of amount * entry price
	UnrealizedPnL float64 // against last observed prices
}

// PositionService manages position lifecycle: opening, exit-rule
// configuration, manual closure, and portfolio queries.
type PositionService struct {
	positions domain.PositionStore
	pricer    Pricer
	closer    ManualCloser
	risk      RiskChecker // optional
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	positions domain.PositionStore,
	pricer Pricer,
	closer ManualCloser,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		pricer:    pricer,
		closer:    closer,
		bus:       bus,
		audit:     audit,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// WithRiskChecker enables pre-open risk validation on OpenPosition.
func (s *PositionService) WithRiskChecker(risk RiskChecker) *PositionService {
	s.risk = risk
	return s
}

// OpenPosition records a new position. Exit rules, if provided, are
// validated against the entry terms before anything is persisted.
func (s *PositionService) OpenPosition(ctx context.Context, params OpenParams) (domain.Position, error) {
	if params.Amount <= 0 {
		return domain.Position{}, fmt.Errorf("position_service: amount must be positive")
	}
	if params.EntryPrice <= 0 {
		return domain.Position{}, fmt.Errorf("position_service: entry price must be positive")
	}
	if params.Venue == domain.VenueDEX && params.Side == domain.SideShort {
		return domain.Position{}, fmt.Errorf("position_service: short positions are not supported on dex")
	}
	if s.risk != nil {
		if err := s.risk.PreOpenCheck(ctx, params); err != nil {
			return domain.Position{}, err
		}
	}

	now := time.Now().UTC()
	pos := domain.Position{
		ID:                  uuid.New().String(),
		OwnerID:             params.OwnerID,
		Venue:               params.Venue,
		Instrument:          params.Instrument,
		Side:                params.Side,
		Amount:              params.Amount,
		EntryPrice:          params.EntryPrice,
		CurrentPrice:        params.EntryPrice,
		TakeProfitPrice:     params.TakeProfitPrice,
		StopLossPrice:       params.StopLossPrice,
		TrailingStopPercent: params.TrailingStopPercent,
		AutoExitEnabled:     params.AutoExitEnabled,
		ExchangeName:        params.ExchangeName,
		SlippageBps:         params.SlippageBps,
		Status:              domain.PositionStatusOpen,
		OpenedAt:            now,
		UpdatedAt:           now,
	}

	if err := pos.ValidateExitRules(); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: %w", err)
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: create position: %w", err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":       "position_opened",
		"position_id": pos.ID,
		"owner_id":    pos.OwnerID,
		"venue":       string(pos.Venue),
		"instrument":  pos.Instrument,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"amount":      pos.Amount,
	})
	if pubErr := s.bus.Publish(ctx, "positions", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("position_id", pos.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	if auditErr := s.audit.Log(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"owner_id":    pos.OwnerID,
		"venue":       string(pos.Venue),
		"instrument":  pos.Instrument,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"amount":      pos.Amount,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("instrument", pos.Instrument),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("amount", pos.Amount),
	)

	return pos, nil
}

// ExitRuleUpdate carries a full replacement of a position's exit rules. Nil
// pointers clear the corresponding rule.
type ExitRuleUpdate struct {
	TakeProfitPrice     *float64
	StopLossPrice       *float64
	TrailingStopPercent *float64
	AutoExitEnabled     bool
}

// SetExitRules validates and replaces a position's exit rules. Only the
// owner may modify a position.
func (s *PositionService) SetExitRules(ctx context.Context, ownerID int64, positionID string, update ExitRuleUpdate) (domain.Position, error) {
	pos, err := s.getOwned(ctx, ownerID, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	if !pos.IsOpen() {
		return domain.Position{}, fmt.Errorf("position_service: set exit rules %s: %w", positionID, domain.ErrPositionClosed)
	}

	candidate := pos
	candidate.TakeProfitPrice = update.TakeProfitPrice
	candidate.StopLossPrice = update.StopLossPrice
	candidate.TrailingStopPercent = update.TrailingStopPercent
	candidate.AutoExitEnabled = update.AutoExitEnabled
	if err := candidate.ValidateExitRules(); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: %w", err)
	}

	if err := s.positions.SetExitRules(ctx, positionID,
		update.TakeProfitPrice, update.StopLossPrice, update.TrailingStopPercent, update.AutoExitEnabled); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: set exit rules %s: %w", positionID, err)
	}

	updated, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: reload %s: %w", positionID, err)
	}

	s.logger.InfoContext(ctx, "exit rules updated",
		slog.String("position_id", positionID),
		slog.Bool("auto_exit", update.AutoExitEnabled),
	)
	return updated, nil
}

// ClosePosition closes a position at market on the owner's request, running
// the same closure pipeline the monitor uses.
func (s *PositionService) ClosePosition(ctx context.Context, ownerID int64, positionID string) (domain.Position, error) {
	pos, err := s.getOwned(ctx, ownerID, positionID)
	if err != nil {
		return domain.Position{}, err
	}
	if !pos.IsOpen() {
		return domain.Position{}, fmt.Errorf("position_service: close %s: %w", positionID, domain.ErrPositionClosed)
	}

	price, err := s.pricer.Resolve(ctx, pos)
	if err != nil {
		// The exit executes at market anyway; the observed price only feeds
		// the trigger log. Fall back to the last known price.
		s.logger.WarnContext(ctx, "price unavailable for manual close, using last known",
			slog.String("position_id", positionID),
			slog.String("error", err.Error()),
		)
		price = pos.CurrentPrice
	}

	if err := s.closer.Close(ctx, pos, price, domain.ExitReasonManual); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: close %s: %w", positionID, err)
	}

	closed, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: reload %s: %w", positionID, err)
	}
	return closed, nil
}

// CancelPosition marks an open position cancelled without executing an exit,
// for entries recorded in error.
func (s *PositionService) CancelPosition(ctx context.Context, ownerID int64, positionID string) error {
	pos, err := s.getOwned(ctx, ownerID, positionID)
	if err != nil {
		return err
	}
	if !pos.IsOpen() {
		return fmt.Errorf("position_service: cancel %s: %w", positionID, domain.ErrPositionClosed)
	}
	if err := s.positions.Cancel(ctx, positionID); err != nil {
		return fmt.Errorf("position_service: cancel %s: %w", positionID, err)
	}
	return nil
}

// GetPosition returns a single position, enforcing ownership.
func (s *PositionService) GetPosition(ctx context.Context, ownerID int64, positionID string) (domain.Position, error) {
	return s.getOwned(ctx, ownerID, positionID)
}

// ListOpen returns the owner's open positions.
func (s *PositionService) ListOpen(ctx context.Context, ownerID int64) ([]domain.Position, error) {
	positions, err := s.positions.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open: %w", err)
	}
	return positions, nil
}

// History returns the owner's positions with pagination.
func (s *PositionService) History(ctx context.Context, ownerID int64, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListHistory(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: history: %w", err)
	}
	return positions, nil
}

// Portfolio summarizes the owner's open book using last observed prices.
func (s *PositionService) Portfolio(ctx context.Context, ownerID int64) (PortfolioStats, error) {
	positions, err := s.positions.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return PortfolioStats{}, fmt.Errorf("position_service: portfolio: %w", err)
	}

	var stats PortfolioStats
	stats.OpenPositions = len(positions)
	for _, p := range positions {
		stats.TotalExposure += p.Amount * p.EntryPrice
		if p.CurrentPrice > 0 {
			abs, _ := p.PnL(p.CurrentPrice)
			stats.UnrealizedPnL += abs
		}
	}
	return stats, nil
}

func (s *PositionService) getOwned(ctx context.Context, ownerID int64, positionID string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %s: %w", positionID, err)
	}
	if pos.OwnerID != ownerID {
		// Do not leak other owners' position ids.
		return domain.Position{}, fmt.Errorf("position_service: get %s: %w", positionID, domain.ErrNotFound)
	}
	return pos, nil
}
