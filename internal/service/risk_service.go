package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixtrade/helixbot/internal/domain"
)

// RiskConfig holds the tunable parameters for pre-open risk checks.
type RiskConfig struct {
	MaxPositions     int
	MaxNotional      float64 // per-position, amount * entry price
	MaxTotalExposure float64 // across an owner's open book
}

// Sizing fractions of available balance per risk profile.
var profileSizing = map[domain.RiskProfile]float64{
	domain.RiskConservative: 0.05,
	domain.RiskModerate:     0.10,
	domain.RiskAggressive:   0.25,
}

// Default stop distances per risk profile, as fractions of entry price.
var profileStops = map[domain.RiskProfile]struct{ stop, take float64 }{
	domain.RiskConservative: {stop: 0.05, take: 0.10},
	domain.RiskModerate:     {stop: 0.10, take: 0.20},
	domain.RiskAggressive:   {stop: 0.20, take: 0.50},
}

// RiskService provides pre-open checks, profile-based sizing, and default
// exit levels.
type RiskService struct {
	positions domain.PositionStore
	prices    domain.PriceCache
	cfg       RiskConfig
	logger    *slog.Logger
}

// NewRiskService creates a RiskService with all required dependencies.
func NewRiskService(
	positions domain.PositionStore,
	prices domain.PriceCache,
	cfg RiskConfig,
	logger *slog.Logger,
) *RiskService {
	return &RiskService{
		positions: positions,
		prices:    prices,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "risk_service")),
	}
}

// PreOpenCheck validates a prospective position against the configured
// limits. It returns a non-nil error describing the first failed check.
//
// Checks performed:
//  1. Maximum number of open positions
//  2. Per-position notional within limits
//  3. Total exposure including the new position within limits
func (s *RiskService) PreOpenCheck(ctx context.Context, params OpenParams) error {
	open, err := s.positions.ListOpenByOwner(ctx, params.OwnerID)
	if err != nil {
		return fmt.Errorf("risk_service: list open positions: %w", err)
	}
	if s.cfg.MaxPositions > 0 && len(open) >= s.cfg.MaxPositions {
		s.logger.WarnContext(ctx, "max positions reached",
			slog.Int64("owner_id", params.OwnerID),
			slog.Int("open", len(open)),
			slog.Int("max", s.cfg.MaxPositions),
		)
		return fmt.Errorf("risk_service: max positions reached (%d/%d)", len(open), s.cfg.MaxPositions)
	}

	notional := params.Amount * params.EntryPrice
	if s.cfg.MaxNotional > 0 && notional > s.cfg.MaxNotional {
		s.logger.WarnContext(ctx, "notional exceeds limit",
			slog.Int64("owner_id", params.OwnerID),
			slog.Float64("notional", notional),
			slog.Float64("max", s.cfg.MaxNotional),
		)
		return fmt.Errorf("risk_service: notional %.2f exceeds max %.2f", notional, s.cfg.MaxNotional)
	}

	if s.cfg.MaxTotalExposure > 0 {
		exposure, err := s.Exposure(ctx, params.OwnerID)
		if err != nil {
			// Cannot price the book right now; let the per-position checks stand.
			s.logger.WarnContext(ctx, "exposure check skipped",
				slog.Int64("owner_id", params.OwnerID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if exposure+notional > s.cfg.MaxTotalExposure {
			return fmt.Errorf("risk_service: total exposure %.2f would exceed max %.2f",
				exposure+notional, s.cfg.MaxTotalExposure)
		}
	}

	return nil
}

// Exposure computes the total notional exposure across an owner's open
// positions at last observed prices.
func (s *RiskService) Exposure(ctx context.Context, ownerID int64) (float64, error) {
	open, err := s.positions.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("risk_service: list open positions: %w", err)
	}

	instruments := make([]string, 0, len(open))
	for _, p := range open {
		instruments = append(instruments, p.Instrument)
	}

	prices, err := s.prices.GetPrices(ctx, instruments)
	if err != nil {
		return 0, fmt.Errorf("risk_service: get prices for exposure: %w", err)
	}

	var total float64
	for _, p := range open {
		price, ok := prices[p.Instrument]
		if !ok {
			// Fall back to the stored current price on cache miss.
			price = p.CurrentPrice
		}
		total += price * p.Amount
	}
	return total, nil
}

// SuggestSize returns a position size in base asset for the given balance
// and profile.
func (s *RiskService) SuggestSize(profile domain.RiskProfile, balance, price float64) float64 {
	fraction, ok := profileSizing[profile]
	if !ok {
		fraction = profileSizing[domain.RiskModerate]
	}
	if price <= 0 {
		return 0
	}
	return balance * fraction / price
}

// DefaultExitRules returns profile-appropriate stop loss and take profit
// levels around an entry price.
func (s *RiskService) DefaultExitRules(profile domain.RiskProfile, side domain.Side, entryPrice float64) (stopLoss, takeProfit float64) {
	levels, ok := profileStops[profile]
	if !ok {
		levels = profileStops[domain.RiskModerate]
	}
	if side == domain.SideLong {
		return entryPrice * (1 - levels.stop), entryPrice * (1 + levels.take)
	}
	return entryPrice * (1 + levels.stop), entryPrice * (1 - levels.take)
}
