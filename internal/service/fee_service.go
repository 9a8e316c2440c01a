package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixtrade/helixbot/internal/domain"
)

// FeeService quotes and records the platform fee charged on closed
// positions. The fee is a flat fraction of closed notional.
type FeeService struct {
	fees   domain.FeeStore
	rate   float64
	logger *slog.Logger
}

// NewFeeService creates a FeeService. A non-positive rate falls back to the
// default.
func NewFeeService(fees domain.FeeStore, rate float64, logger *slog.Logger) *FeeService {
	if rate <= 0 {
		rate = domain.DefaultFeeRate
	}
	return &FeeService{
		fees:   fees,
		rate:   rate,
		logger: logger.With(slog.String("component", "fee_service")),
	}
}

// Quote returns the fee owed on a given notional.
func (s *FeeService) Quote(notional float64) float64 {
	return notional * s.rate
}

// Rate returns the configured fee rate.
func (s *FeeService) Rate() float64 {
	return s.rate
}

// RecordExitFee records the fee owed on a closed position.
func (s *FeeService) RecordExitFee(ctx context.Context, p domain.Position, fill domain.ExitFill) error {
	notional := fill.FilledPrice * fill.FilledAmount
	now := time.Now().UTC()

	record := domain.FeeRecord{
		ID:             uuid.New().String(),
		PositionID:     p.ID,
		TelegramID:     p.OwnerID,
		OriginalAmount: notional,
		FeeAmount:      s.Quote(notional),
		FeeRate:        s.rate,
		Reference:      fill.Reference,
		Status:         domain.FeeStatusCollected,
		CollectedAt:    &now,
	}

	if err := s.fees.Create(ctx, record); err != nil {
		return fmt.Errorf("fee_service: record fee for %s: %w", p.ID, err)
	}

	s.logger.InfoContext(ctx, "fee recorded",
		slog.String("position_id", p.ID),
		slog.Float64("fee_amount", record.FeeAmount),
	)
	return nil
}

// ListByOwner returns an owner's fee records.
func (s *FeeService) ListByOwner(ctx context.Context, telegramID int64) ([]domain.FeeRecord, error) {
	records, err := s.fees.ListByOwner(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("fee_service: list fees %d: %w", telegramID, err)
	}
	return records, nil
}

// Stats returns platform-wide fee collection statistics.
func (s *FeeService) Stats(ctx context.Context) (domain.FeeStats, error) {
	stats, err := s.fees.Stats(ctx)
	if err != nil {
		return domain.FeeStats{}, fmt.Errorf("fee_service: stats: %w", err)
	}
	return stats, nil
}
