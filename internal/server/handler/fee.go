package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/helixtrade/helixbot/internal/domain"
)

// FeeService defines the methods that the fee handler requires.
type FeeService interface {
	ListByOwner(ctx context.Context, telegramID int64) ([]domain.FeeRecord, error)
	Stats(ctx context.Context) (domain.FeeStats, error)
	Rate() float64
}

// FeeHandler serves fee-related HTTP endpoints.
type FeeHandler struct {
	fees   FeeService
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler with the given service and logger.
func NewFeeHandler(fees FeeService, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{
		fees:   fees,
		logger: logger,
	}
}

// ListFees returns an owner's fee records.
// GET /api/fees?owner=123
func (h *FeeHandler) ListFees(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	records, err := h.fees.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fees failed",
			slog.Int64("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fees")
		return
	}
	if records == nil {
		records = []domain.FeeRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rate": h.fees.Rate(),
		"fees": records,
	})
}

// FeeStats returns platform-wide fee collection statistics.
// GET /api/fees/stats
func (h *FeeHandler) FeeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fees.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: fee stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute fee stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
