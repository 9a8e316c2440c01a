package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/helixtrade/helixbot/internal/domain"
	"github.com/helixtrade/helixbot/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	OpenPosition(ctx context.Context, params service.OpenParams) (domain.Position, error)
	GetPosition(ctx context.Context, ownerID int64, positionID string) (domain.Position, error)
	ListOpen(ctx context.Context, ownerID int64) ([]domain.Position, error)
	History(ctx context.Context, ownerID int64, opts domain.ListOpts) ([]domain.Position, error)
	SetExitRules(ctx context.Context, ownerID int64, positionID string, update service.ExitRuleUpdate) (domain.Position, error)
	ClosePosition(ctx context.Context, ownerID int64, positionID string) (domain.Position, error)
	CancelPosition(ctx context.Context, ownerID int64, positionID string) error
	Portfolio(ctx context.Context, ownerID int64) (service.PortfolioStats, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// openPositionRequest is the body of POST /api/positions.
type openPositionRequest struct {
	OwnerID             int64    `json:"owner_id"`
	Venue               string   `json:"venue"`
	Instrument          string   `json:"instrument"`
	Side                string   `json:"side"`
	Amount              float64  `json:"amount"`
	EntryPrice          float64  `json:"entry_price"`
	ExchangeName        string   `json:"exchange_name,omitempty"`
	SlippageBps         int      `json:"slippage_bps,omitempty"`
	TakeProfitPrice     *float64 `json:"take_profit_price,omitempty"`
	StopLossPrice       *float64 `json:"stop_loss_price,omitempty"`
	TrailingStopPercent *float64 `json:"trailing_stop_percent,omitempty"`
	AutoExitEnabled     bool     `json:"auto_exit_enabled"`
}

// exitRulesRequest is the body of PUT /api/positions/{id}/exit-rules. Nil
// fields clear the corresponding rule.
type exitRulesRequest struct {
	TakeProfitPrice     *float64 `json:"take_profit_price"`
	StopLossPrice       *float64 `json:"stop_loss_price"`
	TrailingStopPercent *float64 `json:"trailing_stop_percent"`
	AutoExitEnabled     bool     `json:"auto_exit_enabled"`
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// OpenPosition records a new position.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == 0 {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	pos, err := h.positions.OpenPosition(r.Context(), service.OpenParams{
		OwnerID:             req.OwnerID,
		Venue:               domain.Venue(req.Venue),
		Instrument:          req.Instrument,
		Side:                domain.Side(req.Side),
		Amount:              req.Amount,
		EntryPrice:          req.EntryPrice,
		ExchangeName:        req.ExchangeName,
		SlippageBps:         req.SlippageBps,
		TakeProfitPrice:     req.TakeProfitPrice,
		StopLossPrice:       req.StopLossPrice,
		TrailingStopPercent: req.TrailingStopPercent,
		AutoExitEnabled:     req.AutoExitEnabled,
	})
	if err != nil {
		h.writeServiceError(w, r, "open position", err)
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// ListPositions returns all open positions for an owner.
// GET /api/positions?owner=123
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	positions, err := h.positions.ListOpen(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, r, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// History returns an owner's positions, newest first, with pagination.
// GET /api/positions/history?owner=123&limit=50&offset=0
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	positions, err := h.positions.History(r.Context(), ownerID, parseListOpts(r))
	if err != nil {
		h.writeServiceError(w, r, "position history", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single position.
// GET /api/positions/{id}?owner=123
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	pos, err := h.positions.GetPosition(r.Context(), ownerID, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get position", err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// SetExitRules replaces a position's exit rules.
// PUT /api/positions/{id}/exit-rules?owner=123
func (h *PositionHandler) SetExitRules(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	var req exitRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, err := h.positions.SetExitRules(r.Context(), ownerID, pathParam(r, "id"), service.ExitRuleUpdate{
		TakeProfitPrice:     req.TakeProfitPrice,
		StopLossPrice:       req.StopLossPrice,
		TrailingStopPercent: req.TrailingStopPercent,
		AutoExitEnabled:     req.AutoExitEnabled,
	})
	if err != nil {
		h.writeServiceError(w, r, "set exit rules", err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// ClosePosition closes a position at market through the closure pipeline.
// POST /api/positions/{id}/close?owner=123
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	pos, err := h.positions.ClosePosition(r.Context(), ownerID, pathParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "close position", err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// CancelPosition marks an open position cancelled without executing an exit.
// DELETE /api/positions/{id}?owner=123
func (h *PositionHandler) CancelPosition(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	if err := h.positions.CancelPosition(r.Context(), ownerID, pathParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "cancel position", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Portfolio summarizes an owner's open book.
// GET /api/portfolio?owner=123
func (h *PositionHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerParam(w, r)
	if !ok {
		return
	}

	stats, err := h.positions.Portfolio(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, r, "portfolio", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"open_positions": stats.OpenPositions,
		"total_exposure": stats.TotalExposure,
		"unrealized_pnl": stats.UnrealizedPnL,
	})
}

// writeServiceError maps domain sentinel errors to HTTP status codes.
func (h *PositionHandler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, domain.ErrPositionClosed):
		writeError(w, http.StatusConflict, "position is not open")
	case errors.Is(err, domain.ErrInvalidExitRule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAuthRequired):
		writeError(w, http.StatusUnprocessableEntity, "exchange credentials or wallet required")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
