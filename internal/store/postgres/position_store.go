package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixtrade/helixbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner_id, venue, instrument, side, amount,
	entry_price, current_price, highest_price_seen,
	take_profit_price, stop_loss_price, trailing_stop_percent, auto_exit_enabled,
	exchange_name, slippage_bps, status,
	close_price, pnl_absolute, pnl_percent, close_reason, closed_at,
	opened_at, updated_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var venue, side, status string
	var closeReason *string

	err := row.Scan(
		&p.ID, &p.OwnerID, &venue, &p.Instrument, &side, &p.Amount,
		&p.EntryPrice, &p.CurrentPrice, &p.HighestPriceSeen,
		&p.TakeProfitPrice, &p.StopLossPrice, &p.TrailingStopPercent, &p.AutoExitEnabled,
		&p.ExchangeName, &p.SlippageBps, &status,
		&p.ClosePrice, &p.PnLAbsolute, &p.PnLPercent, &closeReason, &p.ClosedAt,
		&p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Venue = domain.Venue(venue)
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	if closeReason != nil {
		r := domain.ExitReason(*closeReason)
		p.CloseReason = &r
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, owner_id, venue, instrument, side, amount,
			entry_price, current_price, highest_price_seen,
			take_profit_price, stop_loss_price, trailing_stop_percent, auto_exit_enabled,
			exchange_name, slippage_bps, status, opened_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.OwnerID, string(p.Venue), p.Instrument, string(p.Side), p.Amount,
		p.EntryPrice, p.CurrentPrice, p.HighestPriceSeen,
		p.TakeProfitPrice, p.StopLossPrice, p.TrailingStopPercent, p.AutoExitEnabled,
		p.ExchangeName, p.SlippageBps, string(p.Status), p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpenAutoExit returns every open position with automated exits enabled,
// ordered by open time so scan order is stable across cycles.
func (s *PositionStore) ListOpenAutoExit(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open' AND auto_exit_enabled = TRUE
		 ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open auto-exit positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open auto-exit positions: %w", err)
	}
	return positions, nil
}

// ListOpenByOwner returns all open positions for the given owner.
func (s *PositionStore) ListOpenByOwner(ctx context.Context, telegramID int64) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE owner_id = $1 AND status = 'open'
		 ORDER BY opened_at DESC`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions for the given owner with pagination and
// optional time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, telegramID int64, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE owner_id = $1`
	args := []any{telegramID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns positions closed strictly before the cutoff,
// used by the cold-storage archiver.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before %s: %w", before, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// UpdatePrice records the latest observed price for an open position.
func (s *PositionStore) UpdatePrice(ctx context.Context, id string, price float64) error {
	const query = `
		UPDATE positions SET current_price = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, price)
	if err != nil {
		return fmt.Errorf("postgres: update price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateHighestPrice ratchets the trailing high-water mark. GREATEST/LEAST
// keeps the update monotonic even under concurrent writers: a long's mark
// never decreases and a short's never increases.
func (s *PositionStore) UpdateHighestPrice(ctx context.Context, id string, price float64, side domain.Side) error {
	agg := "GREATEST"
	if side == domain.SideShort {
		agg = "LEAST"
	}
	query := fmt.Sprintf(`
		UPDATE positions SET
			highest_price_seen = %s(COALESCE(highest_price_seen, $2), $2),
			updated_at = NOW()
		WHERE id = $1 AND status = 'open'`, agg)

	tag, err := s.pool.Exec(ctx, query, id, price)
	if err != nil {
		return fmt.Errorf("postgres: update highest price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetExitRules replaces the exit thresholds and auto-exit flag on an open
// position. Nil pointers clear the corresponding rule.
func (s *PositionStore) SetExitRules(ctx context.Context, id string, tp, sl, trailingPct *float64, autoExit bool) error {
	const query = `
		UPDATE positions SET
			take_profit_price     = $2,
			stop_loss_price       = $3,
			trailing_stop_percent = $4,
			auto_exit_enabled     = $5,
			highest_price_seen    = CASE WHEN $4::DOUBLE PRECISION IS NULL THEN NULL ELSE highest_price_seen END,
			updated_at            = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, tp, sl, trailingPct, autoExit)
	if err != nil {
		return fmt.Errorf("postgres: set exit rules %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close marks a position as closed, writing the terminal fields in a single
// atomic update. The status guard makes closure idempotent: a concurrent or
// repeated close affects zero rows and reports ErrPositionClosed.
func (s *PositionStore) Close(ctx context.Context, id string, close domain.PositionClose) error {
	const query = `
		UPDATE positions SET
			status       = 'closed',
			close_price  = $2,
			pnl_absolute = $3,
			pnl_percent  = $4,
			close_reason = $5,
			closed_at    = NOW(),
			updated_at   = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id,
		close.ClosePrice, close.PnLAbsolute, close.PnLPercent, string(close.Reason))
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionClosed
	}
	return nil
}

// Cancel marks an open position as cancelled.
func (s *PositionStore) Cancel(ctx context.Context, id string) error {
	const query = `
		UPDATE positions SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionClosed
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
