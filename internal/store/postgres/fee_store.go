package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixtrade/helixbot/internal/domain"
)

// FeeStore implements domain.FeeStore using PostgreSQL.
type FeeStore struct {
	pool *pgxpool.Pool
}

// NewFeeStore creates a new FeeStore backed by the given connection pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

const feeSelectCols = `id, position_id, telegram_id, original_amount,
	fee_amount, fee_rate, reference, status, collected_at, created_at`

func scanFeeRows(rows pgx.Rows) ([]domain.FeeRecord, error) {
	var fees []domain.FeeRecord
	for rows.Next() {
		var f domain.FeeRecord
		var positionID *string
		var status string
		if err := rows.Scan(
			&f.ID, &positionID, &f.TelegramID, &f.OriginalAmount,
			&f.FeeAmount, &f.FeeRate, &f.Reference, &status,
			&f.CollectedAt, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		if positionID != nil {
			f.PositionID = *positionID
		}
		f.Status = domain.FeeStatus(status)
		fees = append(fees, f)
	}
	return fees, rows.Err()
}

// Create inserts a new fee record.
func (s *FeeStore) Create(ctx context.Context, f domain.FeeRecord) error {
	var positionID *string
	if f.PositionID != "" {
		positionID = &f.PositionID
	}

	const query = `
		INSERT INTO fees (
			id, position_id, telegram_id, original_amount,
			fee_amount, fee_rate, reference, status, collected_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := s.pool.Exec(ctx, query,
		f.ID, positionID, f.TelegramID, f.OriginalAmount,
		f.FeeAmount, f.FeeRate, f.Reference, string(f.Status), f.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fee %s: %w", f.ID, err)
	}
	return nil
}

// ListByOwner returns all fee records for the given owner, newest first.
func (s *FeeStore) ListByOwner(ctx context.Context, telegramID int64) ([]domain.FeeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feeSelectCols+` FROM fees
		 WHERE telegram_id = $1 ORDER BY created_at DESC`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fees %d: %w", telegramID, err)
	}
	defer rows.Close()

	fees, err := scanFeeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fees: %w", err)
	}
	return fees, nil
}

// ListBefore returns fee records created strictly before the cutoff, for
// the cold-storage archiver.
func (s *FeeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FeeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+feeSelectCols+` FROM fees
		 WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fees before %s: %w", before, err)
	}
	defer rows.Close()

	fees, err := scanFeeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fees: %w", err)
	}
	return fees, nil
}

// Stats aggregates fee collection in a single query.
func (s *FeeStore) Stats(ctx context.Context) (domain.FeeStats, error) {
	const query = `
		SELECT
			COALESCE(SUM(fee_amount) FILTER (WHERE status = 'collected'), 0),
			COUNT(*),
			COUNT(DISTINCT telegram_id),
			COALESCE(AVG(fee_amount) FILTER (WHERE status = 'collected'), 0),
			COUNT(*) FILTER (WHERE status = 'collected')
		FROM fees`

	var stats domain.FeeStats
	var collected int
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalCollected,
		&stats.TotalTransactions,
		&stats.UniqueUsers,
		&stats.AverageFee,
		&collected,
	)
	if err != nil {
		return domain.FeeStats{}, fmt.Errorf("postgres: fee stats: %w", err)
	}
	if stats.TotalTransactions > 0 {
		stats.SuccessRate = float64(collected) / float64(stats.TotalTransactions) * 100
	}
	return stats, nil
}

// Compile-time interface check.
var _ domain.FeeStore = (*FeeStore)(nil)
