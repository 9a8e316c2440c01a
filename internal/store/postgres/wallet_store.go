package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixtrade/helixbot/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `id, telegram_id, label, public_key,
	secret_key_encrypted, is_primary, created_at`

// Create inserts a new wallet. The first wallet for an owner is made
// primary automatically.
func (s *WalletStore) Create(ctx context.Context, w domain.Wallet) error {
	const query = `
		INSERT INTO wallets (
			id, telegram_id, label, public_key, secret_key_encrypted, is_primary, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6 OR NOT EXISTS (SELECT 1 FROM wallets WHERE telegram_id = $2),
			NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.TelegramID, w.Label, w.PublicKey, w.SecretKeyEncrypted, w.Primary,
	)
	if err != nil {
		return fmt.Errorf("postgres: create wallet %s: %w", w.ID, err)
	}
	return nil
}

// ListByOwner returns all wallets for the given owner, primary first.
func (s *WalletStore) ListByOwner(ctx context.Context, telegramID int64) ([]domain.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallets
		 WHERE telegram_id = $1
		 ORDER BY is_primary DESC, created_at`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets %d: %w", telegramID, err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(
			&w.ID, &w.TelegramID, &w.Label, &w.PublicKey,
			&w.SecretKeyEncrypted, &w.Primary, &w.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list wallets rows: %w", err)
	}
	return wallets, nil
}

// GetPrimary returns the owner's primary wallet.
func (s *WalletStore) GetPrimary(ctx context.Context, telegramID int64) (domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets
		 WHERE telegram_id = $1 AND is_primary = TRUE`, telegramID)

	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.TelegramID, &w.Label, &w.PublicKey,
		&w.SecretKeyEncrypted, &w.Primary, &w.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get primary wallet %d: %w", telegramID, err)
	}
	return w, nil
}

// SetPrimary flips the primary flag to the given wallet in one transaction.
func (s *WalletStore) SetPrimary(ctx context.Context, telegramID int64, walletID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: set primary wallet begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET is_primary = FALSE WHERE telegram_id = $1`, telegramID); err != nil {
		return fmt.Errorf("postgres: clear primary wallets %d: %w", telegramID, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET is_primary = TRUE WHERE id = $1 AND telegram_id = $2`,
		walletID, telegramID)
	if err != nil {
		return fmt.Errorf("postgres: set primary wallet %s: %w", walletID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: set primary wallet commit: %w", err)
	}
	return nil
}

// Delete removes a wallet.
func (s *WalletStore) Delete(ctx context.Context, walletID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		return fmt.Errorf("postgres: delete wallet %s: %w", walletID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)
