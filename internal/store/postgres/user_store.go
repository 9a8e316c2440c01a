package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helixtrade/helixbot/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, telegram_id, username, exchange,
	api_key_encrypted, api_secret_encrypted, risk_profile,
	is_active, is_admin, created_at, updated_at`

func scanUserRow(row pgx.Row) (domain.User, error) {
	var u domain.User
	var profile string
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.Exchange,
		&u.APIKeyEncrypted, &u.APISecretEncrypted, &profile,
		&u.Active, &u.Admin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.RiskProfile = domain.RiskProfile(profile)
	return u, nil
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (
			id, telegram_id, username, exchange,
			api_key_encrypted, api_secret_encrypted, risk_profile,
			is_active, is_admin, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.TelegramID, u.Username, u.Exchange,
		u.APIKeyEncrypted, u.APISecretEncrypted, string(u.RiskProfile),
		u.Active, u.Admin,
	)
	if err != nil {
		return fmt.Errorf("postgres: create user %d: %w", u.TelegramID, err)
	}
	return nil
}

// GetByTelegramID retrieves a user by Telegram account id.
func (s *UserStore) GetByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE telegram_id = $1`, telegramID)

	u, err := scanUserRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", telegramID, err)
	}
	return u, nil
}

// SaveAPIKeys stores already-encrypted exchange credentials. An empty
// exchange leaves the user's preferred exchange unchanged.
func (s *UserStore) SaveAPIKeys(ctx context.Context, telegramID int64, keyEnc, secretEnc, exchange string) error {
	const query = `
		UPDATE users SET
			api_key_encrypted    = $2,
			api_secret_encrypted = $3,
			exchange             = CASE WHEN $4 = '' THEN exchange ELSE $4 END,
			updated_at           = NOW()
		WHERE telegram_id = $1`

	tag, err := s.pool.Exec(ctx, query, telegramID, keyEnc, secretEnc, exchange)
	if err != nil {
		return fmt.Errorf("postgres: save api keys %d: %w", telegramID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteAPIKeys clears the stored exchange credentials.
func (s *UserStore) DeleteAPIKeys(ctx context.Context, telegramID int64) error {
	const query = `
		UPDATE users SET
			api_key_encrypted = '', api_secret_encrypted = '', updated_at = NOW()
		WHERE telegram_id = $1`

	tag, err := s.pool.Exec(ctx, query, telegramID)
	if err != nil {
		return fmt.Errorf("postgres: delete api keys %d: %w", telegramID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetRiskProfile updates the user's risk profile.
func (s *UserStore) SetRiskProfile(ctx context.Context, telegramID int64, profile domain.RiskProfile) error {
	const query = `
		UPDATE users SET risk_profile = $2, updated_at = NOW()
		WHERE telegram_id = $1`

	tag, err := s.pool.Exec(ctx, query, telegramID, string(profile))
	if err != nil {
		return fmt.Errorf("postgres: set risk profile %d: %w", telegramID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
