package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionClose carries the terminal fields written exactly once when a
// position closes.
type PositionClose struct {
	ClosePrice  float64
	PnLAbsolute float64
	PnLPercent  float64
	Reason      ExitReason
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)

	// ListOpenAutoExit returns a consistent snapshot of every open position
	// with automated exits enabled. This is the monitor's scan set.
	ListOpenAutoExit(ctx context.Context) ([]Position, error)
	ListOpenByOwner(ctx context.Context, telegramID int64) ([]Position, error)
	ListHistory(ctx context.Context, telegramID int64, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)

	// UpdatePrice records the latest observed price. UpdateHighestPrice
	// ratchets the trailing high-water mark: it never moves the stored value
	// against the profitable direction.
	UpdatePrice(ctx context.Context, id string, price float64) error
	UpdateHighestPrice(ctx context.Context, id string, price float64, side Side) error

	// SetExitRules replaces the exit thresholds and auto-exit flag. Nil
	// pointers clear the corresponding rule.
	SetExitRules(ctx context.Context, id string, tp, sl, trailingPct *float64, autoExit bool) error

	// Close transitions OPEN -> CLOSED exactly once. A second call for the
	// same id returns ErrPositionClosed and writes nothing.
	Close(ctx context.Context, id string, close PositionClose) error

	Cancel(ctx context.Context, id string) error
}

// UserStore persists users and their encrypted exchange credentials.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (User, error)
	SaveAPIKeys(ctx context.Context, telegramID int64, keyEnc, secretEnc, exchange string) error
	DeleteAPIKeys(ctx context.Context, telegramID int64) error
	SetRiskProfile(ctx context.Context, telegramID int64, profile RiskProfile) error
}

// WalletStore persists per-user Solana wallets.
type WalletStore interface {
	Create(ctx context.Context, w Wallet) error
	ListByOwner(ctx context.Context, telegramID int64) ([]Wallet, error)
	GetPrimary(ctx context.Context, telegramID int64) (Wallet, error)
	SetPrimary(ctx context.Context, telegramID int64, walletID string) error
	Delete(ctx context.Context, walletID string) error
}

// FeeStore persists service-fee records.
type FeeStore interface {
	Create(ctx context.Context, f FeeRecord) error
	ListByOwner(ctx context.Context, telegramID int64) ([]FeeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]FeeRecord, error)
	Stats(ctx context.Context) (FeeStats, error)
}

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records operational events (closures, escalations, archives).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
