package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest prices, keyed by instrument
// (CEX symbol or DEX token mint).
type PriceCache interface {
	SetPrice(ctx context.Context, instrument string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, instrument string) (float64, time.Time, error)
	GetPrices(ctx context.Context, instruments []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting for upstream APIs.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The monitor takes a lock per
// position id around closure so the primary interval and the backstop sweep
// can never both execute an exit for the same position.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SessionStore keeps short-lived conversational state keyed by owner id,
// replacing ambient global maps in handler code.
type SessionStore interface {
	Set(ctx context.Context, telegramID int64, state string, ttl time.Duration) error
	Get(ctx context.Context, telegramID int64) (string, error)
	Clear(ctx context.Context, telegramID int64) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for exit events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
