package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixtrade/helixbot/internal/domain"
)

// SessionStore implements domain.SessionStore using plain Redis string keys
// with a TTL, so abandoned conversations expire on their own.
type SessionStore struct {
	rdb *redis.Client
}

// NewSessionStore creates a SessionStore backed by the given Client.
func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{rdb: c.Underlying()}
}

func sessionKey(telegramID int64) string {
	return "session:" + strconv.FormatInt(telegramID, 10)
}

// Set stores the conversational state for an owner with the given TTL.
func (ss *SessionStore) Set(ctx context.Context, telegramID int64, state string, ttl time.Duration) error {
	if err := ss.rdb.Set(ctx, sessionKey(telegramID), state, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set session %d: %w", telegramID, err)
	}
	return nil
}

// Get retrieves the conversational state for an owner. It returns
// domain.ErrNotFound when no session exists or it has expired.
func (ss *SessionStore) Get(ctx context.Context, telegramID int64) (string, error) {
	state, err := ss.rdb.Get(ctx, sessionKey(telegramID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: get session %d: %w", telegramID, err)
	}
	return state, nil
}

// Clear removes an owner's session state. Clearing a missing session is not
// an error.
func (ss *SessionStore) Clear(ctx context.Context, telegramID int64) error {
	if err := ss.rdb.Del(ctx, sessionKey(telegramID)).Err(); err != nil {
		return fmt.Errorf("redis: clear session %d: %w", telegramID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)
