package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/helixbot/internal/crypto"
	"github.com/helixtrade/helixbot/internal/domain"
	"github.com/helixtrade/helixbot/internal/platform/binance"
)

type stubUserStore struct {
	users map[int64]domain.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: map[int64]domain.User{}}
}

func (s *stubUserStore) Create(_ context.Context, u domain.User) error {
	s.users[u.TelegramID] = u
	return nil
}

func (s *stubUserStore) GetByTelegramID(_ context.Context, telegramID int64) (domain.User, error) {
	u, ok := s.users[telegramID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *stubUserStore) SaveAPIKeys(_ context.Context, telegramID int64, keyEnc, secretEnc, exchange string) error {
	u := s.users[telegramID]
	u.APIKeyEncrypted = keyEnc
	u.APISecretEncrypted = secretEnc
	u.Exchange = exchange
	s.users[telegramID] = u
	return nil
}

func (s *stubUserStore) DeleteAPIKeys(_ context.Context, telegramID int64) error {
	u := s.users[telegramID]
	u.APIKeyEncrypted = ""
	u.APISecretEncrypted = ""
	u.Exchange = ""
	s.users[telegramID] = u
	return nil
}

func (s *stubUserStore) SetRiskProfile(_ context.Context, telegramID int64, profile domain.RiskProfile) error {
	u := s.users[telegramID]
	u.RiskProfile = profile
	s.users[telegramID] = u
	return nil
}

type stubWalletStore struct {
	wallets []domain.Wallet
}

func (s *stubWalletStore) Create(_ context.Context, w domain.Wallet) error {
	s.wallets = append(s.wallets, w)
	return nil
}

func (s *stubWalletStore) ListByOwner(_ context.Context, telegramID int64) ([]domain.Wallet, error) {
	var out []domain.Wallet
	for _, w := range s.wallets {
		if w.TelegramID == telegramID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *stubWalletStore) GetPrimary(_ context.Context, telegramID int64) (domain.Wallet, error) {
	for _, w := range s.wallets {
		if w.TelegramID == telegramID && w.Primary {
			return w, nil
		}
	}
	return domain.Wallet{}, domain.ErrNotFound
}

func (s *stubWalletStore) SetPrimary(_ context.Context, telegramID int64, walletID string) error {
	for i := range s.wallets {
		if s.wallets[i].TelegramID == telegramID {
			s.wallets[i].Primary = s.wallets[i].ID == walletID
		}
	}
	return nil
}

func (s *stubWalletStore) Delete(_ context.Context, walletID string) error {
	for i, w := range s.wallets {
		if w.ID == walletID {
			s.wallets = append(s.wallets[:i], s.wallets[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memorySessionStore struct {
	states map[int64]string
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{states: map[int64]string{}}
}

func (s *memorySessionStore) Set(_ context.Context, telegramID int64, state string, _ time.Duration) error {
	s.states[telegramID] = state
	return nil
}

func (s *memorySessionStore) Get(_ context.Context, telegramID int64) (string, error) {
	state, ok := s.states[telegramID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return state, nil
}

func (s *memorySessionStore) Clear(_ context.Context, telegramID int64) error {
	delete(s.states, telegramID)
	return nil
}

func newTestUserService(t *testing.T, sessions domain.SessionStore) (*UserService, *stubUserStore) {
	t.Helper()
	box, err := crypto.NewSecretBox("test-master-password")
	require.NoError(t, err)
	users := newStubUserStore()
	svc := NewUserService(users, &stubWalletStore{}, box, binance.Config{}, testLogger())
	if sessions != nil {
		svc = svc.WithSessions(sessions)
	}
	return svc, users
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, _ := newTestUserService(t, nil)

	first, err := svc.Register(context.Background(), 42, "alice")
	require.NoError(t, err)
	second, err := svc.Register(context.Background(), 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.RiskModerate, first.RiskProfile)
}

func TestSaveAPIKeysSealsCredentials(t *testing.T) {
	svc, users := newTestUserService(t, nil)

	_, err := svc.Register(context.Background(), 42, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SaveAPIKeys(context.Background(), 42, "key", "secret", "binance"))

	stored := users.users[42]
	assert.NotEmpty(t, stored.APIKeyEncrypted)
	assert.NotEqual(t, "key", stored.APIKeyEncrypted)
	assert.NotEqual(t, "secret", stored.APISecretEncrypted)
}

func TestConnectionStatusReadsCachedState(t *testing.T) {
	sessions := newMemorySessionStore()
	svc, _ := newTestUserService(t, sessions)

	status, err := svc.ConnectionStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "unverified", status)

	require.NoError(t, sessions.Set(context.Background(), 42, "verified", time.Hour))

	status, err = svc.ConnectionStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "verified", status)
}

func TestTraderRequiresCredentials(t *testing.T) {
	svc, _ := newTestUserService(t, nil)

	_, err := svc.Register(context.Background(), 42, "alice")
	require.NoError(t, err)

	_, err = svc.Trader(context.Background(), 42, "binance")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}
