package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixtrade/helixbot/internal/crypto"
	"github.com/helixtrade/helixbot/internal/domain"
	"github.com/helixtrade/helixbot/internal/executor"
	"github.com/helixtrade/helixbot/internal/platform/binance"
)

// UserService manages user accounts, sealed exchange credentials, and Solana
// wallets. It is also the credential source for the exit gateway: traders
// and signers are materialized on demand from sealed secrets.
type UserService struct {
	users      domain.UserStore
	wallets    domain.WalletStore
	box        *crypto.SecretBox
	binanceCfg binance.Config
	sessions   domain.SessionStore // optional
	logger     *slog.Logger
}

// verifiedStateTTL bounds how long a successful key verification is trusted
// before the owner has to re-verify.
const verifiedStateTTL = 24 * time.Hour

// NewUserService creates a UserService.
func NewUserService(
	users domain.UserStore,
	wallets domain.WalletStore,
	box *crypto.SecretBox,
	binanceCfg binance.Config,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:      users,
		wallets:    wallets,
		box:        box,
		binanceCfg: binanceCfg,
		logger:     logger.With(slog.String("component", "user_service")),
	}
}

// WithSessions enables connection-status caching through the given session
// store. Without it, VerifyExchangeKeys still works but ConnectionStatus
// always reports unverified.
func (s *UserService) WithSessions(sessions domain.SessionStore) *UserService {
	s.sessions = sessions
	return s
}

// Register returns the existing user for a Telegram account, creating one on
// first contact.
func (s *UserService) Register(ctx context.Context, telegramID int64, username string) (domain.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("user_service: lookup %d: %w", telegramID, err)
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:          uuid.New().String(),
		TelegramID:  telegramID,
		Username:    username,
		RiskProfile: domain.RiskModerate,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("user_service: create %d: %w", telegramID, err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.Int64("telegram_id", telegramID))
	return user, nil
}

// Get returns a user by Telegram account id.
func (s *UserService) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get %d: %w", telegramID, err)
	}
	return user, nil
}

// SaveAPIKeys seals and stores exchange credentials for a user.
func (s *UserService) SaveAPIKeys(ctx context.Context, telegramID int64, apiKey, apiSecret, exchange string) error {
	if apiKey == "" || apiSecret == "" {
		return fmt.Errorf("user_service: api key and secret are required")
	}

	keyEnc, err := s.box.Seal(apiKey)
	if err != nil {
		return fmt.Errorf("user_service: seal api key: %w", err)
	}
	secretEnc, err := s.box.Seal(apiSecret)
	if err != nil {
		return fmt.Errorf("user_service: seal api secret: %w", err)
	}

	if err := s.users.SaveAPIKeys(ctx, telegramID, keyEnc, secretEnc, exchange); err != nil {
		return fmt.Errorf("user_service: save api keys %d: %w", telegramID, err)
	}

	s.logger.InfoContext(ctx, "api keys stored",
		slog.Int64("telegram_id", telegramID),
		slog.String("exchange", exchange),
	)
	return nil
}

// DeleteAPIKeys removes a user's stored exchange credentials.
func (s *UserService) DeleteAPIKeys(ctx context.Context, telegramID int64) error {
	if err := s.users.DeleteAPIKeys(ctx, telegramID); err != nil {
		return fmt.Errorf("user_service: delete api keys %d: %w", telegramID, err)
	}
	return nil
}

// SetRiskProfile updates a user's risk profile.
func (s *UserService) SetRiskProfile(ctx context.Context, telegramID int64, profile domain.RiskProfile) error {
	switch profile {
	case domain.RiskConservative, domain.RiskModerate, domain.RiskAggressive:
	default:
		return fmt.Errorf("user_service: unknown risk profile %q", profile)
	}
	if err := s.users.SetRiskProfile(ctx, telegramID, profile); err != nil {
		return fmt.Errorf("user_service: set risk profile %d: %w", telegramID, err)
	}
	return nil
}

// Trader opens an authenticated exchange session for an owner. It returns
// domain.ErrAuthRequired when no credentials are stored.
func (s *UserService) Trader(ctx context.Context, ownerID int64, exchange string) (executor.CEXTrader, error) {
	user, err := s.users.GetByTelegramID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("user_service: trader %d: %w", ownerID, err)
	}
	if !user.HasExchangeKeys() {
		return nil, fmt.Errorf("user_service: trader %d: %w", ownerID, domain.ErrAuthRequired)
	}
	if exchange != "" && user.Exchange != exchange {
		return nil, fmt.Errorf("user_service: trader %d: no credentials for %q: %w", ownerID, exchange, domain.ErrAuthRequired)
	}

	apiKey, err := s.box.Open(user.APIKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("user_service: unseal api key %d: %w", ownerID, err)
	}
	apiSecret, err := s.box.Open(user.APISecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("user_service: unseal api secret %d: %w", ownerID, err)
	}

	return binance.NewClient(apiKey, apiSecret, s.binanceCfg), nil
}

// VerifyExchangeKeys checks that stored credentials can reach the exchange.
func (s *UserService) VerifyExchangeKeys(ctx context.Context, telegramID int64) error {
	trader, err := s.Trader(ctx, telegramID, "")
	if err != nil {
		return err
	}
	client, ok := trader.(*binance.Client)
	if !ok {
		return nil
	}
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("user_service: verify keys %d: %w", telegramID, err)
	}
	if s.sessions != nil {
		if err := s.sessions.Set(ctx, telegramID, "verified", verifiedStateTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to cache verification state",
				slog.Int64("telegram_id", telegramID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ConnectionStatus reports whether the owner's exchange credentials passed a
// recent verification. It reads the cached state only; it never touches the
// exchange.
func (s *UserService) ConnectionStatus(ctx context.Context, telegramID int64) (string, error) {
	if s.sessions == nil {
		return "unverified", nil
	}
	state, err := s.sessions.Get(ctx, telegramID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "unverified", nil
		}
		return "", fmt.Errorf("user_service: connection status %d: %w", telegramID, err)
	}
	return state, nil
}

// CreateWallet generates a fresh Solana wallet for the user and seals its
// secret key. The first wallet becomes primary.
func (s *UserService) CreateWallet(ctx context.Context, telegramID int64, label string) (domain.Wallet, error) {
	kp, err := crypto.NewKeypair()
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("user_service: create wallet: %w", err)
	}
	return s.storeWallet(ctx, telegramID, label, kp)
}

// ImportWallet stores an existing wallet from its base58 secret key.
func (s *UserService) ImportWallet(ctx context.Context, telegramID int64, label, secretBase58 string) (domain.Wallet, error) {
	kp, err := crypto.KeypairFromBase58(secretBase58)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("user_service: import wallet: %w", err)
	}
	return s.storeWallet(ctx, telegramID, label, kp)
}

func (s *UserService) storeWallet(ctx context.Context, telegramID int64, label string, kp *crypto.Keypair) (domain.Wallet, error) {
	sealed, err := s.box.Seal(kp.SecretBase58())
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("user_service: seal wallet key: %w", err)
	}

	w := domain.Wallet{
		ID:                 uuid.New().String(),
		TelegramID:         telegramID,
		Label:              label,
		PublicKey:          kp.PublicKey(),
		SecretKeyEncrypted: sealed,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return domain.Wallet{}, fmt.Errorf("user_service: store wallet: %w", err)
	}

	s.logger.InfoContext(ctx, "wallet stored",
		slog.Int64("telegram_id", telegramID),
		slog.String("public_key", w.PublicKey),
	)
	return w, nil
}

// ListWallets returns the user's wallets, primary first.
func (s *UserService) ListWallets(ctx context.Context, telegramID int64) ([]domain.Wallet, error) {
	wallets, err := s.wallets.ListByOwner(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("user_service: list wallets %d: %w", telegramID, err)
	}
	return wallets, nil
}

// SetPrimaryWallet changes which wallet signs DEX exits.
func (s *UserService) SetPrimaryWallet(ctx context.Context, telegramID int64, walletID string) error {
	if err := s.wallets.SetPrimary(ctx, telegramID, walletID); err != nil {
		return fmt.Errorf("user_service: set primary wallet %d: %w", telegramID, err)
	}
	return nil
}

// Signer returns the keypair for the owner's primary wallet. It returns
// domain.ErrAuthRequired when no wallet is stored.
func (s *UserService) Signer(ctx context.Context, ownerID int64) (*crypto.Keypair, error) {
	w, err := s.wallets.GetPrimary(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user_service: signer %d: %w", ownerID, domain.ErrAuthRequired)
		}
		return nil, fmt.Errorf("user_service: signer %d: %w", ownerID, err)
	}

	secret, err := s.box.Open(w.SecretKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("user_service: unseal wallet key %d: %w", ownerID, err)
	}
	kp, err := crypto.KeypairFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("user_service: parse wallet key %d: %w", ownerID, err)
	}
	return kp, nil
}

// Compile-time checks against the gateway's credential interfaces.
var (
	_ executor.TraderSource = (*UserService)(nil)
	_ executor.SignerSource = (*UserService)(nil)
)
