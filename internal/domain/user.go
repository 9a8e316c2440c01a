package domain

import "time"

// RiskProfile tunes position sizing and default stops.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// User is a Telegram account known to the bot. Exchange API credentials are
// stored encrypted at rest and only ever decrypted in memory.
type User struct {
	ID                 string
	TelegramID         int64
	Username           string
	Exchange           string // preferred CEX, e.g. "binance"
	APIKeyEncrypted    string
	APISecretEncrypted string
	RiskProfile        RiskProfile
	Active             bool
	Admin              bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasExchangeKeys reports whether CEX credentials are on file.
func (u User) HasExchangeKeys() bool {
	return u.APIKeyEncrypted != "" && u.APISecretEncrypted != ""
}

// Wallet is a Solana wallet attached to a user. The secret key is stored
// encrypted; PublicKey is the base58 address.
type Wallet struct {
	ID                 string
	TelegramID         int64
	Label              string
	PublicKey          string
	SecretKeyEncrypted string
	Primary            bool
	CreatedAt          time.Time
}
