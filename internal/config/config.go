// Package config defines the top-level configuration for the trading
// assistant and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HELIX_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Binance  BinanceConfig  `toml:"binance"`
	Solana   SolanaConfig   `toml:"solana"`
	Fees     FeesConfig     `toml:"fees"`
	Risk     RiskConfig     `toml:"risk"`
	Security SecurityConfig `toml:"security"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the cold
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MonitorConfig holds position-monitor parameters.
type MonitorConfig struct {
	// Interval is the primary sweep cadence.
	Interval duration `toml:"interval"`
	// BackstopInterval re-triggers the same sweep in case primary ticks
	// were missed.
	BackstopInterval duration `toml:"backstop_interval"`
	// MaxConcurrent bounds the number of positions processed in parallel.
	MaxConcurrent int `toml:"max_concurrent"`
	// FailureAlertThreshold is the number of consecutive execution failures
	// on one position before an operator alert fires.
	FailureAlertThreshold int `toml:"failure_alert_threshold"`
	// PriceStaleAfter bounds how old a cached price may be before the
	// resolver falls through to a live oracle.
	PriceStaleAfter duration `toml:"price_stale_after"`
	// DedupTTL bounds how long an executed exit blocks re-execution.
	DedupTTL duration `toml:"dedup_ttl"`
}

// BinanceConfig holds Binance spot endpoints and the live-feed symbol list.
type BinanceConfig struct {
	BaseURL string `toml:"base_url"`
	WSURL   string `toml:"ws_url"`
	// FeedSymbols are streamed into the price cache when the feed is
	// enabled. Empty disables the feed.
	FeedSymbols []string `toml:"feed_symbols"`
}

// SolanaConfig holds Solana RPC and DEX oracle endpoints.
type SolanaConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	JupiterQuoteHosts []string `toml:"jupiter_quote_hosts"`
	JupiterPriceHost  string   `toml:"jupiter_price_host"`
	DexScreenerHost   string   `toml:"dexscreener_host"`
}

// FeesConfig holds service fee parameters.
type FeesConfig struct {
	// Rate is the fee charged on closed notional (0.005 = 0.5%).
	Rate float64 `toml:"rate"`
}

// RiskConfig holds pre-open risk limits.
type RiskConfig struct {
	MaxPositions     int     `toml:"max_positions"`
	MaxNotional      float64 `toml:"max_notional"`
	MaxTotalExposure float64 `toml:"max_total_exposure"`
}

// SecurityConfig holds the master secret for sealing stored credentials.
type SecurityConfig struct {
	// MasterPassword derives the key that encrypts exchange API keys and
	// wallet secret keys at rest.
	MasterPassword string `toml:"master_password"`
}

// ArchiveConfig holds cold-archive parameters.
type ArchiveConfig struct {
	// RetentionDays is the age past which closed positions and fee records
	// are archived to object storage.
	RetentionDays int `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials. Owner-facing
// messages go to each owner's own Telegram chat; the operator chat and the
// Discord webhook receive broadcast alerts.
type NotifyConfig struct {
	TelegramToken        string   `toml:"telegram_token"`
	TelegramOperatorChat string   `toml:"telegram_operator_chat_id"`
	DiscordWebhookURL    string   `toml:"discord_webhook_url"`
	Events               []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "helixbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "helixbot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Monitor: MonitorConfig{
			Interval:              duration{10 * time.Second},
			BackstopInterval:      duration{time.Minute},
			MaxConcurrent:         8,
			FailureAlertThreshold: 3,
			PriceStaleAfter:       duration{5 * time.Second},
			DedupTTL:              duration{5 * time.Minute},
		},
		Binance: BinanceConfig{
			BaseURL:     "",
			WSURL:       "wss://stream.binance.com:9443/stream",
			FeedSymbols: []string{},
		},
		Solana: SolanaConfig{
			RPCURL:            "https://api.mainnet-beta.solana.com",
			JupiterQuoteHosts: []string{},
			JupiterPriceHost:  "",
			DexScreenerHost:   "",
		},
		Fees: FeesConfig{
			Rate: 0.005,
		},
		Risk: RiskConfig{
			MaxPositions:     20,
			MaxNotional:      10_000,
			MaxTotalExposure: 50_000,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "exit_failed", "inconsistent_state"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needsS3 reports whether the mode runs the archiver.
func (c *Config) needsS3() bool {
	mode := strings.ToLower(c.Mode)
	return mode == "archive" || mode == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, serve, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 checks apply only to the archive-capable modes.
	if c.needsS3() {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty for mode "+c.Mode)
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty for mode "+c.Mode)
		}
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.BackstopInterval.Duration <= 0 {
		errs = append(errs, "monitor: backstop_interval must be > 0")
	}
	if c.Monitor.BackstopInterval.Duration < c.Monitor.Interval.Duration {
		errs = append(errs, "monitor: backstop_interval must not be shorter than interval")
	}
	if c.Monitor.MaxConcurrent < 1 {
		errs = append(errs, "monitor: max_concurrent must be >= 1")
	}
	if c.Monitor.FailureAlertThreshold < 1 {
		errs = append(errs, "monitor: failure_alert_threshold must be >= 1")
	}
	if c.Monitor.PriceStaleAfter.Duration <= 0 {
		errs = append(errs, "monitor: price_stale_after must be > 0")
	}

	// Solana
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}

	// Fees
	if c.Fees.Rate < 0 || c.Fees.Rate >= 1 {
		errs = append(errs, fmt.Sprintf("fees: rate must be in [0, 1), got %g", c.Fees.Rate))
	}

	// Sealing credentials requires a master password in every mode that can
	// execute exits or store keys.
	if c.Security.MasterPassword == "" {
		errs = append(errs, "security: master_password must be set")
	}

	// Archive
	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
