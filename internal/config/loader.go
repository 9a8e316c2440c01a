package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HELIX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HELIX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "HELIX_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "HELIX_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "HELIX_DATABASE_HOST")
	setInt(&cfg.Database.Port, "HELIX_DATABASE_PORT")
	setStr(&cfg.Database.Database, "HELIX_DATABASE_NAME")
	setStr(&cfg.Database.User, "HELIX_DATABASE_USER")
	setStr(&cfg.Database.Password, "HELIX_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "HELIX_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "HELIX_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "HELIX_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "HELIX_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HELIX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HELIX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HELIX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HELIX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HELIX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HELIX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HELIX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HELIX_S3_REGION")
	setStr(&cfg.S3.Bucket, "HELIX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HELIX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HELIX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HELIX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HELIX_S3_FORCE_PATH_STYLE")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "HELIX_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.BackstopInterval, "HELIX_MONITOR_BACKSTOP_INTERVAL")
	setInt(&cfg.Monitor.MaxConcurrent, "HELIX_MONITOR_MAX_CONCURRENT")
	setInt(&cfg.Monitor.FailureAlertThreshold, "HELIX_MONITOR_FAILURE_ALERT_THRESHOLD")
	setDuration(&cfg.Monitor.PriceStaleAfter, "HELIX_MONITOR_PRICE_STALE_AFTER")
	setDuration(&cfg.Monitor.DedupTTL, "HELIX_MONITOR_DEDUP_TTL")

	// ── Binance ──
	setStr(&cfg.Binance.BaseURL, "HELIX_BINANCE_BASE_URL")
	setStr(&cfg.Binance.WSURL, "HELIX_BINANCE_WS_URL")
	setStringSlice(&cfg.Binance.FeedSymbols, "HELIX_BINANCE_FEED_SYMBOLS")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "HELIX_SOLANA_RPC_URL")
	setStringSlice(&cfg.Solana.JupiterQuoteHosts, "HELIX_SOLANA_JUPITER_QUOTE_HOSTS")
	setStr(&cfg.Solana.JupiterPriceHost, "HELIX_SOLANA_JUPITER_PRICE_HOST")
	setStr(&cfg.Solana.DexScreenerHost, "HELIX_SOLANA_DEXSCREENER_HOST")

	// ── Fees ──
	setFloat64(&cfg.Fees.Rate, "HELIX_FEES_RATE")

	// ── Risk ──
	setInt(&cfg.Risk.MaxPositions, "HELIX_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.MaxNotional, "HELIX_RISK_MAX_NOTIONAL")
	setFloat64(&cfg.Risk.MaxTotalExposure, "HELIX_RISK_MAX_TOTAL_EXPOSURE")

	// ── Security ──
	setStr(&cfg.Security.MasterPassword, "HELIX_SECURITY_MASTER_PASSWORD")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "HELIX_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HELIX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HELIX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HELIX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "HELIX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "HELIX_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "HELIX_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HELIX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramOperatorChat, "HELIX_NOTIFY_TELEGRAM_OPERATOR_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HELIX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HELIX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HELIX_MODE")
	setStr(&cfg.LogLevel, "HELIX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
