package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORION_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORION_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ORION_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ORION_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "ORION_CHAIN_CONTRACT_ADDRESS")
	setDuration(&cfg.Chain.TxTimeout, "ORION_CHAIN_TX_TIMEOUT")
	setUint64(&cfg.Chain.GasLimit, "ORION_CHAIN_GAS_LIMIT")

	// ── Keeper ──
	setStr(&cfg.Keeper.PrivateKey, "ORION_KEEPER_PRIVATE_KEY")
	setStr(&cfg.Keeper.EncryptedKeyPath, "ORION_KEEPER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Keeper.KeyPassword, "ORION_KEEPER_KEY_PASSWORD")
	setDuration(&cfg.Keeper.RoundDuration, "ORION_KEEPER_ROUND_DURATION")
	setDuration(&cfg.Keeper.Cooldown, "ORION_KEEPER_COOLDOWN")
	setDuration(&cfg.Keeper.Interval, "ORION_KEEPER_INTERVAL")
	setDuration(&cfg.Keeper.MaxBackoff, "ORION_KEEPER_MAX_BACKOFF")
	setDuration(&cfg.Keeper.ScheduleMinInterval, "ORION_KEEPER_SCHEDULE_MIN_INTERVAL")
	setDuration(&cfg.Keeper.LockTTL, "ORION_KEEPER_LOCK_TTL")
	setBool(&cfg.Keeper.Autostart, "ORION_KEEPER_AUTOSTART")
	setInt(&cfg.Keeper.Lookback, "ORION_KEEPER_LOOKBACK")

	// ── Contract ──
	setInt(&cfg.Contract.FeeBps, "ORION_CONTRACT_FEE_BPS")
	setStr(&cfg.Contract.Treasury, "ORION_CONTRACT_TREASURY")

	// ── Oracle ──
	setStr(&cfg.Oracle.Endpoint, "ORION_ORACLE_ENDPOINT")
	setStr(&cfg.Oracle.WSEndpoint, "ORION_ORACLE_WS_ENDPOINT")
	setStr(&cfg.Oracle.PriceFeedID, "ORION_ORACLE_PRICE_FEED_ID")
	setDuration(&cfg.Oracle.MaxStale, "ORION_ORACLE_MAX_STALE")
	setDuration(&cfg.Oracle.HTTPTimeout, "ORION_ORACLE_HTTP_TIMEOUT")
	setDuration(&cfg.Oracle.CacheTTL, "ORION_ORACLE_CACHE_TTL")
	setBool(&cfg.Oracle.StreamEnabled, "ORION_ORACLE_STREAM_ENABLED")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ORION_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ORION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORION_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORION_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORION_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORION_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ORION_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ORION_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ORION_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "ORION_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORION_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORION_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORION_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORION_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORION_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORION_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORION_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORION_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORION_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORION_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ORION_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ORION_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "ORION_ARCHIVE_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "ORION_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "ORION_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ORION_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ORION_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ORION_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORION_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORION_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORION_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORION_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORION_MODE")
	setStr(&cfg.LogLevel, "ORION_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
