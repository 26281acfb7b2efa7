// Package config defines the top-level configuration for the orion keeper
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ORION_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Contract ContractConfig `toml:"contract"`
	Oracle   OracleConfig   `toml:"oracle"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the EVM endpoint and the betting contract.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	ChainID         int64    `toml:"chain_id"`
	ContractAddress string   `toml:"contract_address"`
	TxTimeout       duration `toml:"tx_timeout"`
	GasLimit        uint64   `toml:"gas_limit"` // 0 estimates per call
}

// KeeperConfig holds the keeper key and round cadence.
type KeeperConfig struct {
	PrivateKey          string   `toml:"private_key"`
	EncryptedKeyPath    string   `toml:"encrypted_key_path"`
	KeyPassword         string   `toml:"key_password"`
	RoundDuration       duration `toml:"round_duration"`
	Cooldown            duration `toml:"cooldown"` // pause between settling and starting the next round
	Interval            duration `toml:"interval"`
	MaxBackoff          duration `toml:"max_backoff"`
	ScheduleMinInterval duration `toml:"schedule_min_interval"`
	LockTTL             duration `toml:"lock_ttl"` // zero derives it, see SettleLockTTL
	Autostart           bool     `toml:"autostart"`
	Lookback            int      `toml:"lookback"`
}

// ContractConfig holds the parameters passed to initialize().
type ContractConfig struct {
	FeeBps   int    `toml:"fee_bps"`
	Treasury string `toml:"treasury"` // empty means the keeper address
}

// OracleConfig holds the Pyth Hermes endpoints.
type OracleConfig struct {
	Endpoint      string   `toml:"endpoint"`
	WSEndpoint    string   `toml:"ws_endpoint"`
	PriceFeedID   string   `toml:"price_feed_id"`
	MaxStale      duration `toml:"max_stale"`
	HTTPTimeout   duration `toml:"http_timeout"`
	CacheTTL      duration `toml:"cache_ttl"`
	StreamEnabled bool     `toml:"stream_enabled"`
}

// RedisConfig holds Redis connection parameters. Without Redis the keeper
// runs without distributed locks, price cache or the WebSocket bridge.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage archiver. It needs both
// postgres and s3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`    // guards operator endpoints; empty leaves them open
	RateLimit   int      `toml:"rate_limit"` // per client per rate_window on claim endpoints
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:    "http://localhost:8545",
			ChainID:   31337,
			TxTimeout: duration{2 * time.Minute},
		},
		Keeper: KeeperConfig{
			RoundDuration:       duration{5 * time.Minute},
			Cooldown:            duration{5 * time.Second},
			Interval:            duration{30 * time.Second},
			MaxBackoff:          duration{10 * time.Minute},
			ScheduleMinInterval: duration{time.Minute},
			Autostart:           true,
			Lookback:            5,
		},
		Contract: ContractConfig{
			FeeBps: 200,
		},
		Oracle: OracleConfig{
			Endpoint:      "https://hermes.pyth.network",
			WSEndpoint:    "wss://hermes.pyth.network/ws",
			PriceFeedID:   "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
			MaxStale:      duration{60 * time.Second},
			HTTPTimeout:   duration{10 * time.Second},
			CacheTTL:      duration{5 * time.Minute},
			StreamEnabled: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "orion",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "orion",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "orion-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   30,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"round_settled", "keeper_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"keeper": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsScheduler reports whether the background auto-manage loop starts with
// the process.
func (c *Config) RunsScheduler() bool {
	switch strings.ToLower(c.Mode) {
	case "keeper":
		return true
	case "full":
		return c.Keeper.Autostart
	}
	return false
}

// SettleLockTTL is how long a keeper holds a round lock. It never drops below
// one oracle fetch plus a full receipt wait plus the cooldown.
func (c *Config) SettleLockTTL() time.Duration {
	floor := c.Oracle.HTTPTimeout.Duration + c.Chain.TxTimeout.Duration + c.Keeper.Cooldown.Duration
	if c.Keeper.LockTTL.Duration > floor {
		return c.Keeper.LockTTL.Duration
	}
	return floor
}

// RunsServer reports whether the HTTP API is served.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, keeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.ContractAddress != "" && !common.IsHexAddress(c.Chain.ContractAddress) {
		errs = append(errs, fmt.Sprintf("chain: contract_address %q is not a hex address", c.Chain.ContractAddress))
	}
	if c.Chain.TxTimeout.Duration <= 0 {
		errs = append(errs, "chain: tx_timeout must be > 0")
	}

	// Keeper. A server-only deployment may run without a key; write
	// endpoints then answer 500 with an explanation.
	if c.RunsScheduler() {
		if c.Keeper.PrivateKey == "" && c.Keeper.EncryptedKeyPath == "" {
			errs = append(errs, "keeper: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Chain.ContractAddress == "" {
			errs = append(errs, "chain: contract_address is required for mode "+c.Mode)
		}
	}
	if c.Keeper.EncryptedKeyPath != "" && c.Keeper.KeyPassword == "" {
		errs = append(errs, "keeper: key_password is required when encrypted_key_path is set")
	}
	if c.Keeper.RoundDuration.Duration < time.Second {
		errs = append(errs, "keeper: round_duration must be at least 1s")
	}
	if c.Keeper.Cooldown.Duration < 0 {
		errs = append(errs, "keeper: cooldown must not be negative")
	}
	if c.Keeper.Interval.Duration <= 0 {
		errs = append(errs, "keeper: interval must be > 0")
	}
	if c.Keeper.MaxBackoff.Duration < c.Keeper.Interval.Duration {
		errs = append(errs, "keeper: max_backoff must not be shorter than interval")
	}
	if c.Keeper.Lookback < 1 {
		errs = append(errs, "keeper: lookback must be >= 1")
	}

	// Contract
	if c.Contract.FeeBps < 0 || c.Contract.FeeBps > 10_000 {
		errs = append(errs, fmt.Sprintf("contract: fee_bps must be 0-10000, got %d", c.Contract.FeeBps))
	}
	if c.Contract.Treasury != "" && !common.IsHexAddress(c.Contract.Treasury) {
		errs = append(errs, fmt.Sprintf("contract: treasury %q is not a hex address", c.Contract.Treasury))
	}

	// Oracle
	if c.Oracle.Endpoint == "" {
		errs = append(errs, "oracle: endpoint must not be empty")
	}
	if c.Oracle.PriceFeedID == "" {
		errs = append(errs, "oracle: price_feed_id must not be empty")
	}
	if c.Oracle.StreamEnabled && c.Oracle.WSEndpoint == "" {
		errs = append(errs, "oracle: ws_endpoint is required when stream_enabled is set")
	}
	if c.Oracle.MaxStale.Duration <= 0 {
		errs = append(errs, "oracle: max_stale must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.S3.Bucket == "" || c.S3.Region == "" {
			errs = append(errs, "archive: s3 bucket and region must be set")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Server
	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
