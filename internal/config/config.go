// Package config defines the top-level configuration for the veilmarket
// ledger daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VEILD_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	FHE      FHEConfig      `toml:"fhe"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig identifies the service principal the engine re-grants itself
// ciphertext access under. Exactly one identity source is needed: a plain
// principal address (enough for the sim backend), a raw private key, or an
// encrypted keyfile plus its password. When a key is present the principal is
// derived from it.
type LedgerConfig struct {
	Principal       string `toml:"principal"`
	PrivateKey      string `toml:"private_key"`
	KeyfilePath     string `toml:"keyfile_path"`
	KeyfilePassword string `toml:"keyfile_password"`
}

// FHEConfig selects the encrypted-compute backend.
type FHEConfig struct {
	Backend string        `toml:"backend"`
	Gateway GatewayConfig `toml:"gateway"`
}

// GatewayConfig holds connection parameters for the remote FHE gateway.
type GatewayConfig struct {
	BaseURL  string   `toml:"base_url"`
	KeyID    string   `toml:"key_id"`
	Secret   string   `toml:"secret"`
	Timeout  duration `toml:"timeout"`
	Attempts int      `toml:"attempts"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// daemon falls back to the in-memory store.
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

// RedisConfig holds Redis connection parameters. Redis backs the market view
// cache, the request rate limiter, and the export lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// KafkaConfig holds the event stream publisher parameters.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// S3Config holds S3-compatible object storage parameters for the periodic
// journal export.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	ExportInterval duration `toml:"export_interval"`
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

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Host             string   `toml:"host"`
	Port             int      `toml:"port"`
	APIKeys          []string `toml:"api_keys"`
	CORSOrigins      []string `toml:"cors_origins"`
	RequireSignature bool     `toml:"require_signature"`
	RateLimitEnabled bool     `toml:"rate_limit_enabled"`
	RateLimitPerMin  int      `toml:"rate_limit_per_min"`
	ReadTimeout      duration `toml:"read_timeout"`
	WriteTimeout     duration `toml:"write_timeout"`
	ShutdownTimeout  duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials. Events lists the
// journal event kinds that are forwarded to the configured channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		FHE: FHEConfig{
			Backend: "sim",
			Gateway: GatewayConfig{
				Timeout:  duration{30 * time.Second},
				Attempts: 3,
			},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "veilmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "veilmarket.events",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "veilmarket-journal",
			UseSSL:         false,
			ForcePathStyle: true,
			Prefix:         "journal",
			ExportInterval: duration{15 * time.Minute},
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RequireSignature: false,
			RateLimitEnabled: false,
			RateLimitPerMin:  120,
			ReadTimeout:      duration{10 * time.Second},
			WriteTimeout:     duration{30 * time.Second},
			ShutdownTimeout:  duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "bet_placed", "prediction_closed"},
		},
		LogLevel: "info",
	}
}

// validBackends enumerates the accepted values for FHEConfig.Backend.
var validBackends = map[string]bool{
	"sim":     true,
	"gateway": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validNotifyEvents enumerates the journal event kinds notify.events accepts.
var validNotifyEvents = map[string]bool{
	"market_created":              true,
	"bet_placed":                  true,
	"option_count_access_granted": true,
	"bet_access_granted":          true,
	"prediction_closed":           true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger identity. The engine cannot grant itself tally access without
	// knowing who it is.
	if c.Ledger.Principal == "" && c.Ledger.PrivateKey == "" && c.Ledger.KeyfilePath == "" {
		errs = append(errs, "ledger: one of principal, private_key, or keyfile_path must be set")
	}
	if c.Ledger.KeyfilePath != "" && c.Ledger.KeyfilePassword == "" {
		errs = append(errs, "ledger: keyfile_password is required when keyfile_path is set")
	}
	if p := c.Ledger.Principal; p != "" {
		if !strings.HasPrefix(p, "0x") || len(p) != 42 {
			errs = append(errs, fmt.Sprintf("ledger: principal %q is not a 0x-prefixed 20-byte hex address", p))
		}
	}

	// FHE backend
	backend := strings.ToLower(c.FHE.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("fhe: unknown backend %q (valid: sim, gateway)", c.FHE.Backend))
	}
	if backend == "gateway" {
		if c.FHE.Gateway.BaseURL == "" {
			errs = append(errs, "fhe.gateway: base_url must not be empty")
		}
		if c.FHE.Gateway.KeyID == "" || c.FHE.Gateway.Secret == "" {
			errs = append(errs, "fhe.gateway: key_id and secret must both be set")
		}
		if c.FHE.Gateway.Timeout.Duration <= 0 {
			errs = append(errs, "fhe.gateway: timeout must be > 0")
		}
		if c.FHE.Gateway.Attempts < 1 {
			errs = append(errs, "fhe.gateway: attempts must be >= 1")
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
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

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
		if c.S3.ExportInterval.Duration <= 0 {
			errs = append(errs, "s3: export_interval must be > 0 when enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout.Duration <= 0 || c.Server.WriteTimeout.Duration <= 0 {
		errs = append(errs, "server: read_timeout and write_timeout must be > 0")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitPerMin < 1 {
			errs = append(errs, "server: rate_limit_per_min must be >= 1 when rate limiting is enabled")
		}
		if !c.Redis.Enabled {
			errs = append(errs, "server: rate limiting requires redis to be enabled")
		}
	}

	// Notify — token and chat id must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !validNotifyEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event kind %q", ev))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
