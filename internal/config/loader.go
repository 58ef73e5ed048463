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
// built-in defaults, applies VEILD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VEILD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.Principal, "VEILD_LEDGER_PRINCIPAL")
	setStr(&cfg.Ledger.PrivateKey, "VEILD_LEDGER_PRIVATE_KEY")
	setStr(&cfg.Ledger.KeyfilePath, "VEILD_LEDGER_KEYFILE_PATH")
	setStr(&cfg.Ledger.KeyfilePassword, "VEILD_LEDGER_KEYFILE_PASSWORD")

	// ── FHE ──
	setStr(&cfg.FHE.Backend, "VEILD_FHE_BACKEND")
	setStr(&cfg.FHE.Gateway.BaseURL, "VEILD_FHE_GATEWAY_BASE_URL")
	setStr(&cfg.FHE.Gateway.KeyID, "VEILD_FHE_GATEWAY_KEY_ID")
	setStr(&cfg.FHE.Gateway.Secret, "VEILD_FHE_GATEWAY_SECRET")
	setDuration(&cfg.FHE.Gateway.Timeout, "VEILD_FHE_GATEWAY_TIMEOUT")
	setInt(&cfg.FHE.Gateway.Attempts, "VEILD_FHE_GATEWAY_ATTEMPTS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "VEILD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "VEILD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "VEILD_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VEILD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VEILD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VEILD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VEILD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VEILD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VEILD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VEILD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VEILD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VEILD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VEILD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VEILD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VEILD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VEILD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VEILD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VEILD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VEILD_REDIS_TLS_ENABLED")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "VEILD_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "VEILD_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "VEILD_KAFKA_TOPIC")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VEILD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VEILD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VEILD_S3_REGION")
	setStr(&cfg.S3.Bucket, "VEILD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VEILD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VEILD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VEILD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VEILD_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "VEILD_S3_PREFIX")
	setDuration(&cfg.S3.ExportInterval, "VEILD_S3_EXPORT_INTERVAL")

	// ── Server ──
	setStr(&cfg.Server.Host, "VEILD_SERVER_HOST")
	setInt(&cfg.Server.Port, "VEILD_SERVER_PORT")
	setStringSlice(&cfg.Server.APIKeys, "VEILD_SERVER_API_KEYS")
	setStringSlice(&cfg.Server.CORSOrigins, "VEILD_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.RequireSignature, "VEILD_SERVER_REQUIRE_SIGNATURE")
	setBool(&cfg.Server.RateLimitEnabled, "VEILD_SERVER_RATE_LIMIT_ENABLED")
	setInt(&cfg.Server.RateLimitPerMin, "VEILD_SERVER_RATE_LIMIT_PER_MIN")
	setDuration(&cfg.Server.ReadTimeout, "VEILD_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "VEILD_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "VEILD_SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VEILD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VEILD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VEILD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VEILD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "VEILD_LOG_LEVEL")
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
