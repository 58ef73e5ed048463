package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Ledger
	out.Ledger = cfg.Ledger
	redact(&out.Ledger.PrivateKey)
	redact(&out.Ledger.KeyfilePassword)

	// FHE gateway
	out.FHE = cfg.FHE
	redact(&out.FHE.Gateway.Secret)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// API keys are secrets; keep the count visible but hide the values.
	if cfg.Server.APIKeys != nil {
		out.Server.APIKeys = make([]string, len(cfg.Server.APIKeys))
		for i := range cfg.Server.APIKeys {
			out.Server.APIKeys[i] = redacted
		}
	}

	// Copy the remaining slices so callers cannot mutate the original through
	// the redacted copy.
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Kafka.Brokers != nil {
		out.Kafka.Brokers = make([]string, len(cfg.Kafka.Brokers))
		copy(out.Kafka.Brokers, cfg.Kafka.Brokers)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
