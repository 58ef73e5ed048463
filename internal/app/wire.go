package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/veilmarket/veilmarket/internal/blob/s3"
	"github.com/veilmarket/veilmarket/internal/cache/redis"
	"github.com/veilmarket/veilmarket/internal/config"
	"github.com/veilmarket/veilmarket/internal/crypto"
	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/engine"
	"github.com/veilmarket/veilmarket/internal/fhe"
	"github.com/veilmarket/veilmarket/internal/fhe/gateway"
	"github.com/veilmarket/veilmarket/internal/fhe/sim"
	"github.com/veilmarket/veilmarket/internal/metrics"
	"github.com/veilmarket/veilmarket/internal/notify"
	"github.com/veilmarket/veilmarket/internal/server/ws"
	"github.com/veilmarket/veilmarket/internal/store/memory"
	"github.com/veilmarket/veilmarket/internal/store/postgres"
	"github.com/veilmarket/veilmarket/internal/stream/kafka"
)

// Dependencies bundles everything the running daemon needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Self is the ledger's own principal; Identity is nil when the daemon
	// runs from a bare principal address (sim mode) instead of a key.
	Self     domain.Principal
	Identity *crypto.Identity

	// Capability backend, already wrapped with metrics instrumentation.
	FHE fhe.Service

	// Stores
	Markets   domain.MarketStore
	Bets      domain.BetStore
	Events    domain.EventStore
	StoreName string

	// Redis-backed collaborators; nil when Redis is disabled.
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Journal export; nil when S3 is disabled.
	Archiver domain.EventArchiver

	// Observability
	Metrics *metrics.Metrics

	// Hub streams journal events to WebSocket clients.
	Hub *ws.Hub

	// Engine is the public state-transition surface everything serves.
	Engine *engine.Engine
}

// resolveIdentity determines the ledger's own principal from the configured
// key material. A private key or keyfile wins over a bare principal address,
// since the address is then derivable.
func resolveIdentity(cfg config.LedgerConfig) (*crypto.Identity, domain.Principal, error) {
	if cfg.PrivateKey != "" || cfg.KeyfilePath != "" {
		keyHex, err := crypto.ResolveKey(crypto.KeySource{
			RawHex:      cfg.PrivateKey,
			KeyfilePath: cfg.KeyfilePath,
			Password:    cfg.KeyfilePassword,
		})
		if err != nil {
			return nil, domain.Principal{}, err
		}
		id, err := crypto.NewIdentity(keyHex)
		if err != nil {
			return nil, domain.Principal{}, err
		}
		return id, domain.Principal(id.Address()), nil
	}

	self, err := domain.ParsePrincipal(cfg.Principal)
	if err != nil {
		return nil, domain.Principal{}, err
	}
	return nil, self, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger identity ---
	identity, self, err := resolveIdentity(cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: ledger identity: %w", err)
	}
	deps.Identity = identity
	deps.Self = self

	// --- Metrics (registered on the default registry, served at /metrics) ---
	deps.Metrics = metrics.New()

	// --- Capability backend ---
	var svc fhe.Service
	switch strings.ToLower(cfg.FHE.Backend) {
	case "sim":
		svc = sim.New()
	case "gateway":
		svc = gateway.New(gateway.Config{
			BaseURL: cfg.FHE.Gateway.BaseURL,
			Auth: &crypto.GatewayAuth{
				KeyID:  cfg.FHE.Gateway.KeyID,
				Secret: cfg.FHE.Gateway.Secret,
			},
			Timeout:  cfg.FHE.Gateway.Timeout.Duration,
			Attempts: uint(cfg.FHE.Gateway.Attempts),
			Logger:   logger,
		})
	default:
		return nil, nil, fmt.Errorf("wire: unsupported fhe backend %q", cfg.FHE.Backend)
	}
	deps.FHE = metrics.InstrumentFHE(svc, deps.Metrics)

	// --- Stores ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Bets = postgres.NewBetStore(pool)
		deps.Events = postgres.NewEventStore(pool)
		deps.StoreName = "postgres"
	} else {
		stores := memory.New()
		deps.Markets = stores.Markets
		deps.Bets = stores.Bets
		deps.Events = stores.Events
		deps.StoreName = "memory"
	}

	// --- Redis ---
	var bus *redis.SignalBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		bus = redis.NewSignalBus(redisClient)
		deps.SignalBus = bus
	}

	// --- Event sinks ---
	// Order is delivery order after each commit; every sink is best effort.
	sinks := []domain.EventSink{metrics.NewEventSink(deps.Metrics)}

	if bus != nil {
		sinks = append(sinks, redis.NewEventPublisher(bus, redis.EventChannel))
	}

	if cfg.Kafka.Enabled {
		publisher := kafka.New(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		closers = append(closers, func() { _ = publisher.Close() })
		sinks = append(sinks, publisher)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		sinks = append(sinks, notify.NewEventSink(notifier))
	}

	// The hub either consumes the shared bus (so clients on any replica see
	// every event) or, without Redis, is fed directly as a sink.
	deps.Hub = ws.NewHub(deps.SignalBus, redis.EventChannel, logger, ws.Config{
		Backend:   cfg.FHE.Backend,
		Store:     deps.StoreName,
		StartedAt: time.Now().UTC(),
	})
	if bus == nil {
		sinks = append(sinks, deps.Hub)
	}

	// --- S3 journal export ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewLister(s3Client),
			deps.Events,
			cfg.S3.Prefix,
		)
	}

	// --- Engine ---
	deps.Engine = engine.New(engine.Deps{
		Markets: deps.Markets,
		Bets:    deps.Bets,
		Events:  deps.Events,
		FHE:     deps.FHE,
		Cache:   deps.MarketCache,
		Sinks:   sinks,
		Self:    deps.Self,
		Logger:  logger,
	})

	return deps, cleanup, nil
}
