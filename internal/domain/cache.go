package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market view lookups. Mutating operations
// invalidate; misses fall through to the store.
type MarketCache interface {
	Set(ctx context.Context, view MarketView) error
	Get(ctx context.Context, id uint64) (MarketView, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of journal events to live subscribers
// across replicas. Durable history lives in the journal, not the bus.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
