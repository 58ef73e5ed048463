package domain

import (
	"context"
	"time"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EventListOpts filters journal reads. Before bounds the event timestamp
// (exclusive); MarketID restricts to one market when set. AfterSeq is a
// resume cursor: only events with a strictly greater journal position are
// returned.
type EventListOpts struct {
	MarketID *uint64
	Before   *time.Time
	AfterSeq *uint64
	Limit    int
	Offset   int
}

// MarketStore persists markets. Mutating methods record the operation's
// journal event in the same atomic unit as the mutation.
type MarketStore interface {
	// Append assigns the next dense id, stores the market, and records ev.
	Append(ctx context.Context, m Market, ev Event) (uint64, error)
	Get(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (uint64, error)
	// Close transitions an active market to closed with the given result and
	// records ev. Returns ErrInvalidState if the market is already closed.
	Close(ctx context.Context, id uint64, result uint32, closedAt time.Time, ev Event) error
}

// BetStore persists bets.
type BetStore interface {
	Get(ctx context.Context, marketID uint64, participant Principal) (Bet, error)
	// Record stores the bet, bumps the owning market's total stake and
	// participant count, replaces the market's tally handles, and records ev,
	// all as one atomic unit. Returns ErrAlreadyExists for a duplicate
	// (market, participant) key.
	Record(ctx context.Context, b Bet, tallies []fhe.Cipher[uint32], ev Event) error
}

// EventStore reads and appends the journal. Append exists for operations
// whose only mutation is the event itself (capability grants).
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts EventListOpts) ([]Event, error)
}
