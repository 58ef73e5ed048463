// Package engine implements the market registry, bet ledger, encrypted tally
// updates, and capability grants behind the public API. Every mutating
// operation validates first, drives the capability service, then commits its
// storage mutation together with its journal event as one atomic unit.
// Operations on the same market are serialized; different markets never
// contend.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// Deps bundles everything the engine needs. Markets, Bets, Events, FHE, and
// Self are required; Cache and Sinks are optional.
type Deps struct {
	Markets domain.MarketStore
	Bets    domain.BetStore
	Events  domain.EventStore
	FHE     fhe.Service
	Cache   domain.MarketCache
	Sinks   []domain.EventSink
	Self    domain.Principal
	Logger  *slog.Logger
}

// Engine is the public state-transition surface. Safe for concurrent use.
type Engine struct {
	markets domain.MarketStore
	bets    domain.BetStore
	events  domain.EventStore
	svc     fhe.Service
	cache   domain.MarketCache
	sinks   []domain.EventSink
	self    domain.Principal
	logger  *slog.Logger

	locks *marketLocks
	// createMu serializes market creation so dense id assignment never races
	// across concurrent creates.
	createMu sync.Mutex
}

// New creates an Engine over the given dependencies. Self is the ledger's own
// principal, used to keep a standing decrypt grant on every ciphertext the
// engine creates.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		markets: d.Markets,
		bets:    d.Bets,
		events:  d.Events,
		svc:     d.FHE,
		cache:   d.Cache,
		sinks:   d.Sinks,
		self:    d.Self,
		logger:  logger.With(slog.String("component", "engine")),
		locks:   newMarketLocks(),
	}
}

// Backend reports the capability service behind the engine.
func (e *Engine) Backend() string {
	return e.svc.Name()
}

// Self reports the engine's own principal.
func (e *Engine) Self() domain.Principal {
	return e.self
}

// emit fans a committed journal event out to the configured sinks. The
// journal is the source of truth; sink delivery is best effort and a failed
// sink never affects the committed operation.
func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	for _, s := range e.sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			e.logger.WarnContext(ctx, "engine: event delivery failed",
				slog.String("sink", s.Name()),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// invalidate drops a market's cached view after a mutation. Cache failures
// are logged and otherwise ignored; the entry expires on its own.
func (e *Engine) invalidate(ctx context.Context, id uint64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, id); err != nil {
		e.logger.WarnContext(ctx, "engine: cache invalidate failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// ListEvents reads the journal in append order.
func (e *Engine) ListEvents(ctx context.Context, opts domain.EventListOpts) ([]domain.Event, error) {
	evs, err := e.events.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list events: %w", err)
	}
	return evs, nil
}
