// Package memory implements the domain stores in process memory. It backs
// tests and the sim deployment mode; the Postgres implementations mirror its
// semantics for durable deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

type betKey struct {
	marketID    uint64
	participant domain.Principal
}

// world is the shared state behind the three store views. One mutex guards
// everything so each mutating method is a single atomic unit.
type world struct {
	mu      sync.RWMutex
	markets []domain.Market
	bets    map[betKey]domain.Bet
	events  []domain.Event
}

// Stores bundles the three store implementations over one shared world.
type Stores struct {
	Markets *MarketStore
	Bets    *BetStore
	Events  *EventStore
}

// New creates an empty world and its store views.
func New() *Stores {
	w := &world{bets: make(map[betKey]domain.Bet)}
	return &Stores{
		Markets: &MarketStore{w: w},
		Bets:    &BetStore{w: w},
		Events:  &EventStore{w: w},
	}
}

func cloneMarket(m domain.Market) domain.Market {
	out := m
	out.Options = append([]string(nil), m.Options...)
	out.Tallies = append([]fhe.Cipher[uint32](nil), m.Tallies...)
	if m.Result != nil {
		r := *m.Result
		out.Result = &r
	}
	if m.ClosedAt != nil {
		t := *m.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	w *world
}

// Append assigns the next dense id and stores the market with its creation
// event.
func (s *MarketStore) Append(ctx context.Context, m domain.Market, ev domain.Event) (uint64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()

	id := uint64(len(s.w.markets))
	m.ID = id
	s.w.markets = append(s.w.markets, cloneMarket(m))
	ev.MarketID = id
	s.w.events = append(s.w.events, ev)
	return id, nil
}

// Get returns the market with the given id.
func (s *MarketStore) Get(ctx context.Context, id uint64) (domain.Market, error) {
	s.w.mu.RLock()
	defer s.w.mu.RUnlock()

	if id >= uint64(len(s.w.markets)) {
		return domain.Market{}, fmt.Errorf("memory: market %d: %w", id, domain.ErrNotFound)
	}
	return cloneMarket(s.w.markets[id]), nil
}

// List returns markets in id order.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.w.mu.RLock()
	defer s.w.mu.RUnlock()

	start := opts.Offset
	if start > len(s.w.markets) {
		start = len(s.w.markets)
	}
	end := len(s.w.markets)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	out := make([]domain.Market, 0, end-start)
	for _, m := range s.w.markets[start:end] {
		out = append(out, cloneMarket(m))
	}
	return out, nil
}

// Count returns the number of markets.
func (s *MarketStore) Count(ctx context.Context) (uint64, error) {
	s.w.mu.RLock()
	defer s.w.mu.RUnlock()
	return uint64(len(s.w.markets)), nil
}

// Close transitions a market to closed and records the close event.
func (s *MarketStore) Close(ctx context.Context, id uint64, result uint32, closedAt time.Time, ev domain.Event) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()

	if id >= uint64(len(s.w.markets)) {
		return fmt.Errorf("memory: market %d: %w", id, domain.ErrNotFound)
	}
	m := &s.w.markets[id]
	if m.Status != domain.MarketStatusActive {
		return fmt.Errorf("memory: market %d: %w", id, domain.ErrInvalidState)
	}

	m.Status = domain.MarketStatusClosed
	m.Result = &result
	m.ClosedAt = &closedAt
	s.w.events = append(s.w.events, ev)
	return nil
}

// BetStore implements domain.BetStore.
type BetStore struct {
	w *world
}

// Get returns the bet placed by participant on the given market.
func (s *BetStore) Get(ctx context.Context, marketID uint64, participant domain.Principal) (domain.Bet, error) {
	s.w.mu.RLock()
	defer s.w.mu.RUnlock()

	b, ok := s.w.bets[betKey{marketID, participant}]
	if !ok {
		return domain.Bet{}, fmt.Errorf("memory: bet (%d, %s): %w", marketID, participant, domain.ErrNotFound)
	}
	return b, nil
}

// Record stores a bet, bumps the owning market's aggregates, replaces its
// tally handles, and records the bet event as one unit.
func (s *BetStore) Record(ctx context.Context, b domain.Bet, tallies []fhe.Cipher[uint32], ev domain.Event) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()

	if b.MarketID >= uint64(len(s.w.markets)) {
		return fmt.Errorf("memory: market %d: %w", b.MarketID, domain.ErrNotFound)
	}
	key := betKey{b.MarketID, b.Participant}
	if _, ok := s.w.bets[key]; ok {
		return fmt.Errorf("memory: bet (%d, %s): %w", b.MarketID, b.Participant, domain.ErrAlreadyExists)
	}

	m := &s.w.markets[b.MarketID]
	s.w.bets[key] = b
	m.TotalStake += b.Amount
	m.ParticipantCount++
	m.Tallies = append([]fhe.Cipher[uint32](nil), tallies...)
	s.w.events = append(s.w.events, ev)
	return nil
}

// EventStore implements domain.EventStore.
type EventStore struct {
	w *world
}

// Append records an event whose operation mutates nothing else.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.events = append(s.w.events, ev)
	return nil
}

// List returns journal entries in append order with sequence numbers
// populated.
func (s *EventStore) List(ctx context.Context, opts domain.EventListOpts) ([]domain.Event, error) {
	s.w.mu.RLock()
	defer s.w.mu.RUnlock()

	matched := make([]domain.Event, 0, len(s.w.events))
	for i, ev := range s.w.events {
		seq := uint64(i + 1)
		if opts.MarketID != nil && ev.MarketID != *opts.MarketID {
			continue
		}
		if opts.Before != nil && !ev.At.Before(*opts.Before) {
			continue
		}
		if opts.AfterSeq != nil && seq <= *opts.AfterSeq {
			continue
		}
		ev.Seq = seq
		matched = append(matched, ev)
	}

	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return matched[start:end], nil
}

// Compile-time interface checks.
var (
	_ domain.MarketStore = (*MarketStore)(nil)
	_ domain.BetStore    = (*BetStore)(nil)
	_ domain.EventStore  = (*EventStore)(nil)
)
