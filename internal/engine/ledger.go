package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// PlaceBet records a participant's stake against an encrypted outcome choice
// and runs the oblivious tally update. The bet record, the market aggregates,
// the replaced tally handles, and the journal event commit as one unit; a
// rejected bet mutates nothing.
//
// The ledger never inspects the choice ciphertext. A choice outside the
// market's option range is absorbed: every counter keeps its value and the
// stake still counts toward the market's totals.
func (e *Engine) PlaceBet(ctx context.Context, marketID uint64, participant domain.Principal, choice fhe.Cipher[uint32], amount uint64) (domain.BetView, error) {
	if _, err := e.markets.Get(ctx, marketID); err != nil {
		return domain.BetView{}, fmt.Errorf("engine: place bet: %w", err)
	}

	b, ev, err := e.placeBetLocked(ctx, marketID, participant, choice, amount)
	if err != nil {
		return domain.BetView{}, err
	}

	e.invalidate(ctx, marketID)
	e.emit(ctx, ev)

	e.logger.InfoContext(ctx, "engine: bet placed",
		slog.Uint64("market_id", marketID),
		slog.String("participant", participant.String()),
		slog.Uint64("amount", amount),
	)
	return b.View(), nil
}

// placeBetLocked validates and commits under the market's lock. The lock is
// released before cache and sink work so slow fan-out never stalls the
// market.
func (e *Engine) placeBetLocked(ctx context.Context, marketID uint64, participant domain.Principal, choice fhe.Cipher[uint32], amount uint64) (domain.Bet, domain.Event, error) {
	unlock := e.locks.acquire(marketID)
	defer unlock()

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: place bet: %w", err)
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: place bet: market %d is %s: %w",
			marketID, m.Status, domain.ErrInvalidState)
	}
	if amount == 0 {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: place bet: %w: amount must be positive",
			domain.ErrInvalidArgument)
	}
	if choice.IsZero() {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: place bet: %w: missing choice ciphertext",
			domain.ErrInvalidArgument)
	}
	if _, err := e.bets.Get(ctx, marketID, participant); err == nil {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: place bet: participant %s already bet on market %d: %w",
			participant, marketID, domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: place bet: %w", err)
	}

	tallies, err := e.incrementTallies(ctx, m.Tallies, choice)
	if err != nil {
		return domain.Bet{}, domain.Event{}, err
	}

	b := domain.Bet{
		MarketID:    marketID,
		Participant: participant,
		Choice:      choice,
		Amount:      amount,
		PlacedAt:    time.Now().UTC(),
	}
	ev := domain.NewBetPlaced(marketID, participant, amount)
	if err := e.bets.Record(ctx, b, tallies, ev); err != nil {
		return domain.Bet{}, domain.Event{}, fmt.Errorf("engine: record bet: %w", err)
	}
	return b, ev, nil
}

// GetBet returns the bet a participant placed on a market. The view exposes
// the choice ciphertext handle, never a plaintext choice.
func (e *Engine) GetBet(ctx context.Context, marketID uint64, participant domain.Principal) (domain.BetView, error) {
	b, err := e.bets.Get(ctx, marketID, participant)
	if err != nil {
		return domain.BetView{}, fmt.Errorf("engine: get bet: %w", err)
	}
	return b.View(), nil
}
