package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// GrantTallyAccess authorizes grantee to decrypt every current tally
// ciphertext of the market. Grants attach to ciphertext instances and tally
// handles are replaced on every bet, so a grantee who wants continued access
// re-invokes this after later bets. Granting twice is a no-op beyond the
// first call; there is no revoke.
func (e *Engine) GrantTallyAccess(ctx context.Context, marketID uint64, grantee domain.Principal) error {
	if _, err := e.markets.Get(ctx, marketID); err != nil {
		return fmt.Errorf("engine: grant tally access: %w", err)
	}

	ev, err := e.grantTallyLocked(ctx, marketID, grantee)
	if err != nil {
		return err
	}
	e.emit(ctx, ev)

	e.logger.InfoContext(ctx, "engine: tally access granted",
		slog.Uint64("market_id", marketID),
		slog.String("grantee", grantee.String()),
	)
	return nil
}

// grantTallyLocked grants under the market's lock so the handles cannot be
// swapped out by a concurrent bet between the read and the grants.
func (e *Engine) grantTallyLocked(ctx context.Context, marketID uint64, grantee domain.Principal) (domain.Event, error) {
	unlock := e.locks.acquire(marketID)
	defer unlock()

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("engine: grant tally access: %w", err)
	}
	for i, c := range m.Tallies {
		if err := e.svc.Allow(ctx, c.Handle(), grantee.String()); err != nil {
			return domain.Event{}, fmt.Errorf("engine: grant tally %d of market %d: %w", i, marketID, err)
		}
	}

	ev := domain.NewOptionCountAccessGranted(marketID, grantee)
	if err := e.events.Append(ctx, ev); err != nil {
		return domain.Event{}, fmt.Errorf("engine: journal tally grant: %w", err)
	}
	return ev, nil
}

// GrantBetAccess authorizes a participant to decrypt their own recorded
// choice ciphertext. No path grants one participant another's bet.
func (e *Engine) GrantBetAccess(ctx context.Context, marketID uint64, participant domain.Principal) error {
	if _, err := e.markets.Get(ctx, marketID); err != nil {
		return fmt.Errorf("engine: grant bet access: %w", err)
	}

	ev, err := e.grantBetLocked(ctx, marketID, participant)
	if err != nil {
		return err
	}
	e.emit(ctx, ev)

	e.logger.InfoContext(ctx, "engine: bet access granted",
		slog.Uint64("market_id", marketID),
		slog.String("participant", participant.String()),
	)
	return nil
}

func (e *Engine) grantBetLocked(ctx context.Context, marketID uint64, participant domain.Principal) (domain.Event, error) {
	unlock := e.locks.acquire(marketID)
	defer unlock()

	b, err := e.bets.Get(ctx, marketID, participant)
	if err != nil {
		return domain.Event{}, fmt.Errorf("engine: grant bet access: %w", err)
	}
	if err := e.svc.Allow(ctx, b.Choice.Handle(), participant.String()); err != nil {
		return domain.Event{}, fmt.Errorf("engine: grant bet ciphertext of market %d: %w", marketID, err)
	}

	ev := domain.NewBetAccessGranted(marketID, participant)
	if err := e.events.Append(ctx, ev); err != nil {
		return domain.Event{}, fmt.Errorf("engine: journal bet grant: %w", err)
	}
	return ev, nil
}
