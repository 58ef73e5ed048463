package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// CloseMarket transitions an active market to Closed with the given winning
// option. Any principal may close any active market; the declared outcome is
// recorded as-is, never verified. Closed is terminal: no bet or tally
// mutation is permitted afterwards, while all reads stay available.
func (e *Engine) CloseMarket(ctx context.Context, marketID uint64, winning uint32, closer domain.Principal) (domain.MarketView, error) {
	if _, err := e.markets.Get(ctx, marketID); err != nil {
		return domain.MarketView{}, fmt.Errorf("engine: close market: %w", err)
	}

	m, ev, err := e.closeLocked(ctx, marketID, winning, closer)
	if err != nil {
		return domain.MarketView{}, err
	}

	e.invalidate(ctx, marketID)
	e.emit(ctx, ev)

	e.logger.InfoContext(ctx, "engine: market closed",
		slog.Uint64("market_id", marketID),
		slog.Uint64("winning_option", uint64(winning)),
		slog.String("closer", closer.String()),
	)
	return m.View(), nil
}

func (e *Engine) closeLocked(ctx context.Context, marketID uint64, winning uint32, closer domain.Principal) (domain.Market, domain.Event, error) {
	unlock := e.locks.acquire(marketID)
	defer unlock()

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.Event{}, fmt.Errorf("engine: close market: %w", err)
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Market{}, domain.Event{}, fmt.Errorf("engine: close market %d: already %s: %w",
			marketID, m.Status, domain.ErrInvalidState)
	}
	if uint64(winning) >= uint64(len(m.Options)) {
		return domain.Market{}, domain.Event{}, fmt.Errorf("engine: close market %d: %w: winning option %d out of range, market has %d options",
			marketID, domain.ErrInvalidArgument, winning, len(m.Options))
	}

	closedAt := time.Now().UTC()
	ev := domain.NewPredictionClosed(marketID, winning, closer)
	if err := e.markets.Close(ctx, marketID, winning, closedAt, ev); err != nil {
		return domain.Market{}, domain.Event{}, fmt.Errorf("engine: close market: %w", err)
	}
	m.Status = domain.MarketStatusClosed
	m.Result = &winning
	m.ClosedAt = &closedAt
	return m, ev, nil
}
