package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// CreateMarket registers a new market with one zero-valued encrypted counter
// per option and returns its view. Titles and options are validated before
// anything is touched; ids are dense, 0-based, and assigned in creation
// order.
func (e *Engine) CreateMarket(ctx context.Context, creator domain.Principal, title string, options []string) (domain.MarketView, error) {
	if err := domain.ValidateMarketInput(title, options); err != nil {
		return domain.MarketView{}, fmt.Errorf("engine: create market: %w", err)
	}

	tallies := make([]fhe.Cipher[uint32], len(options))
	for i := range options {
		c, err := e.svc.EncryptUint32(ctx, 0)
		if err != nil {
			return domain.MarketView{}, fmt.Errorf("engine: encrypt zero tally: %w", err)
		}
		if err := e.selfGrant(ctx, c.Handle()); err != nil {
			return domain.MarketView{}, err
		}
		tallies[i] = c
	}

	m := domain.Market{
		Title:     title,
		Options:   append([]string(nil), options...),
		Status:    domain.MarketStatusActive,
		Creator:   creator,
		Tallies:   tallies,
		CreatedAt: time.Now().UTC(),
	}
	ev := domain.NewMarketCreated(0, creator, title)

	e.createMu.Lock()
	id, err := e.markets.Append(ctx, m, ev)
	e.createMu.Unlock()
	if err != nil {
		return domain.MarketView{}, fmt.Errorf("engine: append market: %w", err)
	}
	m.ID = id
	ev.MarketID = id

	if e.cache != nil {
		if cacheErr := e.cache.Set(ctx, m.View()); cacheErr != nil {
			e.logger.WarnContext(ctx, "engine: cache set failed",
				slog.Uint64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	e.emit(ctx, ev)

	e.logger.InfoContext(ctx, "engine: market created",
		slog.Uint64("market_id", id),
		slog.String("creator", creator.String()),
		slog.Int("options", len(options)),
	)
	return m.View(), nil
}

// GetMarket retrieves a market view, checking the cache first and falling
// back to the store on a miss.
func (e *Engine) GetMarket(ctx context.Context, id uint64) (domain.MarketView, error) {
	if e.cache != nil {
		if v, err := e.cache.Get(ctx, id); err == nil {
			return v, nil
		}
	}

	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return domain.MarketView{}, fmt.Errorf("engine: get market %d: %w", id, err)
	}
	v := m.View()

	// Back-fill cache; log but do not fail on cache write errors.
	if e.cache != nil {
		if cacheErr := e.cache.Set(ctx, v); cacheErr != nil {
			e.logger.WarnContext(ctx, "engine: cache set failed",
				slog.Uint64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return v, nil
}

// ListMarkets returns market views in id order.
func (e *Engine) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketView, error) {
	markets, err := e.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}
	views := make([]domain.MarketView, len(markets))
	for i, m := range markets {
		views[i] = m.View()
	}
	return views, nil
}

// CountMarkets returns the total number of markets ever created.
func (e *Engine) CountMarkets(ctx context.Context) (uint64, error) {
	count, err := e.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: count markets: %w", err)
	}
	return count, nil
}
