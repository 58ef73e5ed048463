package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilmarket/veilmarket/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized market views.
//
// Key schema:
//
//	market:{id} - hash with field "data" containing JSON
//
// Views carry only public fields, so a cache hit never exposes more than the
// store would.
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id uint64) string {
	return "market:" + strconv.FormatUint(id, 10)
}

// Set stores a market view in the cache with a short TTL. The TTL is a
// backstop; mutations invalidate explicitly.
func (mc *MarketCache) Set(ctx context.Context, view domain.MarketView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", view.ID, err)
	}

	key := marketKey(view.ID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", view.ID, err)
	}
	return nil
}

// Get retrieves a market view by id from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id uint64) (domain.MarketView, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketView{}, domain.ErrNotFound
		}
		return domain.MarketView{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var view domain.MarketView
	if err := json.Unmarshal(data, &view); err != nil {
		return domain.MarketView{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return view, nil
}

// Invalidate removes a market view from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
