package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// PriceCache keeps the last good oracle quote per feed in a hash at
// "{prefix}:price:{feedID}".
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache. Entries expire after ttl; zero keeps
// them forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

func (pc *PriceCache) SetQuote(ctx context.Context, feedID string, q domain.PriceQuote) error {
	key := pc.c.key("price", feedID)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price":        strconv.FormatFloat(q.Price, 'f', -1, 64),
		"conf":         strconv.FormatFloat(q.Confidence, 'f', -1, 64),
		"publish_time": strconv.FormatInt(q.PublishTime, 10),
		"price_id":     q.PriceID,
		"cached_at":    strconv.FormatInt(time.Now().UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", feedID, err)
	}
	return nil
}

// GetQuote returns the cached quote and when it was cached, or
// domain.ErrNotFound.
func (pc *PriceCache) GetQuote(ctx context.Context, feedID string) (domain.PriceQuote, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", feedID)).Result()
	if err != nil {
		return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: get quote %s: %w", feedID, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, time.Time{}, domain.ErrNotFound
	}

	var q domain.PriceQuote
	var cachedAt int64
	for field, dst := range map[string]any{
		"price":        &q.Price,
		"conf":         &q.Confidence,
		"publish_time": &q.PublishTime,
		"cached_at":    &cachedAt,
	} {
		raw, ok := vals[field]
		if !ok {
			return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: quote %s missing %s: %w", feedID, field, domain.ErrNotFound)
		}
		switch v := dst.(type) {
		case *float64:
			*v, err = strconv.ParseFloat(raw, 64)
		case *int64:
			*v, err = strconv.ParseInt(raw, 10, 64)
		}
		if err != nil {
			return domain.PriceQuote{}, time.Time{}, fmt.Errorf("redis: parse quote %s field %s: %w", feedID, field, err)
		}
	}
	q.PriceID = vals["price_id"]
	return q, time.Unix(0, cachedAt), nil
}
