// Package rediscache caches promotion reads in Redis.
package rediscache

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// ActiveKey holds the cached set of active promotions of every kind.
const ActiveKey = "gaurosa:promotions:active:v1"

// Client is the subset of the go-redis API the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Source is the repository behind the cache.
type Source interface {
	promotion.Repository
	// ListOverlapping returns promotions whose validity window intersects
	// [from, to].
	ListOverlapping(ctx context.Context, from, to time.Time, kinds ...promotion.Kind) ([]promotion.Promotion, error)
}

var _ promotion.Repository = (*Promotions)(nil)

// Promotions is a read-through cache in front of a promotion.Repository.
//
// The cached set holds every promotion valid at some point while the entry
// lives, including ones starting within the TTL. Reads filter it again by
// kind and by eligibility at the requested time, so a promotion shows up as
// soon as it starts and disappears as soon as it expires. Usage counters
// may lag by up to the TTL; checkout redeems coupons against the database.
type Promotions struct {
	next   Source
	client Client
	ttl    time.Duration
}

// NewPromotions wraps next with a cache entry that lives for ttl.
func NewPromotions(next Source, client Client, ttl time.Duration) *Promotions {
	return &Promotions{next: next, client: client, ttl: ttl}
}

// ListActive implements promotion.Repository. Redis failures are logged and
// served from the underlying repository.
func (c *Promotions) ListActive(ctx context.Context, now time.Time, kinds ...promotion.Kind) ([]promotion.Promotion, error) {
	all, err := c.load(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]promotion.Promotion, 0, len(all))
	for i := range all {
		p := &all[i]
		if slices.Contains(kinds, p.Kind) && promotion.Eligible(p, now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Invalidate drops the cached set.
func (c *Promotions) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, ActiveKey).Err(); err != nil {
		return errors.Wrap(err, "delete cached promotions")
	}
	return nil
}

func (c *Promotions) load(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	lg := zctx.From(ctx)

	raw, err := c.client.Get(ctx, ActiveKey).Bytes()
	switch {
	case err == nil:
		promos, err := decodePromotions(raw)
		if err == nil {
			return promos, nil
		}
		lg.Warn("Dropping undecodable promotion cache entry", zap.Error(err))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Promotion cache read failed", zap.Error(err))
	}

	promos, err := c.next.ListOverlapping(ctx, now, now.Add(c.ttl), promotion.CartKinds...)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, ActiveKey, encodePromotions(promos), c.ttl).Err(); err != nil {
		lg.Warn("Promotion cache write failed", zap.Error(err))
	}
	return promos, nil
}
