// Package redis caches carts in Redis in front of the primary store.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
)

var _ cart.Repository = (*CartCache)(nil)

const (
	keyPrefix = "webstore:cart:"
	genPrefix = "webstore:cart-gen:"
)

// errStaleLoad aborts a cache fill whose load raced with a write.
var errStaleLoad = errors.New("cart changed during load")

// CartCache is a read-through cache over a cart.Repository. Writes go to
// the underlying repository first, then bump the user's generation and drop
// the cached entry in one transaction. A fill only lands when the
// generation is unchanged since before the load. Redis read failures
// degrade to direct repository access.
type CartCache struct {
	next cart.Repository
	rdb  redis.UniversalClient
	ttl  time.Duration
}

// NewCartCache wraps next with a cache whose entries expire after ttl.
func NewCartCache(next cart.Repository, rdb redis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CartCache{next: next, rdb: rdb, ttl: ttl}
}

func key(userID string) string { return keyPrefix + userID }

func genKey(userID string) string { return genPrefix + userID }

// Get returns the cached cart or loads it from the repository.
func (c *CartCache) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	lg := zctx.From(ctx)

	data, err := c.rdb.Get(ctx, key(userID)).Bytes()
	switch {
	case err == nil:
		cached, err := decodeCart(userID, data)
		if err == nil {
			return cached, nil
		}
		lg.Warn("Drop corrupt cart cache entry", zap.String("user_id", userID), zap.Error(err))
	case !errors.Is(err, redis.Nil):
		lg.Warn("Cart cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	gen, genErr := c.generation(ctx, c.rdb, userID)

	loaded, err := c.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return loaded, nil
	}
	switch err := c.fill(ctx, loaded, gen); {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
		lg.Debug("Skip stale cart cache fill", zap.String("user_id", userID))
	default:
		lg.Warn("Cart cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return loaded, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *CartCache) generation(ctx context.Context, cmd stringGetter, userID string) (string, error) {
	gen, err := cmd.Get(ctx, genKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// fill caches ct if the user's generation still equals gen.
func (c *CartCache) fill(ctx context.Context, ct *cart.Cart, gen string) error {
	return c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.generation(ctx, tx, ct.UserID)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key(ct.UserID), encodeCart(ct), c.ttl)
			return nil
		})
		return err
	}, genKey(ct.UserID))
}

// Save stores the cart and invalidates the cached copy.
func (c *CartCache) Save(ctx context.Context, ct *cart.Cart) error {
	if err := c.next.Save(ctx, ct); err != nil {
		return err
	}
	return c.invalidate(ctx, ct.UserID)
}

// Clear empties the cart and invalidates the cached copy.
func (c *CartCache) Clear(ctx context.Context, userID string) error {
	if err := c.next.Clear(ctx, userID); err != nil {
		return err
	}
	return c.invalidate(ctx, userID)
}

// invalidate bumps the generation and drops the cached entry. A stale
// entry would serve wrong data until it expires, so failure is reported.
func (c *CartCache) invalidate(ctx context.Context, userID string) error {
	if _, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey(userID))
		p.Del(ctx, key(userID))
		return nil
	}); err != nil {
		return errors.Wrap(err, "invalidate cart cache")
	}
	return nil
}

func encodeCart(ct *cart.Cart) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("coupon")
	e.Str(ct.CouponCode)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range ct.Items {
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(string(it.Ref.Kind))
		e.FieldStart("id")
		e.Str(it.Ref.ID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func decodeCart(userID string, data []byte) (*cart.Cart, error) {
	ct := &cart.Cart{UserID: userID}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, k string) error {
		switch k {
		case "coupon":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ct.CouponCode = v
			return nil
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it cart.Item
				if err := d.Obj(func(d *jx.Decoder, k string) error {
					var err error
					switch k {
					case "kind":
						var v string
						v, err = d.Str()
						it.Ref.Kind = catalog.Kind(v)
					case "id":
						it.Ref.ID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				ct.Items = append(ct.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return ct, nil
}
