package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
)

type countingRepo struct {
	carts map[string]cart.Cart
	gets  int
}

func (r *countingRepo) Get(_ context.Context, userID string) (*cart.Cart, error) {
	r.gets++
	c, ok := r.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}, nil
	}
	return &c, nil
}

func (r *countingRepo) Save(_ context.Context, c *cart.Cart) error {
	r.carts[c.UserID] = *c
	return nil
}

func (r *countingRepo) Clear(_ context.Context, userID string) error {
	delete(r.carts, userID)
	return nil
}

func setup(t *testing.T) (*CartCache, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := &countingRepo{carts: map[string]cart.Cart{
		"u1": {
			UserID:     "u1",
			Items:      []cart.Item{{Ref: catalog.ProductRef("a"), Quantity: 2}, {Ref: catalog.PackageRef("k"), Quantity: 1}},
			CouponCode: "HALF",
		},
	}}
	return NewCartCache(repo, rdb, time.Minute), repo, mr
}

func TestCartCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t)

	first, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	second, err := c.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.gets)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, mr.TTL(key("u1")))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.gets)
}

func TestCartCache_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t)

	_, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, mr.Exists(key("u1")))

	require.NoError(t, c.Save(ctx, &cart.Cart{UserID: "u1", Items: []cart.Item{{Ref: catalog.ProductRef("b"), Quantity: 3}}}))
	assert.False(t, mr.Exists(key("u1")))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, catalog.ProductRef("b"), got.Items[0].Ref)
	assert.Empty(t, got.CouponCode)

	require.NoError(t, c.Clear(ctx, "u1"))
	assert.False(t, mr.Exists(key("u1")))
	got, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Equal(t, 3, repo.gets)
}

// pausingRepo blocks Get after loading until resume is closed.
type pausingRepo struct {
	*countingRepo
	loaded chan struct{}
	resume chan struct{}
}

func (r *pausingRepo) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := r.countingRepo.Get(ctx, userID)
	close(r.loaded)
	<-r.resume
	return c, err
}

func TestCartCache_ClearDuringLoad(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t)
	slow := &pausingRepo{countingRepo: repo, loaded: make(chan struct{}), resume: make(chan struct{})}
	c.next = slow

	done := make(chan *cart.Cart)
	go func() {
		got, err := c.Get(ctx, "u1")
		assert.NoError(t, err)
		done <- got
	}()

	<-slow.loaded
	require.NoError(t, c.Clear(ctx, "u1"))
	close(slow.resume)

	// The in-flight reader still sees what it loaded.
	stale := <-done
	assert.Len(t, stale.Items, 2)
	assert.False(t, mr.Exists(key("u1")))

	c.next = repo
	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.True(t, mr.Exists(key("u1")))
}

func TestCartCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t)
	require.NoError(t, mr.Set(key("u1"), "{not json"))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "HALF", got.CouponCode)
	assert.Equal(t, 1, repo.gets)
}

func TestCartCache_RedisDown(t *testing.T) {
	ctx := context.Background()
	c, repo, mr := setup(t)
	mr.Close()

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, 1, repo.gets)

	err = c.Save(ctx, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate cart cache")
}

func TestCartCodec(t *testing.T) {
	in := &cart.Cart{
		UserID:     "u1",
		Items:      []cart.Item{{Ref: catalog.PackageRef("k"), Quantity: 4}},
		CouponCode: "KITS",
	}
	out, err := decodeCart("u1", encodeCart(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	empty, err := decodeCart("u2", encodeCart(&cart.Cart{UserID: "u2"}))
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}
