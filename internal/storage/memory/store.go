// Package memory implements every repository on in-process maps. It backs
// the dev mode of the server and the handler tests.
package memory

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/order"
)

type state struct {
	products map[string]catalog.Product
	packages map[string]catalog.Package
	coupons  map[string]coupon.Coupon
	carts    map[string]cart.Cart
	orders   map[string]order.Order
	users    map[string]auth.User
}

func newState() *state {
	return &state{
		products: make(map[string]catalog.Product),
		packages: make(map[string]catalog.Package),
		coupons:  make(map[string]coupon.Coupon),
		carts:    make(map[string]cart.Cart),
		orders:   make(map[string]order.Order),
		users:    make(map[string]auth.User),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.packages {
		c.packages[k] = clonePackage(v)
	}
	for k, v := range s.coupons {
		c.coupons[k] = cloneCoupon(v)
	}
	for k, v := range s.carts {
		c.carts[k] = cloneCart(v)
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.users {
		c.users[k] = cloneUser(v)
	}
	return c
}

// Store holds all data behind one mutex. Transactions hold the mutex for
// their whole duration and roll back by restoring a snapshot.
type Store struct {
	mu    chanMutex
	state *state
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{mu: newChanMutex(), state: newState()}
}

type txKey struct{}

// InTx runs fn with exclusive access to the store. Writes made by fn are
// discarded when it returns an error. Nested calls join the outer
// transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := s.mu.Lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// acquire locks the store unless ctx already runs inside a transaction.
func (s *Store) acquire(ctx context.Context) (release func(), err error) {
	if s.inTx(ctx) {
		return func() {}, nil
	}
	if err := s.mu.Lock(ctx); err != nil {
		return nil, err
	}
	return s.mu.Unlock, nil
}

// view runs fn under the store lock.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(s.state)
}

// Catalog returns the catalog and stock repository.
func (s *Store) Catalog() *CatalogRepository { return &CatalogRepository{s: s} }

// Coupons returns the coupon repository.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Carts returns the cart repository.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// chanMutex is a mutex whose Lock honours context cancellation.
type chanMutex chan struct{}

func newChanMutex() chanMutex { return make(chanMutex, 1) }

func (m chanMutex) Lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) Unlock() { <-m }

func clonePackage(p catalog.Package) catalog.Package {
	p.IncludedProducts = slices.Clone(p.IncludedProducts)
	return p
}

func cloneCoupon(c coupon.Coupon) coupon.Coupon {
	if c.MaxUsage != nil {
		v := *c.MaxUsage
		c.MaxUsage = &v
	}
	c.MaxDiscountValue = cloneDecimalPtr(c.MaxDiscountValue)
	c.ApplicableProducts = slices.Clone(c.ApplicableProducts)
	c.ApplicablePackages = slices.Clone(c.ApplicablePackages)
	return c
}

func cloneCart(c cart.Cart) cart.Cart {
	c.Items = slices.Clone(c.Items)
	return c
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	if o.Coupon != nil {
		v := *o.Coupon
		o.Coupon = &v
	}
	if o.Customer.Guest != nil {
		v := *o.Customer.Guest
		o.Customer.Guest = &v
	}
	return o
}

func cloneUser(u auth.User) auth.User {
	u.Orders = slices.Clone(u.Orders)
	return u
}

func cloneDecimalPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
