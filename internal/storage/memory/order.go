package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/order"
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Transactor = (*Store)(nil)
	_ cart.Repository  = (*CartRepository)(nil)
	_ auth.Repository  = (*UserRepository)(nil)
)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	s *Store
}

// Create stores a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.s.view(ctx, func(st *state) error {
		st.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}

// Get returns an order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var out order.Order
	err := r.s.view(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, func(o *order.Order) bool {
		return !o.Customer.IsGuest() && o.Customer.UserID == userID
	})
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, func(*order.Order) bool { return true })
}

func (r *OrderRepository) list(ctx context.Context, match func(o *order.Order) bool) ([]order.Order, error) {
	out := []order.Order{}
	err := r.s.view(ctx, func(st *state) error {
		for _, o := range st.orders {
			if match(&o) {
				out = append(out, cloneOrder(o))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b order.Order) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, err
}

// UpdateStatus sets the status to next if it is still prev.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, prev, next order.Status) (bool, error) {
	var ok bool
	err := r.s.view(ctx, func(st *state) error {
		o, found := st.orders[id]
		if !found {
			return order.ErrNotFound
		}
		if o.Status != prev {
			return nil
		}
		o.Status = next
		st.orders[id] = o
		ok = true
		return nil
	})
	return ok, err
}

// CartRepository implements cart.Repository.
type CartRepository struct {
	s *Store
}

// Get returns the user's cart, empty if none was saved.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	out := cart.Cart{UserID: userID}
	err := r.s.view(ctx, func(st *state) error {
		if c, ok := st.carts[userID]; ok {
			out = cloneCart(c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Save replaces the user's cart.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	return r.s.view(ctx, func(st *state) error {
		st.carts[c.UserID] = cloneCart(*c)
		return nil
	})
}

// Clear drops the user's items and coupon.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	return r.s.view(ctx, func(st *state) error {
		delete(st.carts, userID)
		return nil
	})
}

// UserRepository implements auth.Repository.
type UserRepository struct {
	s *Store
}

// Upsert inserts or replaces a user.
func (r *UserRepository) Upsert(ctx context.Context, u auth.User) error {
	return r.s.view(ctx, func(st *state) error {
		st.users[u.ID] = cloneUser(u)
		return nil
	})
}

// FindByAPIKeyHash returns the user owning the hashed key.
func (r *UserRepository) FindByAPIKeyHash(ctx context.Context, hash string) (*auth.User, error) {
	var out auth.User
	err := r.s.view(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.APIKeyHash == hash {
				out = cloneUser(u)
				return nil
			}
		}
		return auth.ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*auth.User, error) {
	var out auth.User
	err := r.s.view(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return auth.ErrUserNotFound
		}
		out = cloneUser(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendOrder records orderID in the user's history.
func (r *UserRepository) AppendOrder(ctx context.Context, userID, orderID string) error {
	return r.s.view(ctx, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return auth.ErrUserNotFound
		}
		u.Orders = append(slices.Clone(u.Orders), orderID)
		st.users[userID] = u
		return nil
	})
}
