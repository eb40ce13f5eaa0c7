package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/webstore/internal/domain/catalog"
)

// ErrItemNotInCart is returned when an operation targets an item the cart
// does not hold.
var ErrItemNotInCart = errors.New("item not found in cart")

// Item is one cart line. Prices are never stored; they are resolved from the
// catalog every time the cart is priced.
type Item struct {
	Ref      catalog.Ref
	Quantity int
}

// Cart is the stored cart of a registered user.
type Cart struct {
	UserID     string
	Items      []Item
	CouponCode string
}

// Find returns the index of ref in the cart or -1.
func (c *Cart) Find(ref catalog.Ref) int {
	for i, it := range c.Items {
		if it.Ref == ref {
			return i
		}
	}
	return -1
}

// Requests converts the cart lines into catalog requests.
func (c *Cart) Requests() []catalog.Request {
	reqs := make([]catalog.Request, len(c.Items))
	for i, it := range c.Items {
		reqs[i] = catalog.Request{Ref: it.Ref, Quantity: it.Quantity}
	}
	return reqs
}

// Repository persists carts by user ID. Get returns an empty cart for a user
// that has none.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	// Clear drops every item and the attached coupon.
	Clear(ctx context.Context, userID string) error
}
