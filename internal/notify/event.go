// Package notify publishes placed-order events to an external sink.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/order"
)

// Contact is the customer address block of an event.
type Contact struct {
	Kind    string
	UserID  string
	Name    string
	Email   string
	Phone   string
	Address string
}

// Item is an ordered line. Contents lists the included product names of a
// package line and is empty for products.
type Item struct {
	Kind      string
	ID        string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Contents  []string
}

// Event is the payload sent for every placed order. It carries enough to
// render both the customer confirmation and the admin summary.
type Event struct {
	OrderID    string
	Status     string
	CreatedAt  time.Time
	Customer   Contact
	Items      []Item
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
}

// Encode writes the event as a JSON object.
func (ev *Event) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(ev.OrderID)
	e.FieldStart("status")
	e.Str(ev.Status)
	e.FieldStart("createdAt")
	e.Str(ev.CreatedAt.UTC().Format(time.RFC3339))

	e.FieldStart("customer")
	e.ObjStart()
	e.FieldStart("kind")
	e.Str(ev.Customer.Kind)
	if ev.Customer.UserID != "" {
		e.FieldStart("userId")
		e.Str(ev.Customer.UserID)
	}
	e.FieldStart("name")
	e.Str(ev.Customer.Name)
	e.FieldStart("email")
	e.Str(ev.Customer.Email)
	e.FieldStart("phone")
	e.Str(ev.Customer.Phone)
	e.FieldStart("address")
	e.Str(ev.Customer.Address)
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range ev.Items {
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(it.Kind)
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		e.Str(it.UnitPrice.StringFixed(2))
		if len(it.Contents) > 0 {
			e.FieldStart("contents")
			e.ArrStart()
			for _, name := range it.Contents {
				e.Str(name)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	e.Str(ev.Subtotal.StringFixed(2))
	e.FieldStart("discount")
	e.Str(ev.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(ev.Total.StringFixed(2))
	if ev.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(ev.CouponCode)
	}
	e.ObjEnd()
}

// MarshalJSON implements json.Marshaler.
func (ev *Event) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	ev.Encode(&e)
	return e.Bytes(), nil
}

// Builder assembles events from orders, looking up the contact of
// registered customers and the contents of ordered packages.
type Builder struct {
	catalog catalog.Repository
	users   auth.Repository
}

// NewBuilder creates a Builder.
func NewBuilder(cat catalog.Repository, users auth.Repository) *Builder {
	return &Builder{catalog: cat, users: users}
}

// Build returns the event for o.
func (b *Builder) Build(ctx context.Context, o *order.Order) (*Event, error) {
	ev := &Event{
		OrderID:   o.ID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		Items:     make([]Item, 0, len(o.Items)),
		Subtotal:  o.Subtotal,
		Total:     o.TotalAmount,
	}
	if o.Coupon != nil {
		ev.CouponCode = o.Coupon.Code
		ev.Discount = o.Coupon.DiscountAmount
	}

	contact, err := b.contact(ctx, o.Customer)
	if err != nil {
		return nil, err
	}
	ev.Customer = contact

	for _, it := range o.Items {
		item := Item{
			Kind:      string(it.Ref.Kind),
			ID:        it.Ref.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
		if it.Ref.Kind == catalog.KindPackage {
			if item.Contents, err = b.contents(ctx, it.Ref.ID); err != nil {
				return nil, err
			}
		}
		ev.Items = append(ev.Items, item)
	}
	return ev, nil
}

func (b *Builder) contact(ctx context.Context, c order.Customer) (Contact, error) {
	if c.IsGuest() {
		g := c.Guest
		return Contact{
			Kind:    string(c.Kind),
			Name:    g.FullName(),
			Email:   g.Email,
			Phone:   g.Phone,
			Address: g.FullAddress(),
		}, nil
	}
	u, err := b.users.Get(ctx, c.UserID)
	if err != nil {
		return Contact{}, errors.Wrapf(err, "get user %s", c.UserID)
	}
	return Contact{
		Kind:    string(c.Kind),
		UserID:  u.ID,
		Name:    u.FirstName + " " + u.LastName,
		Email:   u.Email,
		Phone:   u.Phone,
		Address: u.Address + ", " + u.City + ", " + u.Governorate,
	}, nil
}

// contents returns the names of the products included in a package. A
// package or product removed since the order was placed is left out.
func (b *Builder) contents(ctx context.Context, id string) ([]string, error) {
	pkg, err := b.catalog.GetPackage(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get package %s", id)
	}
	names := make([]string, 0, len(pkg.IncludedProducts))
	for _, pid := range pkg.IncludedProducts {
		p, err := b.catalog.GetProduct(ctx, pid)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "get product %s", pid)
		}
		names = append(names, p.Name)
	}
	return names, nil
}
