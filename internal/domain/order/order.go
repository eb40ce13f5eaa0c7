package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/validation"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when a registered customer checks out with no items.
	ErrEmptyCart = errors.New("no items in cart")
	// ErrIllegalTransition is returned when leaving the Cancelled state.
	ErrIllegalTransition = errors.New("cannot un-cancel an order directly, please create a new order")
	// ErrConcurrentUpdate is returned when the status changed between read and write.
	ErrConcurrentUpdate = errors.New("order status changed concurrently")
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusShipped   Status = "Shipped"
	StatusConfirmed Status = "Confirmed"
	StatusCancelled Status = "Cancelled"
	StatusCompleted Status = "Completed"
)

var statuses = []Status{StatusPending, StatusShipped, StatusConfirmed, StatusCancelled, StatusCompleted}

// ParseStatus validates s as an order status.
func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", validation.Newf("status", "invalid status %q", s)
}

// CanTransition reports whether an order may move from s to next. Any state
// may move to any other, except that Cancelled is terminal.
func (s Status) CanTransition(next Status) error {
	if s == StatusCancelled && next != StatusCancelled {
		return ErrIllegalTransition
	}
	return nil
}

// GuestInfo is the contact snapshot of a guest customer.
type GuestInfo struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Governorate string
	City        string
	Address     string
}

// Validate checks that every contact field is present.
func (g *GuestInfo) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"firstName", g.FirstName},
		{"lastName", g.LastName},
		{"email", g.Email},
		{"phone", g.Phone},
		{"governorate", g.Governorate},
		{"city", g.City},
		{"address", g.Address},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return validation.Newf("guestInfo."+f.name, "guestInfo.%s is required", f.name)
		}
	}
	if !strings.Contains(g.Email, "@") {
		return validation.New("guestInfo.email", "guestInfo.email is invalid")
	}
	return nil
}

// FullName returns "First Last".
func (g *GuestInfo) FullName() string {
	return g.FirstName + " " + g.LastName
}

// FullAddress returns the address, city and governorate joined.
func (g *GuestInfo) FullAddress() string {
	return g.Address + ", " + g.City + ", " + g.Governorate
}

// CustomerKind tags the Customer variant.
type CustomerKind string

const (
	CustomerRegistered CustomerKind = "registered"
	CustomerGuest      CustomerKind = "guest"
)

// Customer identifies who placed an order: either a registered user or a
// guest with an embedded contact snapshot, never both.
type Customer struct {
	Kind   CustomerKind
	UserID string
	Guest  *GuestInfo
}

// Registered returns a customer backed by a user account.
func Registered(userID string) Customer {
	return Customer{Kind: CustomerRegistered, UserID: userID}
}

// GuestCustomer returns a customer identified only by contact details.
func GuestCustomer(info GuestInfo) Customer {
	return Customer{Kind: CustomerGuest, Guest: &info}
}

// IsGuest reports whether the customer has no account.
func (c Customer) IsGuest() bool {
	return c.Kind == CustomerGuest
}

// Item is an order line frozen at purchase time.
type Item struct {
	Ref       catalog.Ref
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// AppliedCoupon is the coupon snapshot stored with an order.
type AppliedCoupon struct {
	Code           string
	DiscountAmount decimal.Decimal
}

// Order is an immutable price-and-coupon snapshot. Only Status changes after
// creation.
type Order struct {
	ID          string
	Customer    Customer
	Items       []Item
	Subtotal    decimal.Decimal
	TotalAmount decimal.Decimal
	Coupon      *AppliedCoupon
	Status      Status
	CreatedAt   time.Time
}

// LineItems converts the order lines for stock operations.
func (o *Order) LineItems() []catalog.LineItem {
	items := make([]catalog.LineItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = catalog.LineItem{
			Ref:       it.Ref,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return items
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the orders of a registered user, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// UpdateStatus sets the status to next only if it currently equals prev.
	UpdateStatus(ctx context.Context, id string, prev, next Status) (bool, error)
}

// Transactor runs fn inside a single store transaction. Returning an error
// from fn rolls every write back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
