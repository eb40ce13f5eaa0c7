package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrCouponNotFound is returned when no coupon matches a code or id.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponInactive is returned when a coupon has been disabled.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponUsageExceeded is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageExceeded = errors.New("coupon usage limit reached")
	// ErrCouponNotApplicable is returned when a scoped coupon matches no line item.
	ErrCouponNotApplicable = errors.New("coupon not applicable to items in cart")
	// ErrDuplicateCode is returned when creating a coupon whose code already exists.
	ErrDuplicateCode = errors.New("coupon with this code already exists")
)

// Coupon is a percentage discount with optional usage and value caps.
type Coupon struct {
	ID                 string
	Code               string
	DiscountPercentage decimal.Decimal
	// MaxUsage is nil for unlimited redemptions.
	MaxUsage *int
	// MaxDiscountValue is nil for an uncapped discount.
	MaxDiscountValue   *decimal.Decimal
	UsedCount          int
	ApplicableProducts []string
	ApplicablePackages []string
	IsActive           bool
	CreatedAt          time.Time
}

// Scoped reports whether the coupon is restricted to specific items.
func (c *Coupon) Scoped() bool {
	return len(c.ApplicableProducts) > 0 || len(c.ApplicablePackages) > 0
}

// Check verifies the coupon can currently be redeemed.
func (c *Coupon) Check() error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if c.MaxUsage != nil && c.UsedCount >= *c.MaxUsage {
		return ErrCouponUsageExceeded
	}
	return nil
}

// NormalizeCode returns the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// FindByCode looks a coupon up by its normalized code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Get(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	// IncrementUsage atomically increments the usage counter unless the
	// coupon is already at MaxUsage. It reports whether the increment applied.
	// An inactive coupon is never redeemed and yields ErrCouponInactive.
	IncrementUsage(ctx context.Context, code string) (bool, error)
}
