package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/validation"
)

// Patch describes a partial coupon update. Nil pointers leave the field
// untouched; the Set flags distinguish "clear the limit" from "not sent".
type Patch struct {
	Code               *string
	DiscountPercentage *decimal.Decimal

	SetMaxUsage bool
	MaxUsage    *int

	SetMaxDiscountValue bool
	MaxDiscountValue    *decimal.Decimal

	ApplicableProducts *[]string
	ApplicablePackages *[]string
	IsActive           *bool
}

// Service implements coupon administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns every coupon, newest first.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Create validates and stores a new coupon. Codes are unique after
// normalization.
func (s *Service) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	if err := validate(&c); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByCode(ctx, c.Code); err == nil {
		return nil, ErrDuplicateCode
	} else if !errors.Is(err, ErrCouponNotFound) {
		return nil, errors.Wrap(err, "lookup coupon")
	}

	c.ID = uuid.New().String()
	c.UsedCount = 0
	c.CreatedAt = s.now()
	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return &c, nil
}

// Update applies p to the coupon identified by id.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Coupon, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Code != nil && *p.Code != "" {
		code := NormalizeCode(*p.Code)
		if code != c.Code {
			if _, err := s.repo.FindByCode(ctx, code); err == nil {
				return nil, ErrDuplicateCode
			} else if !errors.Is(err, ErrCouponNotFound) {
				return nil, errors.Wrap(err, "lookup coupon")
			}
		}
		c.Code = code
	}
	if p.DiscountPercentage != nil {
		c.DiscountPercentage = *p.DiscountPercentage
	}
	if p.SetMaxUsage {
		c.MaxUsage = p.MaxUsage
	}
	if p.SetMaxDiscountValue {
		c.MaxDiscountValue = p.MaxDiscountValue
	}
	if p.ApplicableProducts != nil {
		c.ApplicableProducts = *p.ApplicableProducts
	}
	if p.ApplicablePackages != nil {
		c.ApplicablePackages = *p.ApplicablePackages
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Delete removes a coupon. Placed orders keep their own copy of the code
// and discount, so nothing dereferences the deleted record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func validate(c *Coupon) error {
	if c.Code == "" {
		return validation.New("code", "coupon code is required")
	}
	if c.DiscountPercentage.IsNegative() || c.DiscountPercentage.GreaterThan(hundred) {
		return validation.New("discountPercentage", "discount percentage must be between 0 and 100")
	}
	if c.MaxUsage != nil && *c.MaxUsage < 0 {
		return validation.New("maxUsage", "max usage cannot be negative")
	}
	if c.MaxDiscountValue != nil && c.MaxDiscountValue.IsNegative() {
		return validation.New("maxDiscountValue", "max discount value cannot be negative")
	}
	return nil
}
