package coupon

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/catalog"
)

var hundred = decimal.NewFromInt(100)

// Result holds the unrounded discount computed for a set of line items.
type Result struct {
	DiscountAmount decimal.Decimal
	// Hit reports whether at least one line item was eligible.
	Hit bool
}

// Evaluate computes the discount the coupon grants on items. It does not
// check activity or usage; see Check.
//
// A line item is eligible when the applicable set for its kind is empty or
// contains its id. A scoped coupon that matches no item fails with
// ErrCouponNotApplicable. The sum is clamped to MaxDiscountValue when set.
// Amounts are left unrounded; rounding happens once, in pricing.
func Evaluate(c *Coupon, items []catalog.LineItem) (Result, error) {
	var res Result
	res.DiscountAmount = decimal.Zero

	for _, item := range items {
		if !c.applies(item.Ref) {
			continue
		}
		res.Hit = true
		res.DiscountAmount = res.DiscountAmount.Add(item.Total().Mul(c.DiscountPercentage).Div(hundred))
	}

	if !res.Hit && c.Scoped() {
		return Result{}, ErrCouponNotApplicable
	}

	if c.MaxDiscountValue != nil && res.DiscountAmount.GreaterThan(*c.MaxDiscountValue) {
		res.DiscountAmount = *c.MaxDiscountValue
	}
	return res, nil
}

func (c *Coupon) applies(ref catalog.Ref) bool {
	var set []string
	switch ref.Kind {
	case catalog.KindProduct:
		set = c.ApplicableProducts
	case catalog.KindPackage:
		set = c.ApplicablePackages
	default:
		return false
	}
	return len(set) == 0 || slices.Contains(set, ref.ID)
}
