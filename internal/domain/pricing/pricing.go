// Package pricing computes subtotal, discount and total for a set of line
// items. Every entry point (cart view, guest preview, checkout) goes through
// Engine.Price so that all of them produce identical amounts.
package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
)

// Mode selects how coupon failures are handled.
type Mode int

const (
	// Preview drops a failing coupon and prices without it.
	Preview Mode = iota
	// Checkout returns coupon failures to the caller.
	Checkout
)

// CouponFinder looks coupons up by code.
type CouponFinder interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

// AppliedCoupon describes a coupon that contributed to a quote.
type AppliedCoupon struct {
	Code               string
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
}

// Quote is the priced result for a set of line items.
type Quote struct {
	Items          []catalog.LineItem
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	// Coupon is nil when no coupon was applied.
	Coupon *AppliedCoupon
	// Detached is set in Preview mode when a requested coupon was dropped;
	// DetachReason carries the coupon error.
	Detached     bool
	DetachReason error
}

// Engine prices line items.
type Engine struct {
	coupons CouponFinder
}

// NewEngine creates a pricing Engine.
func NewEngine(coupons CouponFinder) *Engine {
	return &Engine{coupons: coupons}
}

// Price computes the quote for items with an optional coupon code. Line item
// prices must come from the catalog. Amounts are rounded to 2 places only
// after the total is computed.
func (e *Engine) Price(ctx context.Context, items []catalog.LineItem, code string, mode Mode) (*Quote, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total())
	}

	q := &Quote{Items: items, DiscountAmount: decimal.Zero}

	if code = coupon.NormalizeCode(code); code != "" {
		c, res, err := e.evaluate(ctx, code, items)
		switch {
		case err == nil:
			q.DiscountAmount = res.DiscountAmount
			q.Coupon = &AppliedCoupon{
				Code:               c.Code,
				DiscountPercentage: c.DiscountPercentage,
			}
		case mode == Preview && isCouponFailure(err):
			q.Detached = true
			q.DetachReason = err
		default:
			return nil, err
		}
	}

	total := subtotal.Sub(q.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	q.Subtotal = subtotal.Round(2)
	q.DiscountAmount = q.DiscountAmount.Round(2)
	q.Total = total.Round(2)
	if q.Coupon != nil {
		q.Coupon.DiscountAmount = q.DiscountAmount
	}
	return q, nil
}

func (e *Engine) evaluate(ctx context.Context, code string, items []catalog.LineItem) (*coupon.Coupon, coupon.Result, error) {
	c, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			return nil, coupon.Result{}, coupon.ErrCouponNotFound
		}
		return nil, coupon.Result{}, errors.Wrap(err, "lookup coupon")
	}
	if err := c.Check(); err != nil {
		return nil, coupon.Result{}, err
	}
	res, err := coupon.Evaluate(c, items)
	if err != nil {
		return nil, coupon.Result{}, err
	}
	return c, res, nil
}

func isCouponFailure(err error) bool {
	return errors.Is(err, coupon.ErrCouponNotFound) ||
		errors.Is(err, coupon.ErrCouponInactive) ||
		errors.Is(err, coupon.ErrCouponUsageExceeded) ||
		errors.Is(err, coupon.ErrCouponNotApplicable)
}
