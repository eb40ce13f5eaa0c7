package pricing

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
)

type mockCoupons struct {
	byCode map[string]*coupon.Coupon
	err    error
}

func (m *mockCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	return c, nil
}

func withCoupons(cs ...coupon.Coupon) *mockCoupons {
	m := &mockCoupons{byCode: make(map[string]*coupon.Coupon)}
	for i := range cs {
		m.byCode[cs[i].Code] = &cs[i]
	}
	return m
}

func item(id, price string, qty int) catalog.LineItem {
	return catalog.LineItem{
		Ref:       catalog.ProductRef(id),
		Name:      id,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPrice_NoCoupon(t *testing.T) {
	e := NewEngine(withCoupons())

	q, err := e.Price(context.Background(), []catalog.LineItem{item("p1", "10.50", 2), item("p2", "3.25", 1)}, "", Checkout)
	require.NoError(t, err)
	assert.True(t, dec("24.25").Equal(q.Subtotal))
	assert.True(t, q.DiscountAmount.IsZero())
	assert.True(t, dec("24.25").Equal(q.Total))
	assert.Nil(t, q.Coupon)
	assert.False(t, q.Detached)
}

func TestPrice_HalfCouponScenario(t *testing.T) {
	e := NewEngine(withCoupons(coupon.Coupon{
		Code:               "HALF",
		DiscountPercentage: decimal.NewFromInt(50),
		IsActive:           true,
	}))

	q, err := e.Price(context.Background(), []catalog.LineItem{item("p1", "100", 2)}, "half", Checkout)
	require.NoError(t, err)
	assert.Equal(t, "200.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "100.00", q.DiscountAmount.StringFixed(2))
	assert.Equal(t, "100.00", q.Total.StringFixed(2))
	require.NotNil(t, q.Coupon)
	assert.Equal(t, "HALF", q.Coupon.Code)
	assert.True(t, q.Coupon.DiscountAmount.Equal(q.DiscountAmount))
}

func TestPrice_RoundsOnlyAtEnd(t *testing.T) {
	e := NewEngine(withCoupons(coupon.Coupon{
		Code:               "P15",
		DiscountPercentage: decimal.NewFromInt(15),
		IsActive:           true,
	}))

	// Per-item discounts are 0.0495 each; rounding them first would give 0.10.
	q, err := e.Price(context.Background(), []catalog.LineItem{item("a", "0.33", 1), item("b", "0.33", 1)}, "P15", Checkout)
	require.NoError(t, err)
	assert.Equal(t, "0.10", q.DiscountAmount.StringFixed(2))
	assert.Equal(t, "0.56", q.Total.StringFixed(2))
}

func TestPrice_TotalNeverNegative(t *testing.T) {
	e := NewEngine(withCoupons(coupon.Coupon{
		Code:               "ALL",
		DiscountPercentage: decimal.NewFromInt(100),
		IsActive:           true,
	}))

	for _, qty := range []int{1, 3, 17} {
		q, err := e.Price(context.Background(), []catalog.LineItem{item("a", "9.99", qty)}, "ALL", Checkout)
		require.NoError(t, err)
		assert.False(t, q.Total.IsNegative())
		assert.True(t, q.Total.Equal(decimal.Max(decimal.Zero, q.Subtotal.Sub(q.DiscountAmount))))
	}
}

func TestPrice_CouponFailures(t *testing.T) {
	coupons := withCoupons(
		coupon.Coupon{Code: "OFF", DiscountPercentage: decimal.NewFromInt(10), IsActive: false},
		coupon.Coupon{Code: "USED", DiscountPercentage: decimal.NewFromInt(10), IsActive: true, MaxUsage: ptr(1), UsedCount: 1},
		coupon.Coupon{Code: "SCOPED", DiscountPercentage: decimal.NewFromInt(10), IsActive: true, ApplicableProducts: []string{"zzz"}},
	)
	items := []catalog.LineItem{item("p1", "40", 1)}

	tests := []struct {
		code    string
		wantErr error
	}{
		{code: "MISSING", wantErr: coupon.ErrCouponNotFound},
		{code: "OFF", wantErr: coupon.ErrCouponInactive},
		{code: "USED", wantErr: coupon.ErrCouponUsageExceeded},
		{code: "SCOPED", wantErr: coupon.ErrCouponNotApplicable},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := NewEngine(coupons)

			_, err := e.Price(context.Background(), items, tt.code, Checkout)
			require.ErrorIs(t, err, tt.wantErr)

			q, err := e.Price(context.Background(), items, tt.code, Preview)
			require.NoError(t, err)
			assert.True(t, q.Detached)
			assert.ErrorIs(t, q.DetachReason, tt.wantErr)
			assert.Nil(t, q.Coupon)
			assert.True(t, q.DiscountAmount.IsZero())
			assert.True(t, dec("40").Equal(q.Total))
		})
	}
}

func TestPrice_LookupErrorNotDetached(t *testing.T) {
	e := NewEngine(&mockCoupons{err: errors.New("db down")})

	_, err := e.Price(context.Background(), []catalog.LineItem{item("p1", "1", 1)}, "X", Preview)
	require.Error(t, err)
	assert.NotErrorIs(t, err, coupon.ErrCouponNotFound)
}

func ptr[T any](v T) *T { return &v }
