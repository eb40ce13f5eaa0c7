package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/pricing"
	"github.com/xenking/webstore/internal/domain/stock"
	"github.com/xenking/webstore/internal/domain/validation"
)

// --- Mock implementations ---

type mockCatalog struct {
	products map[string]*catalog.Product
	packages map[string]*catalog.Package
}

func (m *mockCatalog) ListProducts(context.Context) ([]catalog.Product, error) { return nil, nil }
func (m *mockCatalog) ListPackages(context.Context) ([]catalog.Package, error) { return nil, nil }

func (m *mockCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) GetPackage(_ context.Context, id string) (*catalog.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

// mockStock reports the item's own stock counter.
type mockStock struct {
	cat *mockCatalog
}

func (m *mockStock) Available(ctx context.Context, ref catalog.Ref) (int, error) {
	if ref.Kind == catalog.KindPackage {
		p, err := m.cat.GetPackage(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		return p.Stock, nil
	}
	p, err := m.cat.GetProduct(ctx, ref.ID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

type mockCoupons struct {
	byCode map[string]*coupon.Coupon
}

func (m *mockCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	return c, nil
}

type mockCartRepo struct {
	carts map[string]*Cart
	saves int
}

func (m *mockCartRepo) Get(_ context.Context, userID string) (*Cart, error) {
	c, ok := m.carts[userID]
	if !ok {
		return &Cart{UserID: userID}, nil
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp, nil
}

func (m *mockCartRepo) Save(_ context.Context, c *Cart) error {
	m.saves++
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	m.carts[c.UserID] = &cp
	return nil
}

func (m *mockCartRepo) Clear(_ context.Context, userID string) error {
	delete(m.carts, userID)
	return nil
}

// --- Helpers ---

type fixture struct {
	svc     *Service
	carts   *mockCartRepo
	cat     *mockCatalog
	coupons *mockCoupons
}

func newFixture() *fixture {
	cat := &mockCatalog{
		products: map[string]*catalog.Product{
			"p1": {ID: "p1", Name: "Thermometer", Price: decimal.NewFromInt(100), Stock: 10},
			"p2": {ID: "p2", Name: "Mask", Price: decimal.RequireFromString("2.50"), Stock: 3},
		},
		packages: map[string]*catalog.Package{
			"k1": {ID: "k1", Name: "First Aid Kit", Price: decimal.NewFromInt(40), Stock: 2, IncludedProducts: []string{"p2"}},
		},
	}
	coupons := &mockCoupons{byCode: map[string]*coupon.Coupon{
		"HALF": {Code: "HALF", DiscountPercentage: decimal.NewFromInt(50), IsActive: true},
		"OFF":  {Code: "OFF", DiscountPercentage: decimal.NewFromInt(10)},
		"KITS": {
			Code:               "KITS",
			DiscountPercentage: decimal.NewFromInt(10),
			IsActive:           true,
			ApplicableProducts: []string{"p2"},
			ApplicablePackages: []string{"k1"},
		},
		"SPENT": {Code: "SPENT", DiscountPercentage: decimal.NewFromInt(10), IsActive: true, MaxUsage: ptr(1), UsedCount: 1},
	}}
	carts := &mockCartRepo{carts: make(map[string]*Cart)}
	svc := NewService(carts, catalog.NewAccessor(cat), pricing.NewEngine(coupons), &mockStock{cat: cat}, coupons)
	return &fixture{svc: svc, carts: carts, cat: cat, coupons: coupons}
}

func ptr[T any](v T) *T { return &v }

// --- Tests ---

func TestView_PricesFromCatalog(t *testing.T) {
	f := newFixture()
	f.carts.carts["u1"] = &Cart{
		UserID:     "u1",
		Items:      []Item{{Ref: catalog.ProductRef("p1"), Quantity: 2}},
		CouponCode: "HALF",
	}

	v, err := f.svc.View(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "200.00", v.Quote.Subtotal.StringFixed(2))
	assert.Equal(t, "100.00", v.Quote.DiscountAmount.StringFixed(2))
	assert.Equal(t, "100.00", v.Quote.Total.StringFixed(2))
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "Thermometer", v.Lines[0].Name)
	assert.Zero(t, f.carts.saves)
}

func TestView_DetachesStaleCoupon(t *testing.T) {
	for _, code := range []string{"OFF", "SPENT", "GONE", "KITS"} {
		t.Run(code, func(t *testing.T) {
			f := newFixture()
			f.carts.carts["u1"] = &Cart{
				UserID:     "u1",
				Items:      []Item{{Ref: catalog.ProductRef("p1"), Quantity: 1}},
				CouponCode: code,
			}

			v, err := f.svc.View(context.Background(), "u1")
			require.NoError(t, err)
			assert.True(t, v.Quote.Detached)
			assert.True(t, v.Quote.DiscountAmount.IsZero())
			assert.Empty(t, f.carts.carts["u1"].CouponCode)
		})
	}
}

func TestView_SkipsMissingItems(t *testing.T) {
	f := newFixture()
	f.carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{
		{Ref: catalog.ProductRef("deleted"), Quantity: 1},
		{Ref: catalog.PackageRef("k1"), Quantity: 1},
	}}

	v, err := f.svc.View(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "40.00", v.Quote.Total.StringFixed(2))
}

func TestAddItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "u1", catalog.ProductRef("p2"), 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)

	c, err = f.svc.AddItem(ctx, "u1", catalog.ProductRef("p2"), 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)

	_, err = f.svc.AddItem(ctx, "u1", catalog.ProductRef("p2"), 1)
	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 3, f.carts.carts["u1"].Items[0].Quantity)

	_, err = f.svc.AddItem(ctx, "u1", catalog.PackageRef("missing"), 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = f.svc.AddItem(ctx, "u1", catalog.ProductRef("p1"), -1)
	var vErr *validation.Error
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	seed := func() *fixture {
		f := newFixture()
		f.carts.carts["u1"] = &Cart{UserID: "u1", Items: []Item{{Ref: catalog.ProductRef("p2"), Quantity: 2}}}
		return f
	}

	t.Run("delta applied", func(t *testing.T) {
		f := seed()
		res, err := f.svc.UpdateQuantity(ctx, "u1", catalog.ProductRef("p2"), 1)
		require.NoError(t, err)
		assert.False(t, res.Clamped)
		assert.Equal(t, 3, res.Cart.Items[0].Quantity)
	})

	t.Run("clamped to stock", func(t *testing.T) {
		f := seed()
		res, err := f.svc.UpdateQuantity(ctx, "u1", catalog.ProductRef("p2"), 10)
		require.NoError(t, err)
		assert.True(t, res.Clamped)
		assert.Equal(t, 3, f.carts.carts["u1"].Items[0].Quantity)
	})

	t.Run("below one rejected", func(t *testing.T) {
		f := seed()
		_, err := f.svc.UpdateQuantity(ctx, "u1", catalog.ProductRef("p2"), -2)
		var vErr *validation.Error
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, 2, f.carts.carts["u1"].Items[0].Quantity)
	})

	t.Run("not in cart", func(t *testing.T) {
		f := seed()
		_, err := f.svc.UpdateQuantity(ctx, "u1", catalog.ProductRef("p1"), 1)
		require.ErrorIs(t, err, ErrItemNotInCart)
	})
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.carts.carts["u1"] = &Cart{UserID: "u1", CouponCode: "HALF", Items: []Item{
		{Ref: catalog.ProductRef("p1"), Quantity: 1},
		{Ref: catalog.ProductRef("p2"), Quantity: 1},
	}}

	c, err := f.svc.RemoveItem(ctx, "u1", catalog.ProductRef("p1"))
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].Ref.ID)

	require.NoError(t, f.svc.Clear(ctx, "u1"))
	assert.Empty(t, f.carts.carts["u1"].Items)
	assert.Equal(t, "HALF", f.carts.carts["u1"].CouponCode)
}

func TestApplyCoupon(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		code    string
		wantErr error
	}{
		{code: " half "},
		{code: "GONE", wantErr: coupon.ErrCouponNotFound},
		{code: "OFF", wantErr: coupon.ErrCouponInactive},
		{code: "SPENT", wantErr: coupon.ErrCouponUsageExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newFixture()
			err := f.svc.ApplyCoupon(ctx, "u1", tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, f.carts.carts["u1"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "HALF", f.carts.carts["u1"].CouponCode)

			require.NoError(t, f.svc.RemoveCoupon(ctx, "u1"))
			assert.Empty(t, f.carts.carts["u1"].CouponCode)
		})
	}
}
