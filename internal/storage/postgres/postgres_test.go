//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("webstore"),
		tcpostgres.WithUsername("webstore"),
		tcpostgres.WithPassword("webstore"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate container: %v", err)
		}
	}()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	if err := RunMigrations(dsn); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Applying twice is a no-op.
	if err := RunMigrations(dsn); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	return m.Run()
}

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	_, err := testPool.Exec(ctx, `TRUNCATE orders, carts, users, coupons, packages, products`)
	require.NoError(t, err)

	s := NewStore(testPool)
	require.NoError(t, s.Catalog().UpsertProduct(ctx, catalog.Product{ID: "a", Name: "Gauze", Price: decimal.RequireFromString("10.50"), Stock: 5}))
	require.NoError(t, s.Catalog().UpsertPackage(ctx, catalog.Package{
		ID: "k", Name: "Kit", Price: decimal.NewFromInt(40), Stock: 2, IncludedProducts: []string{"a"},
	}))
	require.NoError(t, s.Users().Upsert(ctx, auth.User{
		ID: "u1", FirstName: "Mona", LastName: "Adel", Email: "mona@example.com", Role: auth.RoleUser, APIKeyHash: "h1",
	}))
	return s
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p, err := s.Catalog().GetProduct(ctx, "a")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("10.50")))

	k, err := s.Catalog().GetPackage(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, k.IncludedProducts)

	_, err = s.Catalog().GetProduct(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	products, err := s.Catalog().ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Catalog()

	ok, err := repo.AdjustProductStock(ctx, "a", -5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AdjustProductStock(ctx, "a", -1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.AdjustPackageStock(ctx, "missing", -1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestAdjustStock_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(ctx context.Context) error {
				ok, err := s.Catalog().AdjustProductStock(ctx, "a", -1)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, granted)

	p, err := s.Catalog().GetProduct(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestInTx_Rollback(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.Catalog().AdjustProductStock(ctx, "a", -3); err != nil {
			return err
		}
		if err := s.Orders().Create(ctx, &order.Order{
			ID: "o1", Customer: order.Registered("u1"), Status: order.StatusPending, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Catalog().GetProduct(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	_, err = s.Orders().Get(ctx, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCoupons(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Coupons()

	limit := 1
	maxDiscount := decimal.NewFromInt(25)
	c := &coupon.Coupon{
		ID: "c1", Code: "HALF", DiscountPercentage: decimal.NewFromInt(50), MaxUsage: &limit,
		MaxDiscountValue: &maxDiscount, ApplicablePackages: []string{"k"}, IsActive: true, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, c))
	require.ErrorIs(t, repo.Create(ctx, &coupon.Coupon{ID: "c2", Code: "HALF", CreatedAt: time.Now()}), coupon.ErrDuplicateCode)

	got, err := repo.FindByCode(ctx, "HALF")
	require.NoError(t, err)
	require.NotNil(t, got.MaxUsage)
	assert.Equal(t, 1, *got.MaxUsage)
	require.NotNil(t, got.MaxDiscountValue)
	assert.True(t, got.MaxDiscountValue.Equal(maxDiscount))
	assert.Equal(t, []string{"k"}, got.ApplicablePackages)
	assert.Empty(t, got.ApplicableProducts)

	ok, err := repo.IncrementUsage(ctx, "HALF")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.IncrementUsage(ctx, "HALF")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.IncrementUsage(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrCouponNotFound)

	got.MaxUsage = nil
	got.MaxDiscountValue = nil
	got.IsActive = false
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got.MaxUsage)
	assert.Nil(t, got.MaxDiscountValue)
	assert.False(t, got.IsActive)
	assert.Equal(t, 1, got.UsedCount)

	ok, err = repo.IncrementUsage(ctx, "HALF")
	require.ErrorIs(t, err, coupon.ErrCouponInactive)
	assert.False(t, ok)

	// A stale copy never rewinds the stored counter.
	got.UsedCount = 0
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)

	require.NoError(t, repo.Delete(ctx, "c1"))
	require.ErrorIs(t, repo.Delete(ctx, "c1"), coupon.ErrCouponNotFound)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	repo := s.Orders()
	now := time.Now().UTC().Truncate(time.Millisecond)

	registered := &order.Order{
		ID:       "o1",
		Customer: order.Registered("u1"),
		Items: []order.Item{
			{Ref: catalog.PackageRef("k"), Name: "Kit", Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
		},
		Subtotal:    decimal.NewFromInt(40),
		TotalAmount: decimal.NewFromInt(20),
		Coupon:      &order.AppliedCoupon{Code: "HALF", DiscountAmount: decimal.NewFromInt(20)},
		Status:      order.StatusPending,
		CreatedAt:   now,
	}
	guest := &order.Order{
		ID: "o2",
		Customer: order.GuestCustomer(order.GuestInfo{
			FirstName: "Omar", LastName: "Ali", Email: "omar@example.com", Phone: "1",
			Governorate: "Cairo", City: "Maadi", Address: "9 Road",
		}),
		Items:       []order.Item{{Ref: catalog.ProductRef("a"), Name: "Gauze", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")}},
		Subtotal:    decimal.NewFromInt(21),
		TotalAmount: decimal.NewFromInt(21),
		Status:      order.StatusPending,
		CreatedAt:   now.Add(time.Minute),
	}
	require.NoError(t, repo.Create(ctx, registered))
	require.NoError(t, repo.Create(ctx, guest))

	got, err := repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Customer.UserID)
	assert.Nil(t, got.Customer.Guest)
	require.NotNil(t, got.Coupon)
	assert.Equal(t, "HALF", got.Coupon.Code)
	assert.Equal(t, catalog.PackageRef("k"), got.Items[0].Ref)
	assert.True(t, got.CreatedAt.Equal(now))

	got, err = repo.Get(ctx, "o2")
	require.NoError(t, err)
	assert.True(t, got.Customer.IsGuest())
	assert.Equal(t, "Omar", got.Customer.Guest.FirstName)
	assert.Nil(t, got.Coupon)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.50")))

	mine, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "o2", all[0].ID)

	ok, err := repo.UpdateStatus(ctx, "o1", order.StatusPending, order.StatusCancelled)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.UpdateStatus(ctx, "o1", order.StatusPending, order.StatusShipped)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.UpdateStatus(ctx, "nope", order.StatusPending, order.StatusShipped)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCartsAndUsers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c, err := s.Carts().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	c.Items = []cart.Item{
		{Ref: catalog.ProductRef("a"), Quantity: 2},
		{Ref: catalog.PackageRef("k"), Quantity: 1},
	}
	c.CouponCode = "HALF"
	require.NoError(t, s.Carts().Save(ctx, c))

	got, err := s.Carts().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c.Items, got.Items)
	assert.Equal(t, "HALF", got.CouponCode)

	require.NoError(t, s.Carts().Clear(ctx, "u1"))
	got, err = s.Carts().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.CouponCode)

	u, err := s.Users().FindByAPIKeyHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	_, err = s.Users().FindByAPIKeyHash(ctx, "h2")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	require.NoError(t, s.Users().AppendOrder(ctx, "u1", "o1"))
	require.NoError(t, s.Users().AppendOrder(ctx, "u1", "o2"))
	u, err = s.Users().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, u.Orders)
	require.ErrorIs(t, s.Users().AppendOrder(ctx, "nobody", "o1"), auth.ErrUserNotFound)
}
