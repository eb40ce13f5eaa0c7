// Package seed loads catalog, coupon and user fixtures into a store.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
)

// Product is a seeded product.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// Package is a seeded package.
type Package struct {
	Product
	IncludedProducts []string `json:"includedProducts"`
}

// Coupon is a seeded coupon.
type Coupon struct {
	Code               string           `json:"code"`
	DiscountPercentage decimal.Decimal  `json:"discountPercentage"`
	MaxUsage           *int             `json:"maxUsage"`
	MaxDiscountValue   *decimal.Decimal `json:"maxDiscountValue"`
	ApplicableProducts []string         `json:"applicableProducts"`
	ApplicablePackages []string         `json:"applicablePackages"`
	IsActive           *bool            `json:"isActive"`
}

// User is a seeded user. APIKey is the plaintext key; only its hash is
// stored.
type User struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Governorate string `json:"governorate"`
	City        string `json:"city"`
	Address     string `json:"address"`
	Role        string `json:"role"`
	APIKey      string `json:"apiKey"`
}

// Data is the fixture file layout.
type Data struct {
	Products []Product `json:"products"`
	Packages []Package `json:"packages"`
	Coupons  []Coupon  `json:"coupons"`
	Users    []User    `json:"users"`
}

// Parse decodes fixtures from r.
func Parse(r io.Reader) (*Data, error) {
	var d Data
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, errors.Wrap(err, "decode seed data")
	}
	return &d, nil
}

// CatalogWriter stores catalog entries.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, p catalog.Product) error
	UpsertPackage(ctx context.Context, p catalog.Package) error
}

// CouponWriter stores new coupons.
type CouponWriter interface {
	Create(ctx context.Context, c *coupon.Coupon) error
}

// UserWriter stores users.
type UserWriter interface {
	Upsert(ctx context.Context, u auth.User) error
}

// Target is the store being seeded.
type Target struct {
	Catalog CatalogWriter
	Coupons CouponWriter
	Users   UserWriter
}

// Stats counts what Apply wrote.
type Stats struct {
	Products       int
	Packages       int
	Coupons        int
	SkippedCoupons int
	Users          int
}

// Apply writes d into t. Catalog entries and users are upserted. Coupons
// whose code already exists are skipped so the seed can be rerun.
func Apply(ctx context.Context, t Target, d *Data, pepper []byte) (Stats, error) {
	var st Stats
	for _, p := range d.Products {
		if err := t.Catalog.UpsertProduct(ctx, catalog.Product(p)); err != nil {
			return st, errors.Wrapf(err, "seed product %s", p.ID)
		}
		st.Products++
	}
	for _, p := range d.Packages {
		if err := t.Catalog.UpsertPackage(ctx, catalog.Package{
			ID:               p.ID,
			Name:             p.Name,
			Description:      p.Description,
			Image:            p.Image,
			Price:            p.Price,
			Stock:            p.Stock,
			IncludedProducts: p.IncludedProducts,
		}); err != nil {
			return st, errors.Wrapf(err, "seed package %s", p.ID)
		}
		st.Packages++
	}

	now := time.Now()
	for _, c := range d.Coupons {
		cp := &coupon.Coupon{
			ID:                 uuid.New().String(),
			Code:               coupon.NormalizeCode(c.Code),
			DiscountPercentage: c.DiscountPercentage,
			MaxUsage:           c.MaxUsage,
			MaxDiscountValue:   c.MaxDiscountValue,
			ApplicableProducts: c.ApplicableProducts,
			ApplicablePackages: c.ApplicablePackages,
			IsActive:           c.IsActive == nil || *c.IsActive,
			CreatedAt:          now,
		}
		if err := t.Coupons.Create(ctx, cp); err != nil {
			if errors.Is(err, coupon.ErrDuplicateCode) {
				st.SkippedCoupons++
				continue
			}
			return st, errors.Wrapf(err, "seed coupon %s", cp.Code)
		}
		st.Coupons++
	}

	for _, u := range d.Users {
		if u.APIKey == "" {
			return st, errors.Errorf("user %s has no api key", u.ID)
		}
		role := auth.Role(u.Role)
		if role == "" {
			role = auth.RoleUser
		}
		if err := t.Users.Upsert(ctx, auth.User{
			ID:          u.ID,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Email:       u.Email,
			Phone:       u.Phone,
			Governorate: u.Governorate,
			City:        u.City,
			Address:     u.Address,
			Role:        role,
			APIKeyHash:  auth.HashKey(pepper, u.APIKey),
		}); err != nil {
			return st, errors.Wrapf(err, "seed user %s", u.ID)
		}
		st.Users++
	}
	return st, nil
}
