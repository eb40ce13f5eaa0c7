package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	s *Store
}

const couponColumns = `id, code, discount_percentage, max_usage, max_discount_value, used_count,
	applicable_products, applicable_packages, is_active, created_at`

func scanCoupon(row pgx.Row) (*coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		maxDiscount decimal.NullDecimal
	)
	if err := row.Scan(
		&c.ID, &c.Code, &c.DiscountPercentage, &c.MaxUsage, &maxDiscount, &c.UsedCount,
		&c.ApplicableProducts, &c.ApplicablePackages, &c.IsActive, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	if maxDiscount.Valid {
		c.MaxDiscountValue = &maxDiscount.Decimal
	}
	return &c, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// FindByCode looks a coupon up by its normalized code. Returns
// coupon.ErrCouponNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	c, err := scanCoupon(r.s.q(ctx).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, errors.Wrapf(err, "find coupon by code %q", code)
	}
	return c, nil
}

// Get returns a coupon by ID.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	c, err := scanCoupon(r.s.q(ctx).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, errors.Wrapf(err, "get coupon %q", id)
	}
	return c, nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.s.q(ctx).Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, errors.Wrap(err, "query coupons")
	}
	coupons, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Coupon, error) {
		c, err := scanCoupon(row)
		if err != nil {
			return coupon.Coupon{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}
	return coupons, nil
}

// Create inserts a coupon. A taken code yields coupon.ErrDuplicateCode.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.s.q(ctx).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Code, c.DiscountPercentage, c.MaxUsage, nullDecimal(c.MaxDiscountValue), c.UsedCount,
		nonNil(c.ApplicableProducts), nonNil(c.ApplicablePackages), c.IsActive, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update replaces the mutable fields of a coupon. The usage counter is left
// alone so a concurrent redemption is never lost.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.s.q(ctx).Exec(ctx, `
		UPDATE coupons SET
			code = $2, discount_percentage = $3, max_usage = $4, max_discount_value = $5,
			applicable_products = $6, applicable_packages = $7, is_active = $8
		WHERE id = $1`,
		c.ID, c.Code, c.DiscountPercentage, c.MaxUsage, nullDecimal(c.MaxDiscountValue),
		nonNil(c.ApplicableProducts), nonNil(c.ApplicablePackages), c.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "update coupon %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

// Delete removes a coupon. Orders keep their own code and amount snapshot.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.s.q(ctx).Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

// IncrementUsage bumps used_count in one conditional statement, refusing
// once the coupon has reached max_usage. Inactive coupons yield
// coupon.ErrCouponInactive.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	q := r.s.q(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND is_active AND (max_usage IS NULL OR used_count < max_usage)`, code)
	if err != nil {
		return false, errors.Wrapf(err, "increment coupon usage %q", code)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var active bool
	err = q.QueryRow(ctx, `SELECT is_active FROM coupons WHERE code = $1`, code).Scan(&active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, coupon.ErrCouponNotFound
	case err != nil:
		return false, errors.Wrap(err, "check coupon row")
	case !active:
		return false, coupon.ErrCouponInactive
	}
	return false, nil
}
