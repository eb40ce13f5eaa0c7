package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/webstore/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository.
type CouponRepository struct {
	s *Store
}

func findCode(st *state, code string) (string, bool) {
	for id, c := range st.coupons {
		if c.Code == code {
			return id, true
		}
	}
	return "", false
}

// FindByCode looks a coupon up by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var out coupon.Coupon
	err := r.s.view(ctx, func(st *state) error {
		id, ok := findCode(st, code)
		if !ok {
			return coupon.ErrCouponNotFound
		}
		out = cloneCoupon(st.coupons[id])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a coupon by ID.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	var out coupon.Coupon
	err := r.s.view(ctx, func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return coupon.ErrCouponNotFound
		}
		out = cloneCoupon(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every coupon, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	err := r.s.view(ctx, func(st *state) error {
		out = make([]coupon.Coupon, 0, len(st.coupons))
		for _, c := range st.coupons {
			out = append(out, cloneCoupon(c))
		}
		return nil
	})
	slices.SortFunc(out, func(a, b coupon.Coupon) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.Code, b.Code))
	})
	return out, err
}

// Create stores a new coupon. Codes are unique.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := findCode(st, c.Code); ok {
			return coupon.ErrDuplicateCode
		}
		st.coupons[c.ID] = cloneCoupon(*c)
		return nil
	})
}

// Update replaces the mutable fields of a stored coupon. The stored usage
// counter wins over the caller's copy.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	return r.s.view(ctx, func(st *state) error {
		cur, ok := st.coupons[c.ID]
		if !ok {
			return coupon.ErrCouponNotFound
		}
		if id, ok := findCode(st, c.Code); ok && id != c.ID {
			return coupon.ErrDuplicateCode
		}
		next := cloneCoupon(*c)
		next.UsedCount = cur.UsedCount
		st.coupons[c.ID] = next
		return nil
	})
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.coupons[id]; !ok {
			return coupon.ErrCouponNotFound
		}
		delete(st.coupons, id)
		return nil
	})
}

// IncrementUsage bumps the usage counter unless the coupon is at its cap.
// Inactive coupons yield coupon.ErrCouponInactive.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	var applied bool
	err := r.s.view(ctx, func(st *state) error {
		id, ok := findCode(st, code)
		if !ok {
			return coupon.ErrCouponNotFound
		}
		c := st.coupons[id]
		if !c.IsActive {
			return coupon.ErrCouponInactive
		}
		if c.MaxUsage != nil && c.UsedCount >= *c.MaxUsage {
			return nil
		}
		c.UsedCount++
		st.coupons[id] = c
		applied = true
		return nil
	})
	return applied, err
}
