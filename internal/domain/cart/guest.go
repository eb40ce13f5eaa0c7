package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/pricing"
	"github.com/xenking/webstore/internal/domain/validation"
)

// Guest carts live on the client. The server only validates and prices the
// items the client sends.

// GuestCalculate validates quantities against stock and prices the items.
// Coupon problems do not fail the preview; the quote reports them instead.
func (s *Service) GuestCalculate(ctx context.Context, reqs []catalog.Request, code string) (*pricing.Quote, error) {
	items := make([]catalog.LineItem, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, validation.Newf("quantity", "quantity must be greater than 0 for %s %s", req.Ref.Kind, req.Ref.ID)
		}
		snap, err := s.catalog.Resolve(ctx, req.Ref)
		if err != nil {
			return nil, err
		}
		if err := s.ensureStock(ctx, snap, req.Quantity); err != nil {
			return nil, err
		}
		items = append(items, catalog.LineItem{
			Ref:       req.Ref,
			Name:      snap.Name,
			Quantity:  req.Quantity,
			UnitPrice: snap.Price,
		})
	}

	q, err := s.pricing.Price(ctx, items, code, pricing.Preview)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	return q, nil
}

// GuestView hydrates client-held items. Items that no longer exist are
// skipped; a missing quantity counts as one unit.
func (s *Service) GuestView(ctx context.Context, reqs []catalog.Request) ([]catalog.LineItem, []Line, error) {
	lines := make([]Line, 0, len(reqs))
	priced := make([]catalog.LineItem, 0, len(reqs))
	for _, req := range reqs {
		snap, err := s.catalog.Resolve(ctx, req.Ref)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		qty := max(req.Quantity, 1)
		lines = append(lines, Line{Snapshot: *snap, Quantity: qty})
		priced = append(priced, catalog.LineItem{
			Ref:       req.Ref,
			Name:      snap.Name,
			Quantity:  qty,
			UnitPrice: snap.Price,
		})
	}
	return priced, lines, nil
}

// GuestAdd validates adding quantity units of ref and returns the line the
// client should store. A zero quantity means one unit.
func (s *Service) GuestAdd(ctx context.Context, ref catalog.Ref, quantity int) (*Line, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, validation.New("quantity", "quantity must be greater than 0")
	}
	snap, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.ensureStock(ctx, snap, quantity); err != nil {
		return nil, err
	}
	return &Line{Snapshot: *snap, Quantity: quantity}, nil
}

// GuestUpdateQuantity validates an absolute quantity for ref.
func (s *Service) GuestUpdateQuantity(ctx context.Context, ref catalog.Ref, quantity int) (*Line, error) {
	if quantity < 1 {
		return nil, validation.New("quantity", "quantity can't go lower than one")
	}
	snap, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.ensureStock(ctx, snap, quantity); err != nil {
		return nil, err
	}
	return &Line{Snapshot: *snap, Quantity: quantity}, nil
}

// GuestApplyCoupon checks code against the client's items and returns the
// estimated discount. Unlike the preview, every coupon failure is returned.
// Items that no longer exist are ignored.
func (s *Service) GuestApplyCoupon(ctx context.Context, code string, reqs []catalog.Request) (*pricing.Quote, error) {
	if coupon.NormalizeCode(code) == "" {
		return nil, validation.New("code", "coupon code is required")
	}
	items, _, err := s.GuestView(ctx, reqs)
	if err != nil {
		return nil, err
	}
	return s.pricing.Price(ctx, items, code, pricing.Checkout)
}
