// Package cart implements the registered-user cart and the stateless guest
// cart helpers. Both price through the shared pricing engine.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/pricing"
	"github.com/xenking/webstore/internal/domain/stock"
	"github.com/xenking/webstore/internal/domain/validation"
)

// StockChecker reports how many units of an item can be sold.
type StockChecker interface {
	Available(ctx context.Context, ref catalog.Ref) (int, error)
}

// Line is a hydrated cart line.
type Line struct {
	catalog.Snapshot
	Quantity int
}

// View is a priced cart.
type View struct {
	Cart  *Cart
	Lines []Line
	Quote *pricing.Quote
}

// UpdateResult is the outcome of a quantity change.
type UpdateResult struct {
	Cart *Cart
	// Clamped is set when the requested quantity exceeded stock and was
	// lowered to the available amount.
	Clamped bool
}

// Service implements cart operations.
type Service struct {
	carts   Repository
	catalog *catalog.Accessor
	pricing *pricing.Engine
	stock   StockChecker
	coupons pricing.CouponFinder
}

// NewService creates a cart Service.
func NewService(
	carts Repository,
	cat *catalog.Accessor,
	engine *pricing.Engine,
	stockChecker StockChecker,
	coupons pricing.CouponFinder,
) *Service {
	return &Service{
		carts:   carts,
		catalog: cat,
		pricing: engine,
		stock:   stockChecker,
		coupons: coupons,
	}
}

// View prices the user's cart. Lines whose catalog item vanished are left
// out. A coupon that no longer applies is detached from the stored cart.
func (s *Service) View(ctx context.Context, userID string) (*View, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	lines, items, err := s.hydrate(ctx, c.Items)
	if err != nil {
		return nil, err
	}

	q, err := s.pricing.Price(ctx, items, c.CouponCode, pricing.Preview)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	if q.Detached {
		zctx.From(ctx).Info("Detaching stale coupon",
			zap.String("user_id", userID),
			zap.String("coupon", c.CouponCode),
			zap.NamedError("reason", q.DetachReason),
		)
		c.CouponCode = ""
		if err := s.carts.Save(ctx, c); err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
	}

	return &View{Cart: c, Lines: lines, Quote: q}, nil
}

// AddItem adds quantity units of ref, merging with an existing line. A zero
// quantity means one unit. The merged quantity must not exceed stock.
func (s *Service) AddItem(ctx context.Context, userID string, ref catalog.Ref, quantity int) (*Cart, error) {
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

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	idx := c.Find(ref)
	total := quantity
	if idx >= 0 {
		total += c.Items[idx].Quantity
	}
	if err := s.ensureStock(ctx, snap, total); err != nil {
		return nil, err
	}

	if idx >= 0 {
		c.Items[idx].Quantity = total
	} else {
		c.Items = append(c.Items, Item{Ref: ref, Quantity: quantity})
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// UpdateQuantity changes a line by delta. The result must stay at least one;
// a result above available stock is lowered to the stock.
func (s *Service) UpdateQuantity(ctx context.Context, userID string, ref catalog.Ref, delta int) (*UpdateResult, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	idx := c.Find(ref)
	if idx < 0 {
		return nil, ErrItemNotInCart
	}

	qty := c.Items[idx].Quantity + delta
	if qty < 1 {
		return nil, validation.New("quantity", "quantity can't go lower than one")
	}

	snap, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	available, err := s.stock.Available(ctx, ref)
	if err != nil {
		return nil, errors.Wrap(err, "check stock")
	}

	res := &UpdateResult{Cart: c}
	if qty > available {
		if available < 1 {
			return nil, &stock.InsufficientStockError{Kind: ref.Kind, Name: snap.Name, Available: available}
		}
		qty = available
		res.Clamped = true
	}

	c.Items[idx].Quantity = qty
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return res, nil
}

// RemoveItem drops ref from the cart. Removing an absent item is not an error.
func (s *Service) RemoveItem(ctx context.Context, userID string, ref catalog.Ref) (*Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if idx := c.Find(ref); idx >= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		if err := s.carts.Save(ctx, c); err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
	}
	return c, nil
}

// Clear empties the cart. The attached coupon stays.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	c.Items = nil
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// ApplyCoupon attaches code to the cart after checking the coupon exists,
// is active and has uses left. Applicability is checked when pricing.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) error {
	code = coupon.NormalizeCode(code)
	if code == "" {
		return validation.New("code", "coupon code is required")
	}
	cp, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := cp.Check(); err != nil {
		return err
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	c.CouponCode = cp.Code
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// RemoveCoupon detaches the cart coupon.
func (s *Service) RemoveCoupon(ctx context.Context, userID string) error {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	c.CouponCode = ""
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

func (s *Service) hydrate(ctx context.Context, items []Item) ([]Line, []catalog.LineItem, error) {
	lines := make([]Line, 0, len(items))
	priced := make([]catalog.LineItem, 0, len(items))
	for _, it := range items {
		snap, err := s.catalog.Resolve(ctx, it.Ref)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, Line{Snapshot: *snap, Quantity: it.Quantity})
		priced = append(priced, catalog.LineItem{
			Ref:       it.Ref,
			Name:      snap.Name,
			Quantity:  it.Quantity,
			UnitPrice: snap.Price,
		})
	}
	return lines, priced, nil
}

func (s *Service) ensureStock(ctx context.Context, snap *catalog.Snapshot, quantity int) error {
	available, err := s.stock.Available(ctx, snap.Ref)
	if err != nil {
		return errors.Wrap(err, "check stock")
	}
	if quantity > available {
		return &stock.InsufficientStockError{Kind: snap.Ref.Kind, Name: snap.Name, Available: available}
	}
	return nil
}
