package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/validation"
)

// Snapshot is the authoritative state of an item at resolution time.
type Snapshot struct {
	Ref   Ref
	Name  string
	Image string
	Price decimal.Decimal
	Stock int
}

// Request is a caller-supplied (reference, quantity) pair. Prices always come
// from the catalog.
type Request struct {
	Ref      Ref
	Quantity int
}

// LineItem is a priced item used for one pricing or stock decision.
type LineItem struct {
	Ref       Ref
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns unit price times quantity.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Accessor resolves references against the current catalog state.
type Accessor struct {
	repo Repository
}

// NewAccessor creates an Accessor backed by the given Repository.
func NewAccessor(repo Repository) *Accessor {
	return &Accessor{repo: repo}
}

// Resolve returns the current price, stock and name of the referenced item.
func (a *Accessor) Resolve(ctx context.Context, ref Ref) (*Snapshot, error) {
	switch ref.Kind {
	case KindProduct:
		p, err := a.repo.GetProduct(ctx, ref.ID)
		if err != nil {
			return nil, notFound(err, ref)
		}
		return &Snapshot{Ref: ref, Name: p.Name, Image: p.Image, Price: p.Price, Stock: p.Stock}, nil
	case KindPackage:
		pkg, err := a.repo.GetPackage(ctx, ref.ID)
		if err != nil {
			return nil, notFound(err, ref)
		}
		return &Snapshot{Ref: ref, Name: pkg.Name, Image: pkg.Image, Price: pkg.Price, Stock: pkg.Stock}, nil
	default:
		return nil, validation.Newf("kind", "unknown item kind %q", ref.Kind)
	}
}

// ResolveItems validates quantities and prices every request from the
// catalog, preserving request order.
func (a *Accessor) ResolveItems(ctx context.Context, reqs []Request) ([]LineItem, error) {
	items := make([]LineItem, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, validation.Newf("quantity", "quantity must be greater than 0 for %s %s", req.Ref.Kind, req.Ref.ID)
		}
		snap, err := a.Resolve(ctx, req.Ref)
		if err != nil {
			return nil, err
		}
		items = append(items, LineItem{
			Ref:       req.Ref,
			Name:      snap.Name,
			Quantity:  req.Quantity,
			UnitPrice: snap.Price,
		})
	}
	return items, nil
}

func notFound(err error, ref Ref) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Ref: ref}
	}
	return errors.Wrapf(err, "resolve %s", ref)
}
