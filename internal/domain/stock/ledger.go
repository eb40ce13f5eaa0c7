// Package stock keeps product and package inventory counters in lockstep.
//
// One package unit consumes one unit of the package's own stock and one unit
// of every included product. The Ledger expands package line items into their
// components for every check, deduction and restoration.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/catalog"
)

// InsufficientStockError reports the first resource found short.
type InsufficientStockError struct {
	Kind      catalog.Kind
	Name      string
	Available int
	// Package is the containing package name when an included product is
	// the limiting resource.
	Package string
}

func (e *InsufficientStockError) Error() string {
	switch {
	case e.Package != "":
		return fmt.Sprintf("not enough stock for included product: %s (in package %s). Available: %d", e.Name, e.Package, e.Available)
	case e.Kind == catalog.KindPackage:
		return fmt.Sprintf("not enough stock for package: %s. Available: %d", e.Name, e.Available)
	default:
		return fmt.Sprintf("not enough stock for product: %s. Available: %d", e.Name, e.Available)
	}
}

// Store applies conditional stock deltas. An adjustment succeeds only when
// the resulting stock stays non-negative; ok is false otherwise. A missing
// row is reported as catalog.ErrNotFound.
type Store interface {
	AdjustProductStock(ctx context.Context, id string, delta int) (ok bool, err error)
	AdjustPackageStock(ctx context.Context, id string, delta int) (ok bool, err error)
}

// Ledger checks and moves stock for line items.
type Ledger struct {
	catalog catalog.Repository
	store   Store
}

// NewLedger creates a Ledger reading current stock from cat and writing
// deltas through store.
func NewLedger(cat catalog.Repository, store Store) *Ledger {
	return &Ledger{catalog: cat, store: store}
}

// Available returns how many units of ref can currently be sold. For a
// package this is the minimum of its own stock and each included product's.
func (l *Ledger) Available(ctx context.Context, ref catalog.Ref) (int, error) {
	switch ref.Kind {
	case catalog.KindProduct:
		p, err := l.product(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		return p.Stock, nil
	case catalog.KindPackage:
		pkg, err := l.pkg(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		available := pkg.Stock
		for _, id := range pkg.IncludedProducts {
			p, err := l.catalog.GetProduct(ctx, id)
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			if err != nil {
				return 0, errors.Wrapf(err, "get product %s", id)
			}
			available = min(available, p.Stock)
		}
		return available, nil
	default:
		return 0, errors.Errorf("unknown item kind %q", ref.Kind)
	}
}

// CheckAvailability verifies every item can be fulfilled from current stock.
// Package stock is checked before the included products, which are scanned
// in stored order; the first shortfall is returned.
func (l *Ledger) CheckAvailability(ctx context.Context, items []catalog.LineItem) error {
	for _, item := range items {
		if err := l.check(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) check(ctx context.Context, item catalog.LineItem) error {
	switch item.Ref.Kind {
	case catalog.KindProduct:
		p, err := l.product(ctx, item.Ref.ID)
		if err != nil {
			return err
		}
		if p.Stock < item.Quantity {
			return &InsufficientStockError{Kind: catalog.KindProduct, Name: p.Name, Available: p.Stock}
		}
	case catalog.KindPackage:
		pkg, err := l.pkg(ctx, item.Ref.ID)
		if err != nil {
			return err
		}
		if pkg.Stock < item.Quantity {
			return &InsufficientStockError{Kind: catalog.KindPackage, Name: pkg.Name, Available: pkg.Stock}
		}
		for _, id := range pkg.IncludedProducts {
			p, err := l.catalog.GetProduct(ctx, id)
			if errors.Is(err, catalog.ErrNotFound) {
				zctx.From(ctx).Warn("Included product missing",
					zap.String("package_id", pkg.ID),
					zap.String("product_id", id),
				)
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "get product %s", id)
			}
			if p.Stock < item.Quantity {
				return &InsufficientStockError{
					Kind:      catalog.KindProduct,
					Name:      p.Name,
					Available: p.Stock,
					Package:   pkg.Name,
				}
			}
		}
	default:
		return errors.Errorf("unknown item kind %q", item.Ref.Kind)
	}
	return nil
}

// Reserve checks availability and deducts stock for items. Deductions are
// conditional, so a concurrent reservation that drained a counter after the
// check still yields InsufficientStockError. Callers must run Reserve inside
// a store transaction so that a failure leaves no partial deduction behind.
func (l *Ledger) Reserve(ctx context.Context, items []catalog.LineItem) error {
	if err := l.CheckAvailability(ctx, items); err != nil {
		return err
	}
	return l.Apply(ctx, items, -1)
}

// Restore returns stock for items unconditionally. Items that no longer
// exist in the catalog are skipped.
func (l *Ledger) Restore(ctx context.Context, items []catalog.LineItem) error {
	return l.Apply(ctx, items, +1)
}

// Apply moves stock by sign×quantity for every item, expanding packages into
// their included products. Negative moves fail with InsufficientStockError
// when a counter would drop below zero; positive moves skip missing rows.
func (l *Ledger) Apply(ctx context.Context, items []catalog.LineItem, sign int) error {
	if sign != 1 && sign != -1 {
		return errors.Errorf("invalid sign %d", sign)
	}
	lg := zctx.From(ctx)
	for _, item := range items {
		delta := sign * item.Quantity
		switch item.Ref.Kind {
		case catalog.KindProduct:
			if err := l.adjustProduct(ctx, item.Ref.ID, delta, ""); err != nil {
				if sign > 0 && errors.Is(err, catalog.ErrNotFound) {
					lg.Warn("Skip restore of missing product", zap.String("product_id", item.Ref.ID))
					continue
				}
				return err
			}
		case catalog.KindPackage:
			pkg, err := l.catalog.GetPackage(ctx, item.Ref.ID)
			if err != nil {
				if sign > 0 && errors.Is(err, catalog.ErrNotFound) {
					lg.Warn("Skip restore of missing package", zap.String("package_id", item.Ref.ID))
					continue
				}
				return notFound(err, item.Ref)
			}
			ok, err := l.store.AdjustPackageStock(ctx, pkg.ID, delta)
			if err != nil {
				return errors.Wrapf(err, "adjust package %s", pkg.ID)
			}
			if !ok {
				return l.shortage(ctx, item.Ref, "")
			}
			for _, id := range pkg.IncludedProducts {
				if err := l.adjustProduct(ctx, id, delta, pkg.Name); err != nil {
					if errors.Is(err, catalog.ErrNotFound) {
						lg.Warn("Skip missing included product",
							zap.String("package_id", pkg.ID),
							zap.String("product_id", id),
						)
						continue
					}
					return err
				}
			}
		default:
			return errors.Errorf("unknown item kind %q", item.Ref.Kind)
		}
	}
	return nil
}

func (l *Ledger) adjustProduct(ctx context.Context, id string, delta int, pkgName string) error {
	ok, err := l.store.AdjustProductStock(ctx, id, delta)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "adjust product %s", id)
	}
	if !ok {
		return l.shortage(ctx, catalog.ProductRef(id), pkgName)
	}
	return nil
}

// shortage builds an InsufficientStockError from the counter's current
// value after a conditional update was refused.
func (l *Ledger) shortage(ctx context.Context, ref catalog.Ref, pkgName string) error {
	e := &InsufficientStockError{Kind: ref.Kind, Name: ref.ID, Package: pkgName}
	switch ref.Kind {
	case catalog.KindProduct:
		if p, err := l.catalog.GetProduct(ctx, ref.ID); err == nil {
			e.Name, e.Available = p.Name, p.Stock
		}
	case catalog.KindPackage:
		if pkg, err := l.catalog.GetPackage(ctx, ref.ID); err == nil {
			e.Name, e.Available = pkg.Name, pkg.Stock
		}
	}
	return e
}

func (l *Ledger) product(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := l.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, catalog.ProductRef(id))
	}
	return p, nil
}

func (l *Ledger) pkg(ctx context.Context, id string) (*catalog.Package, error) {
	pkg, err := l.catalog.GetPackage(ctx, id)
	if err != nil {
		return nil, notFound(err, catalog.PackageRef(id))
	}
	return pkg, nil
}

func notFound(err error, ref catalog.Ref) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return &catalog.NotFoundError{Ref: ref}
	}
	return errors.Wrapf(err, "get %s", ref)
}
