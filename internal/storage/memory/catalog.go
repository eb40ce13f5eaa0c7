package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/stock"
)

var (
	_ catalog.Repository = (*CatalogRepository)(nil)
	_ stock.Store        = (*CatalogRepository)(nil)
)

// CatalogRepository implements catalog.Repository and stock.Store.
type CatalogRepository struct {
	s *Store
}

// UpsertProduct inserts or replaces a product.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p catalog.Product) error {
	return r.s.view(ctx, func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// UpsertPackage inserts or replaces a package.
func (r *CatalogRepository) UpsertPackage(ctx context.Context, p catalog.Package) error {
	return r.s.view(ctx, func(st *state) error {
		st.packages[p.ID] = clonePackage(p)
		return nil
	})
}

// ListProducts returns every product ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	var out []catalog.Product
	err := r.s.view(ctx, func(st *state) error {
		out = make([]catalog.Product, 0, len(st.products))
		for _, p := range st.products {
			out = append(out, p)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b catalog.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, err
}

// GetProduct returns a product or catalog.ErrNotFound.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	var out catalog.Product
	err := r.s.view(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return catalog.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPackages returns every package ordered by name.
func (r *CatalogRepository) ListPackages(ctx context.Context) ([]catalog.Package, error) {
	var out []catalog.Package
	err := r.s.view(ctx, func(st *state) error {
		out = make([]catalog.Package, 0, len(st.packages))
		for _, p := range st.packages {
			out = append(out, clonePackage(p))
		}
		return nil
	})
	slices.SortFunc(out, func(a, b catalog.Package) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, err
}

// GetPackage returns a package or catalog.ErrNotFound.
func (r *CatalogRepository) GetPackage(ctx context.Context, id string) (*catalog.Package, error) {
	var out catalog.Package
	err := r.s.view(ctx, func(st *state) error {
		p, ok := st.packages[id]
		if !ok {
			return catalog.ErrNotFound
		}
		out = clonePackage(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AdjustProductStock adds delta to a product's stock unless the result
// would be negative.
func (r *CatalogRepository) AdjustProductStock(ctx context.Context, id string, delta int) (bool, error) {
	var ok bool
	err := r.s.view(ctx, func(st *state) error {
		p, found := st.products[id]
		if !found {
			return catalog.ErrNotFound
		}
		if p.Stock+delta < 0 {
			return nil
		}
		p.Stock += delta
		st.products[id] = p
		ok = true
		return nil
	})
	return ok, err
}

// AdjustPackageStock adds delta to a package's own stock unless the result
// would be negative.
func (r *CatalogRepository) AdjustPackageStock(ctx context.Context, id string, delta int) (bool, error) {
	var ok bool
	err := r.s.view(ctx, func(st *state) error {
		p, found := st.packages[id]
		if !found {
			return catalog.ErrNotFound
		}
		if p.Stock+delta < 0 {
			return nil
		}
		p.Stock += delta
		st.packages[id] = p
		ok = true
		return nil
	})
	return ok, err
}
