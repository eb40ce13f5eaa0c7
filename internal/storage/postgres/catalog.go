package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

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

const productColumns = `id, name, description, image, price, stock`

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var p catalog.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image, &p.Price, &p.Stock); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns every product ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.s.q(ctx).Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		p, err := scanProduct(row)
		if err != nil {
			return catalog.Product{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// GetProduct returns a product or catalog.ErrNotFound.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	p, err := scanProduct(r.s.q(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return p, nil
}

const packageColumns = `id, name, description, image, price, stock, included_products`

func scanPackage(row pgx.Row) (*catalog.Package, error) {
	var p catalog.Package
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image, &p.Price, &p.Stock, &p.IncludedProducts); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPackages returns every package ordered by name.
func (r *CatalogRepository) ListPackages(ctx context.Context) ([]catalog.Package, error) {
	rows, err := r.s.q(ctx).Query(ctx, `SELECT `+packageColumns+` FROM packages ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query packages")
	}
	packages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Package, error) {
		p, err := scanPackage(row)
		if err != nil {
			return catalog.Package{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan packages")
	}
	return packages, nil
}

// GetPackage returns a package or catalog.ErrNotFound.
func (r *CatalogRepository) GetPackage(ctx context.Context, id string) (*catalog.Package, error) {
	p, err := scanPackage(r.s.q(ctx).QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get package %q", id)
	}
	return p, nil
}

// UpsertProduct inserts a product or replaces the stored one.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := r.s.q(ctx).Exec(ctx, `
		INSERT INTO products (id, name, description, image, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, image = EXCLUDED.image,
			price = EXCLUDED.price, stock = EXCLUDED.stock`,
		p.ID, p.Name, p.Description, p.Image, p.Price, p.Stock,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// UpsertPackage inserts a package or replaces the stored one.
func (r *CatalogRepository) UpsertPackage(ctx context.Context, p catalog.Package) error {
	included := p.IncludedProducts
	if included == nil {
		included = []string{}
	}
	_, err := r.s.q(ctx).Exec(ctx, `
		INSERT INTO packages (id, name, description, image, price, stock, included_products)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, image = EXCLUDED.image,
			price = EXCLUDED.price, stock = EXCLUDED.stock, included_products = EXCLUDED.included_products`,
		p.ID, p.Name, p.Description, p.Image, p.Price, p.Stock, included,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert package %q", p.ID)
	}
	return nil
}

// AdjustProductStock adds delta to a product's stock unless the result
// would be negative.
func (r *CatalogRepository) AdjustProductStock(ctx context.Context, id string, delta int) (bool, error) {
	return r.adjust(ctx, "products", id, delta)
}

// AdjustPackageStock adds delta to a package's own stock unless the result
// would be negative.
func (r *CatalogRepository) AdjustPackageStock(ctx context.Context, id string, delta int) (bool, error) {
	return r.adjust(ctx, "packages", id, delta)
}

// adjust runs a single conditional UPDATE so concurrent reservations cannot
// oversell. A zero row count is disambiguated into "missing" or "short".
func (r *CatalogRepository) adjust(ctx context.Context, table, id string, delta int) (bool, error) {
	q := r.s.q(ctx)
	tag, err := q.Exec(ctx, `UPDATE `+table+` SET stock = stock + $2 WHERE id = $1 AND stock + $2 >= 0`, id, delta)
	if err != nil {
		return false, errors.Wrapf(err, "update %s stock", table)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check %s row", table)
	}
	if !exists {
		return false, catalog.ErrNotFound
	}
	return false, nil
}
