package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/webstore/internal/domain/catalog"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	views := make([]productView, len(products))
	for i := range products {
		views[i] = newProductView(&products[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, catalogErr(err, catalog.ProductRef(id)))
		return
	}
	writeJSON(w, http.StatusOK, newProductView(p))
}

func (h *Handler) listPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalog.ListPackages(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list packages"))
		return
	}
	views := make([]packageView, len(packages))
	for i := range packages {
		v, err := h.packageView(r.Context(), &packages[i])
		if err != nil {
			writeError(w, r, err)
			return
		}
		views[i] = v
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) getPackage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pkg, err := h.catalog.GetPackage(r.Context(), id)
	if err != nil {
		writeError(w, r, catalogErr(err, catalog.PackageRef(id)))
		return
	}
	v, err := h.packageView(r.Context(), pkg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// packageView summarises the included products. Products removed from the
// catalog are left out.
func (h *Handler) packageView(ctx context.Context, pkg *catalog.Package) (packageView, error) {
	v := packageView{
		ID:               pkg.ID,
		Name:             pkg.Name,
		Description:      pkg.Description,
		Image:            pkg.Image,
		Price:            Money(pkg.Price),
		Stock:            pkg.Stock,
		IncludedProducts: make([]includedProductView, 0, len(pkg.IncludedProducts)),
	}
	for _, id := range pkg.IncludedProducts {
		p, err := h.catalog.GetProduct(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return packageView{}, errors.Wrapf(err, "get included product %s", id)
		}
		v.IncludedProducts = append(v.IncludedProducts, includedProductView{
			ID:    p.ID,
			Name:  p.Name,
			Image: p.Image,
			Price: Money(p.Price),
		})
	}
	return v, nil
}

func catalogErr(err error, ref catalog.Ref) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return &catalog.NotFoundError{Ref: ref}
	}
	return errors.Wrapf(err, "get %s", ref)
}
