package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a referenced product or package does not exist.
var ErrNotFound = errors.New("catalog item not found")

// Kind distinguishes the two sellable entity spaces.
type Kind string

const (
	KindProduct Kind = "product"
	KindPackage Kind = "package"
)

// Ref identifies a sellable item. Product and package identifiers live in
// different spaces, so an ID is only meaningful together with its Kind.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// ProductRef returns a reference to a product.
func ProductRef(id string) Ref { return Ref{Kind: KindProduct, ID: id} }

// PackageRef returns a reference to a package.
func PackageRef(id string) Ref { return Ref{Kind: KindPackage, ID: id} }

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

// NotFoundError indicates a referenced item does not exist.
type NotFoundError struct {
	Ref Ref
}

func (e *NotFoundError) Error() string {
	if e.Ref.Kind == KindPackage {
		return fmt.Sprintf("package not found: %s", e.Ref.ID)
	}
	return fmt.Sprintf("product not found: %s", e.Ref.ID)
}

// Is reports ErrNotFound equivalence.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Product is a standalone sellable item.
type Product struct {
	ID          string
	Name        string
	Description string
	Image       string
	Price       decimal.Decimal
	Stock       int
}

// Package is a bundle of products with its own stock counter. One package
// unit consumes one unit of its own stock and one unit of each included
// product's stock.
type Package struct {
	ID               string
	Name             string
	Description      string
	Image            string
	Price            decimal.Decimal
	Stock            int
	IncludedProducts []string
}

// Repository defines read operations for the catalog.
type Repository interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListPackages(ctx context.Context) ([]Package, error)
	GetPackage(ctx context.Context, id string) (*Package, error)
}
