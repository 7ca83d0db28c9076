package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item as stored, before any promotion is applied.
type Product struct {
	Code           string
	Name           string
	Price          decimal.Decimal
	CompareAtPrice *decimal.Decimal
	MainCategory   string
	Subcategory    string
	Tags           []string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByCode(ctx context.Context, code string) (*Product, error)
	GetByCodes(ctx context.Context, codes []string) ([]Product, error)
}
