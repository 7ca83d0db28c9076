package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gaurosa/storefront/internal/domain/catalog"
)

const (
	productColumns = `code, name, price, compare_at_price, main_category, subcategory, tags`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE is_active ORDER BY code`

	getProductByCodeSQL = `SELECT ` + productColumns + `
		FROM products WHERE code = $1 AND is_active`

	getProductsByCodesSQL = `SELECT ` + productColumns + `
		FROM products WHERE code = ANY($1) AND is_active`

	upsertProductSQL = `INSERT INTO products (code, name, price, compare_at_price, main_category, subcategory, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			compare_at_price = EXCLUDED.compare_at_price,
			main_category = EXCLUDED.main_category,
			subcategory = EXCLUDED.subcategory,
			tags = EXCLUDED.tags,
			is_active = TRUE,
			updated_at = now()`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all active products ordered by code.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByCode returns a single active product.
func (r *ProductRepository) GetByCode(ctx context.Context, code string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", code)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", code)
	}
	return &p, nil
}

// GetByCodes returns the active products matching any of the given codes.
func (r *ProductRepository) GetByCodes(ctx context.Context, codes []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByCodesSQL, codes)
	if err != nil {
		return nil, errors.Wrap(err, "get products by codes")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or replaces a product and marks it active.
func (r *ProductRepository) Upsert(ctx context.Context, p catalog.Product) error {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.Code, p.Name, p.Price, p.CompareAtPrice, p.MainCategory, p.Subcategory, tags,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.Code)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.Code, &p.Name, &p.Price, &p.CompareAtPrice,
		&p.MainCategory, &p.Subcategory, &p.Tags,
	)
	return p, err
}
