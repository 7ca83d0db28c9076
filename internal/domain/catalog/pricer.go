package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// Promotions provides the line promotions active at a given time.
// *promotion.Service satisfies it.
type Promotions interface {
	Now() time.Time
	LinePromotions(ctx context.Context, now time.Time) []promotion.Promotion
}

// PricedProduct is a product with its displayed, promotion-adjusted price.
type PricedProduct struct {
	Product
	// BasePrice is the stored price before promotions.
	BasePrice   decimal.Decimal
	Badge       string
	PromotionID int64
}

// Pricer applies line promotions to catalog products.
type Pricer struct {
	products   Repository
	promotions Promotions
}

// NewPricer creates a Pricer.
func NewPricer(products Repository, promotions Promotions) *Pricer {
	return &Pricer{products: products, promotions: promotions}
}

// Price returns a single product priced against the active promotions.
func (p *Pricer) Price(ctx context.Context, code string) (*PricedProduct, error) {
	prod, err := p.products.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	now := p.promotions.Now()
	priced := apply(*prod, p.promotions.LinePromotions(ctx, now), now)
	return &priced, nil
}

// List returns every catalog product priced against a single snapshot of
// the active promotions. Products and promotions are loaded concurrently.
func (p *Pricer) List(ctx context.Context) ([]PricedProduct, error) {
	now := p.promotions.Now()

	var (
		products []Product
		promos   []promotion.Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = p.products.List(gctx)
		return err
	})
	g.Go(func() error {
		promos = p.promotions.LinePromotions(gctx, now)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]PricedProduct, len(products))
	for i, prod := range products {
		out[i] = apply(prod, promos, now)
	}
	return out, nil
}

func apply(prod Product, promos []promotion.Promotion, now time.Time) PricedProduct {
	lp := promotion.EvaluateLine(promotion.LineInput{
		BasePrice:    prod.Price,
		ProductCode:  prod.Code,
		MainCategory: prod.MainCategory,
		Subcategory:  prod.Subcategory,
		Tags:         prod.Tags,
		CompareAt:    prod.CompareAtPrice,
	}, promos, now)

	priced := PricedProduct{
		Product:     prod,
		BasePrice:   prod.Price,
		Badge:       lp.Badge,
		PromotionID: lp.PromotionID,
	}
	priced.Price = lp.Price
	priced.CompareAtPrice = lp.CompareAt
	return priced
}
