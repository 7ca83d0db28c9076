package promotion

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// LineInput describes a single product being priced for display.
type LineInput struct {
	BasePrice    decimal.Decimal
	ProductCode  string
	MainCategory string
	Subcategory  string
	Tags         []string
	// CompareAt is the compare-at price already stored on the product, if any.
	CompareAt *decimal.Decimal
}

// LinePrice is the displayed price of a product after promotions.
type LinePrice struct {
	Price     decimal.Decimal
	CompareAt *decimal.Decimal
	// Badge is empty when no promotion applied.
	Badge       string
	PromotionID int64
}

// Discounted reports whether a promotion lowered the price.
func (p LinePrice) Discounted() bool {
	return p.Badge != ""
}

// EvaluateLine prices a single product. Candidates are tried in priority
// order and the first one whose scope matches and which actually lowers the
// price wins, even when a later candidate would discount more.
func EvaluateLine(in LineInput, promos []Promotion, now time.Time) LinePrice {
	target := Target{
		ProductCode:  in.ProductCode,
		MainCategory: in.MainCategory,
		Subcategory:  in.Subcategory,
		Tags:         in.Tags,
	}

	for _, p := range byPriority(promos) {
		if !slices.Contains(LineKinds, p.Kind) || p.CouponCode != "" || !Eligible(p, now) {
			continue
		}
		if !scopeMatches(p.Scope, target) {
			continue
		}

		discounted := discountedPrice(p, in.BasePrice)
		if !discounted.LessThan(in.BasePrice) {
			continue
		}

		base := in.BasePrice
		return LinePrice{
			Price:       discounted,
			CompareAt:   &base,
			Badge:       badgeFor(p),
			PromotionID: p.ID,
		}
	}

	return LinePrice{
		Price:     in.BasePrice,
		CompareAt: in.CompareAt,
	}
}

func discountedPrice(p *Promotion, base decimal.Decimal) decimal.Decimal {
	switch p.DiscountType {
	case DiscountPercentage:
		factor := decimal.NewFromInt(1).Sub(p.DiscountValue.Div(hundred))
		return floorAtZero(round2(base.Mul(factor)))
	case DiscountFixedAmount:
		return floorAtZero(round2(base.Sub(p.DiscountValue)))
	default:
		return base
	}
}

// badgeFor returns the promotion's own badge or derives one from its value,
// e.g. "-20%" or "-€15".
func badgeFor(p *Promotion) string {
	if p.Badge != "" {
		return p.Badge
	}
	if p.DiscountType == DiscountFixedAmount {
		return "-€" + p.DiscountValue.Round(0).String()
	}
	return "-" + p.DiscountValue.String() + "%"
}
