package promotion

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// round2 rounds half away from zero to cents, which is half-up for the
// non-negative amounts the engine deals in.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// percentOf returns amount * pct / 100, unrounded.
func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// unitDiscount is the unrounded per-unit discount of a line rule.
func unitDiscount(p *Promotion, price decimal.Decimal) decimal.Decimal {
	switch p.DiscountType {
	case DiscountPercentage:
		return floorAtZero(percentOf(price, p.DiscountValue))
	case DiscountFixedAmount:
		return floorAtZero(decimal.Min(p.DiscountValue, price))
	default:
		return zero
	}
}

// subtotalDiscount is the rounded discount of an order-level rule, capped
// at the subtotal.
func subtotalDiscount(p *Promotion, subtotal decimal.Decimal) decimal.Decimal {
	switch p.DiscountType {
	case DiscountPercentage:
		return round2(decimal.Min(floorAtZero(percentOf(subtotal, p.DiscountValue)), subtotal))
	case DiscountFixedAmount:
		return round2(floorAtZero(decimal.Min(p.DiscountValue, subtotal)))
	default:
		return zero
	}
}

// byPriority returns pointers to promos sorted by scope priority ascending,
// then discount value descending. The id breaks remaining ties so the order
// never depends on input order.
func byPriority(promos []Promotion) []*Promotion {
	out := make([]*Promotion, len(promos))
	for i := range promos {
		out[i] = &promos[i]
	}
	slices.SortStableFunc(out, func(a, b *Promotion) int {
		if c := cmp.Compare(scopePriority(a.Scope), scopePriority(b.Scope)); c != 0 {
			return c
		}
		if c := b.DiscountValue.Cmp(a.DiscountValue); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
