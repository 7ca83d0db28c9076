package promotion

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// bundleSize is the number of qualifying units that completes a bundle.
const bundleSize = 3

// CartLine is one line of the cart under evaluation.
type CartLine struct {
	ProductCode string
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int
	Category    string
	Subcategory string
	Tags        []string
}

func (l CartLine) target() Target {
	return Target{
		ProductCode:  l.ProductCode,
		MainCategory: l.Category,
		Subcategory:  l.Subcategory,
		Tags:         l.Tags,
	}
}

func (l CartLine) displayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ProductCode
}

// Cart is the input of EvaluateCart. Subtotal is computed by the caller.
type Cart struct {
	Lines      []CartLine
	Subtotal   decimal.Decimal
	CouponCode string
}

// Applied describes a promotion that contributed to the result.
type Applied struct {
	ID       int64
	Name     string
	Kind     Kind
	Badge    string
	Message  string
	Discount decimal.Decimal
	// CouponCode is set when the customer's code unlocked the promotion.
	CouponCode string
}

// BundleInfo reports bundle progress, including when the bundle is not yet
// complete, so the cart can suggest adding another item.
type BundleInfo struct {
	PromotionID       int64
	PromotionName     string
	FreePercent       decimal.Decimal
	ItemsInCart       int
	ItemsNeeded       int
	GroupsActive      int
	CheapestName      string
	CheapestPrice     *decimal.Decimal
	DiscountApplied   decimal.Decimal
	PotentialDiscount decimal.Decimal
	Badge             string
	Message           string
}

// Result is the outcome of a cart evaluation. It is never persisted.
type Result struct {
	Discount      decimal.Decimal
	DiscountLabel string
	FinalTotal    decimal.Decimal
	Applied       []Applied
	// CouponValid and CouponError are nil when no coupon was supplied.
	CouponValid *bool
	CouponError *string
	Bundle      *BundleInfo
}

// Redeemed returns the ids of the applied promotions unlocked by the
// customer's code. Each of them uses up one redemption when the order is
// placed.
func (r *Result) Redeemed() []int64 {
	var ids []int64
	for _, a := range r.Applied {
		if a.CouponCode != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Unmodified returns the result of a cart no promotion applies to.
func Unmodified(subtotal decimal.Decimal) Result {
	return Result{
		Discount:   zero,
		FinalTotal: round2(floorAtZero(subtotal)),
	}
}

// EvaluateCart computes the automatic discounts and the optional coupon
// discount of a cart.
//
// Automatic rules are evaluated in tiers. Each line is discounted by at most
// one line rule (the first matching in priority order). The bundle tier only
// counts units of lines no line rule discounted, and at most one bundle and
// one cart threshold rule apply. The total discount never exceeds the
// subtotal.
func EvaluateCart(cart Cart, promos []Promotion, now time.Time) (Result, error) {
	if cart.Subtotal.IsNegative() {
		return Result{}, ErrInvalidSubtotal
	}

	code := NormalizeCoupon(cart.CouponCode)

	var (
		lineRules, bundleRules, thresholdRules, couponRules []*Promotion
		// gated is set when the code unlocked an automatic rule, exhausted
		// when it matched one whose usage cap was reached.
		gated, exhausted bool
	)
	for _, p := range byPriority(promos) {
		if p.Kind == KindCoupon {
			couponRules = append(couponRules, p)
			continue
		}
		if !Eligible(p, now) {
			continue
		}
		if p.CouponCode != "" {
			if NormalizeCoupon(p.CouponCode) != code {
				continue
			}
			if p.UsageExhausted() {
				exhausted = true
				continue
			}
			gated = true
		}
		switch p.Kind {
		case KindPercentage, KindFixedAmount, KindFlashSale:
			lineRules = append(lineRules, p)
		case KindBundle:
			bundleRules = append(bundleRules, p)
		case KindCartThreshold:
			thresholdRules = append(thresholdRules, p)
		}
	}

	var res Result

	lineApplied, claimed := applyLineRules(cart.Lines, lineRules)
	res.Applied = append(res.Applied, lineApplied...)

	if bundle, info := applyBundle(cart.Lines, claimed, bundleRules); info != nil {
		res.Bundle = info
		if bundle != nil {
			res.Applied = append(res.Applied, *bundle)
		}
	}

	if threshold := applyThreshold(cart.Subtotal, thresholdRules); threshold != nil {
		res.Applied = append(res.Applied, *threshold)
	}

	if code != "" {
		coupon, errMsg := applyCoupon(code, cart.Subtotal, couponRules, now)
		if coupon != nil {
			res.Applied = append(res.Applied, *coupon)
		}
		valid := coupon != nil || unlocked(res.Applied)
		res.CouponValid = &valid
		if !valid {
			if errMsg == MsgCouponInvalid {
				switch {
				case gated:
					errMsg = MsgCouponNotApplicable
				case exhausted:
					errMsg = MsgCouponExhausted
				}
			}
			res.CouponError = &errMsg
		}
	}

	total := zero
	for _, a := range res.Applied {
		total = total.Add(a.Discount)
	}
	total = decimal.Min(total, cart.Subtotal)

	res.Discount = round2(total)
	res.FinalTotal = round2(floorAtZero(cart.Subtotal.Sub(total)))
	res.DiscountLabel = label(res.Applied)
	return res, nil
}

// applyLineRules assigns each line to the first rule that discounts it and
// returns the per-rule totals together with the lines that were claimed.
func applyLineRules(lines []CartLine, rules []*Promotion) ([]Applied, []bool) {
	claimed := make([]bool, len(lines))
	amounts := make([]decimal.Decimal, len(rules))

	for i, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		t := line.target()
		qty := decimal.NewFromInt(int64(line.Quantity))
		for j, p := range rules {
			if !scopeMatches(p.Scope, t) {
				continue
			}
			d := round2(unitDiscount(p, line.UnitPrice).Mul(qty))
			if !d.IsPositive() {
				continue
			}
			amounts[j] = amounts[j].Add(d)
			claimed[i] = true
			break
		}
	}

	var out []Applied
	for j, p := range rules {
		if amounts[j].IsPositive() {
			out = append(out, appliedFrom(p, amounts[j]))
		}
	}
	return out, claimed
}

type bundleUnit struct {
	price decimal.Decimal
	name  string
}

// applyBundle evaluates the bundle rules against the unclaimed lines. The
// first rule with a complete bundle wins; otherwise progress is reported for
// the first rule that has qualifying units, or the first rule at all.
func applyBundle(lines []CartLine, claimed []bool, rules []*Promotion) (*Applied, *BundleInfo) {
	var fallback *BundleInfo
	for _, p := range rules {
		units := bundleUnits(lines, claimed, p)
		info := bundleInfo(p, units)

		if len(units) >= bundleSize {
			if !info.DiscountApplied.IsPositive() {
				return nil, info
			}
			a := appliedFrom(p, info.DiscountApplied)
			return &a, info
		}
		if fallback == nil || (fallback.ItemsInCart == 0 && len(units) > 0) {
			fallback = info
		}
	}
	return nil, fallback
}

func bundleUnits(lines []CartLine, claimed []bool, p *Promotion) []bundleUnit {
	var units []bundleUnit
	for i, line := range lines {
		if claimed[i] || !scopeMatches(p.Scope, line.target()) {
			continue
		}
		for range line.Quantity {
			units = append(units, bundleUnit{price: line.UnitPrice, name: line.displayName()})
		}
	}
	slices.SortStableFunc(units, func(a, b bundleUnit) int {
		return a.price.Cmp(b.price)
	})
	return units
}

func bundleInfo(p *Promotion, units []bundleUnit) *BundleInfo {
	freePercent := hundred
	if p.BundleFreePercent != nil {
		freePercent = *p.BundleFreePercent
	}

	info := &BundleInfo{
		PromotionID:       p.ID,
		PromotionName:     p.Name,
		FreePercent:       freePercent,
		ItemsInCart:       len(units),
		ItemsNeeded:       max(0, bundleSize-len(units)),
		DiscountApplied:   zero,
		PotentialDiscount: zero,
		Badge:             p.Badge,
		Message:           p.Message,
	}
	if len(units) == 0 {
		return info
	}

	cheapest := units[0]
	price := cheapest.price
	info.CheapestName = cheapest.name
	info.CheapestPrice = &price

	discount := round2(floorAtZero(percentOf(cheapest.price, freePercent)))
	if info.ItemsNeeded == 0 {
		info.GroupsActive = 1
		info.DiscountApplied = discount
	} else {
		info.PotentialDiscount = discount
	}
	return info
}

func applyThreshold(subtotal decimal.Decimal, rules []*Promotion) *Applied {
	for _, p := range rules {
		minAmount := zero
		if p.CartMinAmount != nil {
			minAmount = *p.CartMinAmount
		}
		if subtotal.LessThan(minAmount) {
			continue
		}
		if d := subtotalDiscount(p, subtotal); d.IsPositive() {
			a := appliedFrom(p, d)
			return &a
		}
	}
	return nil
}

// applyCoupon looks up code among the coupon rules. On failure it returns
// the message to show the customer.
func applyCoupon(code string, subtotal decimal.Decimal, rules []*Promotion, now time.Time) (*Applied, string) {
	idx := slices.IndexFunc(rules, func(p *Promotion) bool {
		return NormalizeCoupon(p.CouponCode) == code && Eligible(p, now)
	})
	if idx < 0 {
		return nil, MsgCouponInvalid
	}

	p := rules[idx]
	if p.UsageExhausted() {
		return nil, MsgCouponExhausted
	}

	a := appliedFrom(p, subtotalDiscount(p, subtotal))
	return &a, ""
}

// unlocked reports whether an automatic rule gated behind the code applied.
func unlocked(applied []Applied) bool {
	return slices.ContainsFunc(applied, func(a Applied) bool {
		return a.Kind != KindCoupon && a.CouponCode != ""
	})
}

func appliedFrom(p *Promotion, discount decimal.Decimal) Applied {
	return Applied{
		ID:         p.ID,
		Name:       p.Name,
		Kind:       p.Kind,
		Badge:      p.Badge,
		Message:    p.Message,
		Discount:   discount,
		CouponCode: NormalizeCoupon(p.CouponCode),
	}
}

func label(applied []Applied) string {
	switch len(applied) {
	case 0:
		return ""
	case 1:
		return cmp.Or(applied[0].Badge, applied[0].Name)
	default:
		return strconv.Itoa(len(applied)) + " promozioni applicate"
	}
}
