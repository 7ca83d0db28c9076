package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the promotion rule types.
type Kind string

const (
	// KindPercentage discounts matching lines by a percentage.
	KindPercentage Kind = "percentage"
	// KindFixedAmount discounts matching lines by a fixed amount per unit.
	KindFixedAmount Kind = "fixed_amount"
	// KindBundle discounts the cheapest of three qualifying units.
	KindBundle Kind = "bundle_2_1"
	// KindCartThreshold discounts the whole cart once the subtotal reaches a minimum.
	KindCartThreshold Kind = "cart_threshold"
	// KindFlashSale behaves like a line discount with a short validity window.
	KindFlashSale Kind = "flash_sale"
	// KindCoupon is only applied when the customer supplies its code.
	KindCoupon Kind = "coupon"
)

// LineKinds are the kinds that change a single product's displayed price.
var LineKinds = []Kind{KindPercentage, KindFixedAmount, KindFlashSale}

// CartKinds are the kinds loaded for cart evaluation.
var CartKinds = []Kind{KindPercentage, KindFixedAmount, KindFlashSale, KindBundle, KindCartThreshold, KindCoupon}

// DiscountType controls how DiscountValue is interpreted.
type DiscountType string

const (
	// DiscountPercentage treats DiscountValue as a percentage.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount treats DiscountValue as a currency amount.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

var (
	// ErrInvalidSubtotal is returned when a cart is evaluated with a negative subtotal.
	ErrInvalidSubtotal = errors.New("subtotal must not be negative")
	// ErrUnknownKind is returned when parsing an unsupported promotion type.
	ErrUnknownKind = errors.New("unknown promotion type")
)

// Coupon error messages shown to the customer.
const (
	MsgCouponInvalid       = "Codice coupon non valido o scaduto"
	MsgCouponExhausted     = "Questo coupon ha raggiunto il limite massimo di utilizzi"
	MsgCouponNotApplicable = "Il coupon non è applicabile ai prodotti nel carrello"
)

// ParseKind validates a raw promotion type.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPercentage, KindFixedAmount, KindBundle, KindCartThreshold, KindFlashSale, KindCoupon:
		return k, nil
	default:
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
}

// ParseDiscountType maps a raw discount type, defaulting to percentage like
// the catalog sync does.
func ParseDiscountType(s string) DiscountType {
	if DiscountType(s) == DiscountFixedAmount {
		return DiscountFixedAmount
	}
	return DiscountPercentage
}

// Promotion is a merchant-defined discount rule.
type Promotion struct {
	ID          int64
	Name        string
	Description string
	Kind        Kind

	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Scope         Scope

	// CouponCode gates the promotion behind a customer-supplied code when set.
	CouponCode     string
	MaxUses        *int
	MaxUsesPerUser int
	TimesUsed      int

	StartsAt time.Time
	EndsAt   time.Time
	IsActive bool

	// BundleFreePercent is nil for non-bundle rules; a nil bundle percent means 100.
	BundleFreePercent *decimal.Decimal
	CartMinAmount     *decimal.Decimal

	Badge         string
	Message       string
	ShowCountdown bool
}

// Eligible reports whether p is switched on and now falls within its
// validity window (both ends inclusive).
func Eligible(p *Promotion, now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return !now.Before(p.StartsAt) && !now.After(p.EndsAt)
}

// UsageExhausted reports whether the promotion has reached its total use cap.
func (p *Promotion) UsageExhausted() bool {
	return p.MaxUses != nil && p.TimesUsed >= *p.MaxUses
}

// NormalizeCoupon trims and uppercases a customer-supplied code.
func NormalizeCoupon(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository reads promotion reference data.
type Repository interface {
	// ListActive returns promotions of the given kinds that are active at now.
	ListActive(ctx context.Context, now time.Time, kinds ...Kind) ([]Promotion, error)
}
