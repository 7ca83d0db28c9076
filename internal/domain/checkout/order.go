package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a placed order with its server-side pricing.
type Order struct {
	ID string
	// Number is the human-readable order number, assigned by the Repository.
	Number string
	Lines  []Line

	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
	// TaxIncluded is the VAT share already contained in Total.
	TaxIncluded decimal.Decimal

	CouponCode string
	// RedeemedPromotionIDs are the promotions unlocked by CouponCode. Their
	// usage counters are incremented together with the insert.
	RedeemedPromotionIDs []int64
	PromotionIDs         []int64
	CreatedAt            time.Time
}

// Line is a single order line priced from the catalog.
type Line struct {
	ProductCode string          `json:"product_code"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// Repository persists orders.
type Repository interface {
	// Create inserts the order and redeems every RedeemedPromotionIDs entry
	// in the same transaction. It returns ErrCouponExhausted when one of
	// them reached its usage cap concurrently.
	Create(ctx context.Context, o *Order) error
}
