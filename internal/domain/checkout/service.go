package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gaurosa/storefront/internal/domain/catalog"
	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = errors.New("items required")
	// ErrInvalidCoupon is matched by every *InvalidCouponError.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrCouponExhausted is returned when the coupon's usage cap was reached
	// between evaluation and redemption.
	ErrCouponExhausted = errors.New(promotion.MsgCouponExhausted)
	// ErrBelowMinimum is returned when the order total is under MinimumTotal.
	ErrBelowMinimum = errors.New("L'importo minimo dell'ordine è 0,50 €")
)

// MinimumTotal is the smallest total the payment provider accepts.
var MinimumTotal = decimal.RequireFromString("0.50")

var vatRate = decimal.NewFromInt(22)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductCode string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductCode)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductCode string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductCode)
}

// InvalidCouponError carries the customer-facing reason a coupon was refused.
type InvalidCouponError struct {
	Code    string
	Message string
}

func (e *InvalidCouponError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrInvalidCoupon) match.
func (e *InvalidCouponError) Is(target error) bool {
	return target == ErrInvalidCoupon
}

// Item is a requested product and quantity.
type Item struct {
	ProductCode string
	Quantity    int
}

// Request holds the input for placing an order.
type Request struct {
	Items      []Item
	CouponCode string
}

// Result holds the output of a successfully placed order.
type Result struct {
	Order      *Order
	Evaluation promotion.Result
}

// Evaluator evaluates a cart at a given time. *promotion.Service satisfies it.
type Evaluator interface {
	Now() time.Time
	EvaluateCartAt(ctx context.Context, cart promotion.Cart, now time.Time) (promotion.Result, error)
}

// Shipping is the flat-rate shipping policy.
type Shipping struct {
	Cost decimal.Decimal
	// FreeThreshold is the discounted subtotal from which shipping is free.
	// Zero disables free shipping.
	FreeThreshold decimal.Decimal
}

// For returns the shipping charged on the given discounted subtotal.
func (s Shipping) For(subtotal decimal.Decimal) decimal.Decimal {
	if s.FreeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(s.FreeThreshold) {
		return decimal.Zero
	}
	return s.Cost
}

// Service encapsulates order placement business logic.
type Service struct {
	products  catalog.Repository
	evaluator Evaluator
	orders    Repository
	shipping  Shipping
}

// NewService creates a checkout Service with the required domain dependencies.
func NewService(
	products catalog.Repository,
	evaluator Evaluator,
	orders Repository,
	shipping Shipping,
) *Service {
	return &Service{
		products:  products,
		evaluator: evaluator,
		orders:    orders,
		shipping:  shipping,
	}
}

// PlaceOrder validates items, prices them from the catalog, evaluates
// promotions and the coupon at a single instant, and persists the order.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	codes := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductCode: item.ProductCode}
		}
		codes[i] = item.ProductCode
	}

	fetched, err := s.products.GetByCodes(ctx, codes)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byCode := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byCode[p.Code] = p
	}

	var (
		lines     = make([]Line, 0, len(req.Items))
		cartLines = make([]promotion.CartLine, 0, len(req.Items))
		subtotal  = decimal.Zero
	)
	for _, item := range req.Items {
		p, ok := byCode[item.ProductCode]
		if !ok {
			return nil, &ProductNotFoundError{ProductCode: item.ProductCode}
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		subtotal = subtotal.Add(lineTotal)

		lines = append(lines, Line{
			ProductCode: p.Code,
			Name:        p.Name,
			UnitPrice:   p.Price,
			Quantity:    item.Quantity,
			Total:       lineTotal,
		})
		cartLines = append(cartLines, promotion.CartLine{
			ProductCode: p.Code,
			Name:        p.Name,
			UnitPrice:   p.Price,
			Quantity:    item.Quantity,
			Category:    p.MainCategory,
			Subcategory: p.Subcategory,
			Tags:        p.Tags,
		})
	}

	now := s.evaluator.Now()
	eval, err := s.evaluator.EvaluateCartAt(ctx, promotion.Cart{
		Lines:      cartLines,
		Subtotal:   subtotal,
		CouponCode: req.CouponCode,
	}, now)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate cart")
	}
	if eval.CouponError != nil {
		return nil, &InvalidCouponError{
			Code:    promotion.NormalizeCoupon(req.CouponCode),
			Message: *eval.CouponError,
		}
	}

	discounted := eval.FinalTotal
	shipping := s.shipping.For(discounted)
	total := discounted.Add(shipping).Round(2)
	if total.LessThan(MinimumTotal) {
		return nil, ErrBelowMinimum
	}

	o := &Order{
		ID:          uuid.New().String(),
		Lines:       lines,
		Subtotal:    subtotal,
		Discount:    eval.Discount,
		Shipping:    shipping,
		Total:       total,
		TaxIncluded: taxShare(total),
		CreatedAt:   now,
	}
	for _, a := range eval.Applied {
		o.PromotionIDs = append(o.PromotionIDs, a.ID)
	}
	if eval.CouponValid != nil && *eval.CouponValid {
		o.CouponCode = promotion.NormalizeCoupon(req.CouponCode)
	}
	o.RedeemedPromotionIDs = eval.Redeemed()

	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrCouponExhausted) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.Total.StringFixed(2)),
		zap.Int("promotions", len(o.PromotionIDs)),
	)

	return &Result{Order: o, Evaluation: eval}, nil
}

// taxShare extracts the VAT contained in a VAT-inclusive amount.
func taxShare(total decimal.Decimal) decimal.Decimal {
	return total.Mul(vatRate).Div(vatRate.Add(decimal.NewFromInt(100))).Round(2)
}
