package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

const msgEmptyCart = "Carrello vuoto o importo non valido"

type applyItem struct {
	Code        string          `json:"code" validate:"required,max=64"`
	Name        string          `json:"name" validate:"max=255"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" validate:"gte=0,lte=999"`
	Category    string          `json:"category" validate:"max=100"`
	Subcategory string          `json:"subcategory" validate:"max=100"`
	Tags        []string        `json:"tags" validate:"max=50,dive,max=100"`
}

type applyRequest struct {
	Items      []applyItem     `json:"items" validate:"max=200,dive"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	CouponCode string          `json:"coupon_code" validate:"max=64"`
}

func decodeApplyRequest(data []byte) (applyRequest, error) {
	var req applyRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeApplyItem(d)
				req.Items = append(req.Items, item)
				return err
			})
		case "subtotal":
			req.Subtotal, err = decodeAmount(d)
		case "coupon_code":
			req.CouponCode, err = decodeOptStr(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return req, err
}

func decodeApplyItem(d *jx.Decoder) (applyItem, error) {
	item := applyItem{Quantity: 1}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			item.Code, err = decodeOptStr(d)
		case "name":
			item.Name, err = decodeOptStr(d)
		case "price":
			item.Price, err = decodeAmount(d)
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			item.Quantity, err = d.Int()
		case "category":
			item.Category, err = decodeOptStr(d)
		case "subcategory":
			item.Subcategory, err = decodeOptStr(d)
		case "tags":
			item.Tags, err = decodeStrs(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return item, err
}

// ApplyPromotions handles POST /api/promotions/apply. The cart is priced
// as sent by the client; checkout re-prices it from the catalog.
func (h *Handler) ApplyPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeApplyRequest(data)
	if err != nil {
		fail(w, r, badRequest(http.StatusBadRequest, msgInvalidJSON))
		return
	}
	if len(req.Items) == 0 || !req.Subtotal.IsPositive() {
		fail(w, r, badRequest(http.StatusBadRequest, msgEmptyCart))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		fail(w, r, err)
		return
	}

	cart := promotion.Cart{
		Lines:      make([]promotion.CartLine, 0, len(req.Items)),
		Subtotal:   req.Subtotal,
		CouponCode: req.CouponCode,
	}
	for _, it := range req.Items {
		if it.Price.IsNegative() {
			fail(w, r, badRequest(http.StatusBadRequest, "Prezzo non valido: "+it.Code))
			return
		}
		cart.Lines = append(cart.Lines, promotion.CartLine{
			ProductCode: it.Code,
			Name:        it.Name,
			UnitPrice:   it.Price,
			Quantity:    it.Quantity,
			Category:    it.Category,
			Subcategory: it.Subcategory,
			Tags:        it.Tags,
		})
	}

	res, err := h.promotions.EvaluateCart(ctx, cart)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.metrics.evaluated(ctx, res)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeResult(e, res)
	})
}

func encodeResult(e *jx.Encoder, res promotion.Result) {
	e.FieldStart("discount")
	money(e, res.Discount)
	e.FieldStart("discount_label")
	e.Str(res.DiscountLabel)
	e.FieldStart("final_total")
	money(e, res.FinalTotal)

	e.FieldStart("applied_promotions")
	encodeApplied(e, res.Applied)

	e.FieldStart("coupon_valid")
	if res.CouponValid != nil {
		e.Bool(*res.CouponValid)
	} else {
		e.Null()
	}
	e.FieldStart("coupon_error")
	if res.CouponError != nil {
		e.Str(*res.CouponError)
	} else {
		e.Null()
	}

	e.FieldStart("bundle_info")
	if b := res.Bundle; b != nil {
		e.ObjStart()
		e.FieldStart("promo_id")
		e.Int64(b.PromotionID)
		e.FieldStart("promo_name")
		e.Str(b.PromotionName)
		e.FieldStart("free_percent")
		number(e, b.FreePercent)
		e.FieldStart("items_in_cart")
		e.Int(b.ItemsInCart)
		e.FieldStart("items_needed")
		e.Int(b.ItemsNeeded)
		e.FieldStart("groups_active")
		e.Int(b.GroupsActive)
		e.FieldStart("cheapest_name")
		optStr(e, b.CheapestName)
		e.FieldStart("cheapest_price")
		moneyPtr(e, b.CheapestPrice)
		e.FieldStart("discount_applied")
		money(e, b.DiscountApplied)
		e.FieldStart("potential_discount")
		money(e, b.PotentialDiscount)
		e.FieldStart("badge")
		optStr(e, b.Badge)
		e.FieldStart("message")
		optStr(e, b.Message)
		e.ObjEnd()
	} else {
		e.Null()
	}
}

func encodeApplied(e *jx.Encoder, applied []promotion.Applied) {
	e.ArrStart()
	for _, a := range applied {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(a.ID)
		e.FieldStart("name")
		e.Str(a.Name)
		e.FieldStart("type")
		e.Str(string(a.Kind))
		e.FieldStart("badge")
		optStr(e, a.Badge)
		e.FieldStart("message")
		optStr(e, a.Message)
		e.FieldStart("discount")
		money(e, a.Discount)
		if a.CouponCode != "" {
			e.FieldStart("coupon_code")
			e.Str(a.CouponCode)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

// ListPromotions handles GET /api/promotions. Coupon-gated promotions are
// not advertised.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promotions.Active(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("data")
		e.ArrStart()
		for i := range promos {
			if p := &promos[i]; p.CouponCode == "" {
				encodePromotion(e, p, false)
			}
		}
		e.ArrEnd()
	})
}

// encodePromotion writes the public fields of p, plus coupon and usage
// data when full is set.
func encodePromotion(e *jx.Encoder, p *promotion.Promotion, full bool) {
	appliesTo, categorySlug, tagSlug, codes := promotion.ScopeParams(p.Scope)

	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	optStr(e, p.Description)
	e.FieldStart("type")
	e.Str(string(p.Kind))
	e.FieldStart("discount_type")
	e.Str(string(p.DiscountType))
	e.FieldStart("discount_value")
	number(e, p.DiscountValue)
	e.FieldStart("applies_to")
	e.Str(appliesTo)
	e.FieldStart("category_slug")
	optStr(e, categorySlug)
	e.FieldStart("tag_slug")
	optStr(e, tagSlug)
	e.FieldStart("product_codes")
	strs(e, codes)
	e.FieldStart("bundle_free_percent")
	if p.BundleFreePercent != nil {
		number(e, *p.BundleFreePercent)
	} else {
		e.Null()
	}
	e.FieldStart("cart_min_amount")
	moneyPtr(e, p.CartMinAmount)
	e.FieldStart("starts_at")
	timestamp(e, p.StartsAt)
	e.FieldStart("ends_at")
	timestamp(e, p.EndsAt)
	e.FieldStart("show_countdown")
	e.Bool(p.ShowCountdown)
	e.FieldStart("promo_badge")
	optStr(e, p.Badge)
	e.FieldStart("promo_message")
	optStr(e, p.Message)
	if full {
		e.FieldStart("coupon_code")
		optStr(e, p.CouponCode)
		e.FieldStart("max_uses")
		if p.MaxUses != nil {
			e.Int(*p.MaxUses)
		} else {
			e.Null()
		}
		e.FieldStart("max_uses_per_user")
		e.Int(p.MaxUsesPerUser)
		e.FieldStart("times_used")
		e.Int(p.TimesUsed)
		e.FieldStart("is_active")
		e.Bool(p.IsActive)
	}
	e.ObjEnd()
}
