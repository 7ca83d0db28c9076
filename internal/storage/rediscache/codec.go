package rediscache

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

func encodePromotions(promos []promotion.Promotion) []byte {
	var e jx.Encoder
	e.ArrStart()
	for i := range promos {
		encodePromotion(&e, &promos[i])
	}
	e.ArrEnd()
	return e.Bytes()
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	appliesTo, categorySlug, tagSlug, codes := promotion.ScopeParams(p.Scope)

	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("kind")
	e.Str(string(p.Kind))
	e.FieldStart("discount_type")
	e.Str(string(p.DiscountType))
	e.FieldStart("discount_value")
	e.Str(p.DiscountValue.String())
	e.FieldStart("applies_to")
	e.Str(appliesTo)
	e.FieldStart("category_slug")
	e.Str(categorySlug)
	e.FieldStart("tag_slug")
	e.Str(tagSlug)
	e.FieldStart("product_codes")
	e.ArrStart()
	for _, c := range codes {
		e.Str(c)
	}
	e.ArrEnd()
	e.FieldStart("bundle_free_percent")
	encodeDecimalPtr(e, p.BundleFreePercent)
	e.FieldStart("cart_min_amount")
	encodeDecimalPtr(e, p.CartMinAmount)
	e.FieldStart("coupon_code")
	e.Str(p.CouponCode)
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
	e.FieldStart("starts_at")
	e.Str(p.StartsAt.Format(time.RFC3339Nano))
	e.FieldStart("ends_at")
	e.Str(p.EndsAt.Format(time.RFC3339Nano))
	e.FieldStart("is_active")
	e.Bool(p.IsActive)
	e.FieldStart("badge")
	e.Str(p.Badge)
	e.FieldStart("message")
	e.Str(p.Message)
	e.FieldStart("show_countdown")
	e.Bool(p.ShowCountdown)
	e.ObjEnd()
}

func encodeDecimalPtr(e *jx.Encoder, v *decimal.Decimal) {
	if v == nil {
		e.Null()
		return
	}
	e.Str(v.String())
}

func decodePromotions(data []byte) ([]promotion.Promotion, error) {
	out := []promotion.Promotion{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := decodePromotion(d)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cached promotions")
	}
	return out, nil
}

func decodePromotion(d *jx.Decoder) (promotion.Promotion, error) {
	var (
		p                     promotion.Promotion
		appliesTo             string
		categorySlug, tagSlug string
		codes                 []string
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			p.Kind = promotion.Kind(s)
		case "discount_type":
			var s string
			s, err = d.Str()
			p.DiscountType = promotion.DiscountType(s)
		case "discount_value":
			p.DiscountValue, err = decodeDecimal(d)
		case "applies_to":
			appliesTo, err = d.Str()
		case "category_slug":
			categorySlug, err = d.Str()
		case "tag_slug":
			tagSlug, err = d.Str()
		case "product_codes":
			err = d.Arr(func(d *jx.Decoder) error {
				c, err := d.Str()
				codes = append(codes, c)
				return err
			})
		case "bundle_free_percent":
			p.BundleFreePercent, err = decodeDecimalPtr(d)
		case "cart_min_amount":
			p.CartMinAmount, err = decodeDecimalPtr(d)
		case "coupon_code":
			p.CouponCode, err = d.Str()
		case "max_uses":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var n int
			n, err = d.Int()
			p.MaxUses = &n
		case "max_uses_per_user":
			p.MaxUsesPerUser, err = d.Int()
		case "times_used":
			p.TimesUsed, err = d.Int()
		case "starts_at":
			p.StartsAt, err = decodeTime(d)
		case "ends_at":
			p.EndsAt, err = decodeTime(d)
		case "is_active":
			p.IsActive, err = d.Bool()
		case "badge":
			p.Badge, err = d.Str()
		case "message":
			p.Message, err = d.Str()
		case "show_countdown":
			p.ShowCountdown, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	p.Scope = promotion.ParseScope(appliesTo, categorySlug, tagSlug, codes)
	return p, err
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}

func decodeDecimalPtr(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
