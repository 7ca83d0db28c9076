package promosync

import (
	"cmp"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// Record is one promotion as exported by the management system. Optional
// fields are nil when absent.
type Record struct {
	ID                int64
	Name              string
	Description       string
	Type              string
	DiscountValue     decimal.Decimal
	DiscountType      string
	AppliesTo         string
	CategorySlug      string
	TagSlug           string
	ProductCodes      []string
	BundleFreePercent *decimal.Decimal
	CartMinAmount     *decimal.Decimal
	CouponCode        string
	MaxUses           *int
	MaxUsesPerUser    *int
	StartsAt          string
	EndsAt            string
	ShowCountdown     bool
	Badge             string
	Message           string
	IsActive          *bool
}

// Batch is a sync request.
type Batch struct {
	Promotions []Record
	// ActiveIDs lists every promotion id that still exists upstream. It is
	// only honoured when Prune is set, i.e. when the sender included it.
	ActiveIDs []int64
	Prune     bool
}

var hundred = decimal.NewFromInt(100)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q", s)
}

// Promotion converts the record, applying the same defaults as the
// management system: percentage discounts on all products, one use per
// customer, active unless stated otherwise.
func (r Record) Promotion(loc *time.Location) (promotion.Promotion, error) {
	kind, err := promotion.ParseKind(cmp.Or(r.Type, string(promotion.KindPercentage)))
	if err != nil {
		return promotion.Promotion{}, err
	}
	startsAt, err := parseTime(r.StartsAt, loc)
	if err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "starts_at")
	}
	endsAt, err := parseTime(r.EndsAt, loc)
	if err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "ends_at")
	}
	if endsAt.Before(startsAt) {
		return promotion.Promotion{}, errors.New("ends_at is before starts_at")
	}
	if r.DiscountValue.IsNegative() {
		return promotion.Promotion{}, errors.New("discount_value must not be negative")
	}
	discountType := promotion.ParseDiscountType(r.DiscountType)
	if discountType == promotion.DiscountPercentage && r.DiscountValue.GreaterThan(hundred) {
		return promotion.Promotion{}, errors.New("percentage discount_value must not exceed 100")
	}
	if f := r.BundleFreePercent; f != nil && (f.IsNegative() || f.GreaterThan(hundred)) {
		return promotion.Promotion{}, errors.New("bundle_free_percent must be between 0 and 100")
	}

	p := promotion.Promotion{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Kind:              kind,
		DiscountType:      discountType,
		DiscountValue:     r.DiscountValue,
		Scope:             promotion.ParseScope(cmp.Or(r.AppliesTo, promotion.AppliesToAllProducts), r.CategorySlug, r.TagSlug, r.ProductCodes),
		CouponCode:        promotion.NormalizeCoupon(r.CouponCode),
		MaxUses:           r.MaxUses,
		MaxUsesPerUser:    1,
		StartsAt:          startsAt,
		EndsAt:            endsAt,
		IsActive:          true,
		BundleFreePercent: r.BundleFreePercent,
		CartMinAmount:     r.CartMinAmount,
		Badge:             r.Badge,
		Message:           r.Message,
		ShowCountdown:     r.ShowCountdown,
	}
	if r.MaxUsesPerUser != nil {
		p.MaxUsesPerUser = *r.MaxUsesPerUser
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	return p, nil
}

// Decode parses a sync payload. It accepts the request body form
// {"promotions": [...], "active_ids": [...]} as well as a bare array of
// promotions, which is what the export files contain.
func Decode(data []byte) (Batch, error) {
	var b Batch
	d := jx.DecodeBytes(data)

	switch d.Next() {
	case jx.Array:
		recs, err := decodeRecords(d)
		if err != nil {
			return b, err
		}
		b.Promotions = recs
		return b, nil
	case jx.Object:
		err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "promotions":
				recs, err := decodeRecords(d)
				if err != nil {
					return errors.Wrap(err, "promotions")
				}
				b.Promotions = recs
			case "active_ids":
				if d.Next() == jx.Null {
					return d.Null()
				}
				b.Prune = true
				b.ActiveIDs = []int64{}
				return d.Arr(func(d *jx.Decoder) error {
					id, err := decodeInt(d)
					if err != nil {
						return errors.Wrap(err, "active_ids")
					}
					if id != nil {
						b.ActiveIDs = append(b.ActiveIDs, int64(*id))
					}
					return nil
				})
			default:
				return d.Skip()
			}
			return nil
		})
		return b, err
	default:
		return b, errors.New("expected a JSON object or array")
	}
}

func decodeRecords(d *jx.Decoder) ([]Record, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []Record
	err := d.Arr(func(d *jx.Decoder) error {
		r, err := decodeRecord(d)
		if err != nil {
			return errors.Wrapf(err, "promotion %d", len(out))
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func decodeRecord(d *jx.Decoder) (Record, error) {
	var r Record
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			var id *int
			if id, err = decodeInt(d); err == nil && id != nil {
				r.ID = int64(*id)
			}
		case "name":
			r.Name, err = decodeString(d)
		case "description":
			r.Description, err = decodeString(d)
		case "type":
			r.Type, err = decodeString(d)
		case "discount_value":
			var v *decimal.Decimal
			if v, err = decodeDecimal(d); err == nil && v != nil {
				r.DiscountValue = *v
			}
		case "discount_type":
			r.DiscountType, err = decodeString(d)
		case "applies_to":
			r.AppliesTo, err = decodeString(d)
		case "category_slug":
			r.CategorySlug, err = decodeString(d)
		case "tag_slug":
			r.TagSlug, err = decodeString(d)
		case "product_codes":
			r.ProductCodes, err = decodeCodes(d)
		case "bundle_free_percent":
			r.BundleFreePercent, err = decodeDecimal(d)
		case "cart_min_amount":
			r.CartMinAmount, err = decodeDecimal(d)
		case "coupon_code":
			r.CouponCode, err = decodeString(d)
		case "max_uses":
			r.MaxUses, err = decodeInt(d)
		case "max_uses_per_user":
			r.MaxUsesPerUser, err = decodeInt(d)
		case "starts_at":
			r.StartsAt, err = decodeString(d)
		case "ends_at":
			r.EndsAt, err = decodeString(d)
		case "show_countdown":
			var v *bool
			if v, err = decodeBool(d); err == nil && v != nil {
				r.ShowCountdown = *v
			}
		case "promo_badge":
			r.Badge, err = decodeString(d)
		case "promo_message":
			r.Message, err = decodeString(d)
		case "is_active":
			r.IsActive, err = decodeBool(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return r, err
}

// decodeString reads a string, a bare number or null.
func decodeString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	default:
		return d.Str()
	}
}

// decodeDecimal reads a number or a numeric string. Null and "" yield nil.
func decodeDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	s, err := decodeString(d)
	if err != nil || strings.TrimSpace(s) == "" {
		return nil, err
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeInt(d *jx.Decoder) (*int, error) {
	v, err := decodeDecimal(d)
	if err != nil || v == nil {
		return nil, err
	}
	if !v.IsInteger() {
		return nil, errors.Errorf("%s is not an integer", v)
	}
	n := int(v.IntPart())
	return &n, nil
}

// decodeBool accepts true/false, 0/1 and their string forms.
func decodeBool(d *jx.Decoder) (*bool, error) {
	if d.Next() == jx.Bool {
		v, err := d.Bool()
		return &v, err
	}
	s, err := decodeString(d)
	if err != nil || s == "" {
		return nil, err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeCodes reads a list of product codes. Older exports send the list
// JSON-encoded inside a string.
func decodeCodes(d *jx.Decoder) ([]string, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil || strings.TrimSpace(s) == "" {
			return nil, err
		}
		return decodeCodes(jx.DecodeStr(s))
	default:
		var codes []string
		err := d.Arr(func(d *jx.Decoder) error {
			s, err := decodeString(d)
			if err == nil && s != "" {
				codes = append(codes, s)
			}
			return err
		})
		return codes, err
	}
}
