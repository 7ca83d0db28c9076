package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/gaurosa/storefront/internal/domain/checkout"
)

type orderItem struct {
	Code     string `json:"code" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=999"`
}

type orderRequest struct {
	Items      []orderItem `json:"items" validate:"required,min=1,max=200,dive"`
	CouponCode string      `json:"coupon_code" validate:"max=64"`
}

func decodeOrderRequest(data []byte) (orderRequest, error) {
	var req orderRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				var it orderItem
				err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "code", "product_code":
						it.Code, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					default:
						return d.Skip()
					}
					if err != nil {
						return errors.Wrap(err, key)
					}
					return nil
				})
				req.Items = append(req.Items, it)
				return err
			})
		case "coupon_code":
			var err error
			req.CouponCode, err = decodeOptStr(d)
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

// PlaceOrder handles POST /api/checkout.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeOrderRequest(data)
	if err != nil {
		fail(w, r, badRequest(http.StatusBadRequest, msgInvalidJSON))
		return
	}
	if len(req.Items) == 0 {
		fail(w, r, checkout.ErrEmptyItems)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		fail(w, r, err)
		return
	}

	items := make([]checkout.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = checkout.Item{ProductCode: it.Code, Quantity: it.Quantity}
	}
	res, err := h.checkout.PlaceOrder(ctx, checkout.Request{Items: items, CouponCode: req.CouponCode})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.metrics.placed(ctx, res.Order.CouponCode != "")

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, res)
	})
}

func encodeOrder(e *jx.Encoder, res *checkout.Result) {
	o := res.Order
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("order_number")
	e.Str(o.Number)
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(l.ProductCode)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unit_price")
		money(e, l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("total")
		money(e, l.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("discount")
	money(e, o.Discount)
	e.FieldStart("discount_label")
	e.Str(res.Evaluation.DiscountLabel)
	e.FieldStart("shipping")
	money(e, o.Shipping)
	e.FieldStart("total")
	money(e, o.Total)
	e.FieldStart("tax_included")
	money(e, o.TaxIncluded)
	e.FieldStart("coupon_code")
	optStr(e, o.CouponCode)
	e.FieldStart("applied_promotions")
	encodeApplied(e, res.Evaluation.Applied)
	e.FieldStart("created_at")
	timestamp(e, o.CreatedAt)
	e.ObjEnd()
}
