package handler

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurosa/storefront/internal/domain/checkout"
	"github.com/gaurosa/storefront/internal/domain/promotion"
)

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t)
	couponID := int64(9)
	env.checkout.res = &checkout.Result{
		Order: &checkout.Order{
			ID:     "0b4f7d1e-5c2a-4a43-9d1f-2e8c1c0f7a11",
			Number: "GAU-20251128-001",
			Lines: []checkout.Line{
				{ProductCode: "AN-001", Name: "Solitario", UnitPrice: d("100.00"), Quantity: 1, Total: d("100.00")},
			},
			Subtotal:             d("100.00"),
			Discount:             d("20.00"),
			Shipping:             d("0"),
			Total:                d("80.00"),
			TaxIncluded:          d("14.43"),
			CouponCode:           "NATALE20",
			RedeemedPromotionIDs: []int64{couponID},
			PromotionIDs:         []int64{couponID},
			CreatedAt:            testNow,
		},
		Evaluation: promotion.Result{
			Discount:      d("20.00"),
			DiscountLabel: "Natale",
			FinalTotal:    d("80.00"),
			Applied: []promotion.Applied{
				{ID: couponID, Name: "Natale", Kind: promotion.KindCoupon, Discount: d("20.00"), CouponCode: "NATALE20"},
			},
		},
	}

	w := env.do(http.MethodPost, "/api/checkout", `{
		"items": [{"code": "AN-001", "quantity": 1}],
		"coupon_code": "natale20"
	}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, checkout.Request{
		Items:      []checkout.Item{{ProductCode: "AN-001", Quantity: 1}},
		CouponCode: "natale20",
	}, env.checkout.lastReq)
	assert.JSONEq(t, `{"success":true,"order":{
		"id":"0b4f7d1e-5c2a-4a43-9d1f-2e8c1c0f7a11",
		"order_number":"GAU-20251128-001",
		"items":[{"code":"AN-001","name":"Solitario","unit_price":100.00,"quantity":1,"total":100.00}],
		"subtotal":100.00,"discount":20.00,"discount_label":"Natale","shipping":0.00,"total":80.00,
		"tax_included":14.43,"coupon_code":"NATALE20",
		"applied_promotions":[{"id":9,"name":"Natale","type":"coupon","badge":null,"message":null,"discount":20.00,"coupon_code":"NATALE20"}],
		"created_at":"2025-11-28T10:00:00Z"
	}}`, w.Body.String())
}

func TestPlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantErr    string
	}{
		{
			name:       "empty items",
			body:       `{"items": []}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "Il carrello è vuoto",
		},
		{
			name:       "zero quantity",
			body:       `{"items": [{"code": "A", "quantity": 0}]}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "Valore troppo basso: quantity",
		},
		{
			name:       "malformed",
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
			wantErr:    msgInvalidJSON,
		},
		{
			name:       "unknown product",
			err:        &checkout.ProductNotFoundError{ProductCode: "A"},
			wantStatus: http.StatusUnprocessableEntity,
			wantErr:    "Prodotto A non disponibile",
		},
		{
			name:       "invalid coupon",
			err:        &checkout.InvalidCouponError{Code: "X", Message: promotion.MsgCouponInvalid},
			wantStatus: http.StatusUnprocessableEntity,
			wantErr:    promotion.MsgCouponInvalid,
		},
		{
			name:       "below minimum",
			err:        checkout.ErrBelowMinimum,
			wantStatus: http.StatusUnprocessableEntity,
			wantErr:    checkout.ErrBelowMinimum.Error(),
		},
		{
			name:       "coupon exhausted concurrently",
			err:        checkout.ErrCouponExhausted,
			wantStatus: http.StatusConflict,
			wantErr:    promotion.MsgCouponExhausted,
		},
		{
			name:       "storage failure",
			err:        errors.Wrap(errors.New("connection reset"), "create order"),
			wantStatus: http.StatusInternalServerError,
			wantErr:    "Errore interno del server",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.checkout.err = tt.err

			body := tt.body
			if body == "" {
				body = `{"items": [{"code": "A", "quantity": 1}]}`
			}
			w := env.do(http.MethodPost, "/api/checkout", body)

			assert.Equal(t, tt.wantStatus, w.Code)
			got := decodeBody(t, w)
			assert.Equal(t, false, got["success"])
			assert.Equal(t, tt.wantErr, got["error"])
		})
	}
}
