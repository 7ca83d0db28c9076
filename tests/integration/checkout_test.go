//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var (
	uuidPattern        = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	orderNumberPattern = regexp.MustCompile(`^GAU-\d{8}-\d{3,}$`)
)

func TestPlaceOrder(t *testing.T) {
	tests := []struct {
		name     string
		req      orderRequest
		discount float64
		shipping float64
		total    float64
	}{
		{
			name:  "free shipping above threshold",
			req:   orderRequest{Items: []orderItemRequest{{Code: "M003", Quantity: 1}}},
			total: 240,
		},
		{
			name:     "flat shipping below threshold",
			req:      orderRequest{Items: []orderItemRequest{{Code: "M005", Quantity: 1}}},
			shipping: 5.9,
			total:    44.9,
		},
		{
			name:     "coupon",
			req:      orderRequest{Items: []orderItemRequest{{Code: "M003", Quantity: 1}}, CouponCode: "BENVENUTO10"},
			discount: 24,
			total:    216,
		},
		{
			name:     "line promotion and cart threshold",
			req:      orderRequest{Items: []orderItemRequest{{Code: "M007", Quantity: 1}}},
			discount: 30,
			total:    290,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/checkout", tt.req)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("expected 201, got %d", resp.StatusCode)
			}

			order := decodeJSON[orderResponse](t, resp).Order
			if !uuidPattern.MatchString(order.ID) {
				t.Errorf("order ID %q is not a valid UUID", order.ID)
			}
			if !orderNumberPattern.MatchString(order.OrderNumber) {
				t.Errorf("order number %q does not match GAU-YYYYMMDD-NNN", order.OrderNumber)
			}
			if order.Discount != tt.discount {
				t.Errorf("discount: got %v, want %v", order.Discount, tt.discount)
			}
			if order.Shipping != tt.shipping {
				t.Errorf("shipping: got %v, want %v", order.Shipping, tt.shipping)
			}
			if order.Total != tt.total {
				t.Errorf("total: got %v, want %v", order.Total, tt.total)
			}
			if order.TaxIncluded <= 0 || order.TaxIncluded >= order.Total {
				t.Errorf("tax_included %v out of range for total %v", order.TaxIncluded, order.Total)
			}
		})
	}
}

func TestPlaceOrder_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		req    orderRequest
		status int
	}{
		{
			name:   "empty items",
			req:    orderRequest{Items: []orderItemRequest{}},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown product",
			req:    orderRequest{Items: []orderItemRequest{{Code: "NOPE", Quantity: 1}}},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "zero quantity",
			req:    orderRequest{Items: []orderItemRequest{{Code: "M001", Quantity: 0}}},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid coupon",
			req:    orderRequest{Items: []orderItemRequest{{Code: "M001", Quantity: 1}}, CouponCode: "NONEXISTENT"},
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/checkout", tt.req)
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}

			errResp := decodeJSON[errorResponse](t, resp)
			if errResp.Success || errResp.Error == "" {
				t.Errorf("unexpected error body: %+v", errResp)
			}
		})
	}
}
