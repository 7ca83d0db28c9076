package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/gaurosa/storefront/internal/domain/catalog"
)

// ListProducts handles GET /api/products. The optional category and
// subcategory query parameters filter the result; "all" disables a filter.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	q := r.URL.Query()
	category, subcategory := q.Get("category"), q.Get("subcategory")
	match := func(v, want string) bool { return want == "" || want == "all" || v == want }

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("data")
		e.ArrStart()
		for i := range products {
			p := &products[i]
			if match(p.MainCategory, category) && match(p.Subcategory, subcategory) {
				encodeProduct(e, p)
			}
		}
		e.ArrEnd()
	})
}

// GetProduct handles GET /api/products/{code}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Price(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("data")
		encodeProduct(e, p)
	})
}

func encodeProduct(e *jx.Encoder, p *catalog.PricedProduct) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	money(e, p.Price)
	e.FieldStart("compare_at_price")
	moneyPtr(e, p.CompareAtPrice)
	e.FieldStart("main_category")
	optStr(e, p.MainCategory)
	e.FieldStart("subcategory")
	optStr(e, p.Subcategory)
	e.FieldStart("tags")
	strs(e, p.Tags)
	e.FieldStart("promo_badge")
	optStr(e, p.Badge)
	e.FieldStart("promotion_id")
	if p.PromotionID != 0 {
		e.Int64(p.PromotionID)
	} else {
		e.Null()
	}
	e.ObjEnd()
}
