package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/gaurosa/storefront/internal/domain/auth"
	"github.com/gaurosa/storefront/internal/domain/catalog"
	"github.com/gaurosa/storefront/internal/domain/checkout"
	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/domain/promotion"
)

var testNow = time.Date(2025, 11, 28, 10, 0, 0, 0, time.UTC)

// --- Fakes ---

// enginePromotions evaluates against a fixed promotion set and clock.
type enginePromotions struct {
	promos    []promotion.Promotion
	activeErr error
	lastCart  promotion.Cart
}

func (f *enginePromotions) EvaluateCart(_ context.Context, cart promotion.Cart) (promotion.Result, error) {
	f.lastCart = cart
	return promotion.EvaluateCart(cart, f.promos, testNow)
}

func (f *enginePromotions) Active(context.Context) ([]promotion.Promotion, error) {
	return f.promos, f.activeErr
}

type fakeCatalog struct {
	products []catalog.PricedProduct
	err      error
}

func (f *fakeCatalog) Price(_ context.Context, code string) (*catalog.PricedProduct, error) {
	for i := range f.products {
		if f.products[i].Code == code {
			return &f.products[i], nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) List(context.Context) ([]catalog.PricedProduct, error) {
	return f.products, f.err
}

type fakeCheckout struct {
	res     *checkout.Result
	err     error
	lastReq checkout.Request
}

func (f *fakeCheckout) PlaceOrder(_ context.Context, req checkout.Request) (*checkout.Result, error) {
	f.lastReq = req
	return f.res, f.err
}

type fakeSyncer struct {
	rep   promosync.Report
	err   error
	batch promosync.Batch
	calls int
}

func (f *fakeSyncer) Sync(_ context.Context, b promosync.Batch) (promosync.Report, error) {
	f.calls++
	f.batch = b
	if len(b.Promotions) == 0 {
		return promosync.Report{}, promosync.ErrEmptyBatch
	}
	return f.rep, f.err
}

type keyRepo map[string]*auth.APIKeyInfo

func (r keyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if info, ok := r[hash]; ok {
		return info, nil
	}
	return nil, errors.New("not found")
}

// --- Helpers ---

var testPepper = []byte("pepper")

type testEnv struct {
	promotions *enginePromotions
	catalog    *fakeCatalog
	checkout   *fakeCheckout
	syncer     *fakeSyncer
	router     http.Handler
}

func newTestEnv(t *testing.T, promos ...promotion.Promotion) *testEnv {
	t.Helper()

	keys := keyRepo{}
	for _, k := range []auth.APIKeyInfo{
		{ID: "1", Name: "mazgest", Scopes: []string{auth.ScopeSyncPromotions}},
		{ID: "2", Name: "readonly", Scopes: []string{"products:read"}},
	} {
		k.KeyHash = auth.HashKey(testPepper, k.Name+"-secret")
		keys[k.KeyHash] = &k
	}

	env := &testEnv{
		promotions: &enginePromotions{promos: promos},
		catalog:    &fakeCatalog{},
		checkout:   &fakeCheckout{},
		syncer:     &fakeSyncer{},
	}
	h, err := New(Deps{
		Promotions: env.promotions,
		Catalog:    env.catalog,
		Checkout:   env.checkout,
		Syncer:     env.syncer,
		Keys:       auth.NewAuthenticator(keys, testPepper),
	}, noop.NewMeterProvider())
	require.NoError(t, err)
	env.router = h.Router()
	return env
}

func (env *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func promo(id int64, kind promotion.Kind, value string, scope promotion.Scope, opts ...func(*promotion.Promotion)) promotion.Promotion {
	p := promotion.Promotion{
		ID:            id,
		Name:          "Promo " + string(kind),
		Kind:          kind,
		DiscountType:  promotion.DiscountPercentage,
		DiscountValue: d(value),
		Scope:         scope,
		StartsAt:      testNow.Add(-time.Hour),
		EndsAt:        testNow.Add(time.Hour),
		IsActive:      true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
