// Package handler serves the storefront pricing API over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaurosa/storefront/internal/domain/auth"
	"github.com/gaurosa/storefront/internal/domain/catalog"
	"github.com/gaurosa/storefront/internal/domain/checkout"
	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// Promotions evaluates carts. *promotion.Service satisfies it.
type Promotions interface {
	EvaluateCart(ctx context.Context, cart promotion.Cart) (promotion.Result, error)
	Active(ctx context.Context) ([]promotion.Promotion, error)
}

// Catalog prices products. *catalog.Pricer satisfies it.
type Catalog interface {
	Price(ctx context.Context, code string) (*catalog.PricedProduct, error)
	List(ctx context.Context) ([]catalog.PricedProduct, error)
}

// Checkout places orders. *checkout.Service satisfies it.
type Checkout interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// Syncer replaces the promotion set. *promosync.Syncer satisfies it.
type Syncer interface {
	Sync(ctx context.Context, b promosync.Batch) (promosync.Report, error)
}

// Authenticator checks API keys. *auth.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Promotions Promotions
	Catalog    Catalog
	Checkout   Checkout
	Syncer     Syncer
	Keys       Authenticator
}

// Handler implements the API endpoints.
type Handler struct {
	promotions Promotions
	catalog    Catalog
	checkout   Checkout
	syncer     Syncer
	keys       Authenticator

	validate *validator.Validate
	metrics  *metrics
}

// New creates a Handler. Metrics are registered on mp.
func New(deps Deps, mp metric.MeterProvider) (*Handler, error) {
	m, err := newMetrics(mp.Meter("github.com/gaurosa/storefront/internal/handler"))
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	return &Handler{
		promotions: deps.Promotions,
		catalog:    deps.Catalog,
		checkout:   deps.Checkout,
		syncer:     deps.Syncer,
		keys:       deps.Keys,
		validate:   newValidator(),
		metrics:    m,
	}, nil
}

// Router returns the API routes.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Risorsa non trovata")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Metodo non supportato")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/promotions", h.ListPromotions)
		r.Post("/promotions/apply", h.ApplyPromotions)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{code}", h.GetProduct)
		r.Post("/checkout", h.PlaceOrder)

		r.Route("/sync/promotions", func(r chi.Router) {
			r.Use(h.RequireAPIKey(auth.ScopeSyncPromotions))
			r.Get("/", h.ListSyncedPromotions)
			r.Post("/", h.SyncPromotions)
		})
	})
	return r
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}
