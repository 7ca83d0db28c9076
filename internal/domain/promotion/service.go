package promotion

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service evaluates carts and product prices against the promotions read
// from a Repository. A failed read is logged and treated as "no promotions":
// pricing never blocks a sale.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Now returns the service clock. Callers that need the evaluation timestamp
// (e.g. to stamp an order) should read it once and pass it along.
func (s *Service) Now() time.Time {
	return s.now()
}

// EvaluateCart loads the active promotions and evaluates the cart at a
// single instant.
func (s *Service) EvaluateCart(ctx context.Context, cart Cart) (Result, error) {
	return s.EvaluateCartAt(ctx, cart, s.now())
}

// EvaluateCartAt is EvaluateCart with an explicit evaluation time.
func (s *Service) EvaluateCartAt(ctx context.Context, cart Cart, now time.Time) (Result, error) {
	promos := s.load(ctx, now, CartKinds...)
	return EvaluateCart(cart, promos, now)
}

// PriceLine loads the active line promotions and prices a single product.
func (s *Service) PriceLine(ctx context.Context, in LineInput) LinePrice {
	now := s.now()
	return EvaluateLine(in, s.load(ctx, now, LineKinds...), now)
}

// LinePromotions returns the active line promotions, for callers pricing
// many products against one snapshot.
func (s *Service) LinePromotions(ctx context.Context, now time.Time) []Promotion {
	return s.load(ctx, now, LineKinds...)
}

// Active returns every promotion active at the current time.
func (s *Service) Active(ctx context.Context) ([]Promotion, error) {
	return s.repo.ListActive(ctx, s.now(), CartKinds...)
}

func (s *Service) load(ctx context.Context, now time.Time, kinds ...Kind) []Promotion {
	promos, err := s.repo.ListActive(ctx, now, kinds...)
	if err != nil {
		zctx.From(ctx).Warn("Promotions unavailable, pricing without discounts", zap.Error(err))
		return nil
	}
	return promos
}
