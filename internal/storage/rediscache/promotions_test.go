package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

var now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

type mockClient struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
	gets   int
}

func newMockClient() *mockClient {
	return &mockClient{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockClient) Get(_ context.Context, key string) *redis.StringCmd {
	m.gets++
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type countingRepo struct {
	promos   []promotion.Promotion
	err      error
	calls    int
	kinds    []promotion.Kind
	from, to time.Time
}

func (r *countingRepo) ListActive(ctx context.Context, now time.Time, kinds ...promotion.Kind) ([]promotion.Promotion, error) {
	return r.ListOverlapping(ctx, now, now, kinds...)
}

func (r *countingRepo) ListOverlapping(_ context.Context, from, to time.Time, kinds ...promotion.Kind) ([]promotion.Promotion, error) {
	r.calls++
	r.kinds = kinds
	r.from, r.to = from, to
	var out []promotion.Promotion
	for _, p := range r.promos {
		if p.IsActive && !p.StartsAt.After(to) && !p.EndsAt.Before(from) {
			out = append(out, p)
		}
	}
	return out, r.err
}

func samplePromotions() []promotion.Promotion {
	maxUses := 50
	free := decimal.NewFromInt(100)
	return []promotion.Promotion{
		{
			ID:            1,
			Name:          "Anelli -20%",
			Kind:          promotion.KindPercentage,
			DiscountType:  promotion.DiscountPercentage,
			DiscountValue: decimal.RequireFromString("20.00"),
			Scope:         promotion.CategoryScope{Slug: "anelli"},
			StartsAt:      now.Add(-time.Hour),
			EndsAt:        now.Add(time.Hour),
			IsActive:      true,
			Badge:         "-20%",
		},
		{
			ID:                2,
			Name:              "Tris",
			Kind:              promotion.KindBundle,
			DiscountType:      promotion.DiscountPercentage,
			Scope:             promotion.NewProductScope([]string{"B1", "A1"}),
			BundleFreePercent: &free,
			StartsAt:          now.Add(-time.Hour),
			EndsAt:            now.Add(24 * time.Hour),
			IsActive:          true,
		},
		{
			ID:             3,
			Name:           "Coupon",
			Kind:           promotion.KindCoupon,
			DiscountType:   promotion.DiscountFixedAmount,
			DiscountValue:  decimal.NewFromInt(10),
			Scope:          promotion.AllProducts{},
			CouponCode:     "DIECI",
			MaxUses:        &maxUses,
			MaxUsesPerUser: 1,
			TimesUsed:      7,
			StartsAt:       now.Add(-time.Hour),
			EndsAt:         now.Add(30 * time.Minute),
			IsActive:       true,
		},
	}
}

func TestPromotions_ReadThrough(t *testing.T) {
	repo := &countingRepo{promos: samplePromotions()}
	client := newMockClient()
	cache := NewPromotions(repo, client, time.Minute)
	ctx := context.Background()

	first, err := cache.ListActive(ctx, now, promotion.CartKinds...)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, promotion.CartKinds, repo.kinds)
	assert.Equal(t, time.Minute, client.ttls[ActiveKey])

	second, err := cache.ListActive(ctx, now, promotion.CartKinds...)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "second read must be served from cache")
	require.Len(t, second, 3)

	// Round trip keeps everything the engine reads.
	for i, want := range first {
		got := second[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Kind, got.Kind)
		assert.True(t, want.DiscountValue.Equal(got.DiscountValue))
		assert.Equal(t, want.Scope.AppliesTo(), got.Scope.AppliesTo())
		assert.True(t, want.StartsAt.Equal(got.StartsAt))
		assert.True(t, want.EndsAt.Equal(got.EndsAt))
		assert.Equal(t, want.CouponCode, got.CouponCode)
		assert.Equal(t, want.TimesUsed, got.TimesUsed)
		assert.Equal(t, want.Badge, got.Badge)
	}
	assert.True(t, second[1].Scope.Matches(promotion.Target{ProductCode: "A1"}))
	require.NotNil(t, second[1].BundleFreePercent)
	assert.Nil(t, second[1].CartMinAmount)
	require.NotNil(t, second[2].MaxUses)
	assert.Equal(t, 50, *second[2].MaxUses)
}

func TestPromotions_FiltersByKindAndTime(t *testing.T) {
	repo := &countingRepo{promos: samplePromotions()}
	cache := NewPromotions(repo, newMockClient(), time.Minute)
	ctx := context.Background()

	lines, err := cache.ListActive(ctx, now, promotion.LineKinds...)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.EqualValues(t, 1, lines[0].ID)

	// An hour later the line promotion and the coupon have ended.
	later, err := cache.ListActive(ctx, now.Add(time.Hour+time.Minute), promotion.CartKinds...)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.EqualValues(t, 2, later[0].ID)
}

func TestPromotions_StartingWithinTTLAppearsOnTime(t *testing.T) {
	promos := samplePromotions()
	promos = append(promos, promotion.Promotion{
		ID:            4,
		Name:          "Flash",
		Kind:          promotion.KindFlashSale,
		DiscountType:  promotion.DiscountFixedAmount,
		DiscountValue: decimal.NewFromInt(50),
		Scope:         promotion.AllProducts{},
		StartsAt:      now.Add(2 * time.Minute),
		EndsAt:        now.Add(time.Hour),
		IsActive:      true,
	}, promotion.Promotion{
		ID:       5,
		Name:     "Domani",
		Kind:     promotion.KindFlashSale,
		Scope:    promotion.AllProducts{},
		StartsAt: now.Add(24 * time.Hour),
		EndsAt:   now.Add(48 * time.Hour),
		IsActive: true,
	})
	repo := &countingRepo{promos: promos}
	cache := NewPromotions(repo, newMockClient(), 5*time.Minute)
	ctx := context.Background()

	before, err := cache.ListActive(ctx, now, promotion.LineKinds...)
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.True(t, now.Equal(repo.from))
	assert.True(t, now.Add(5*time.Minute).Equal(repo.to))

	after, err := cache.ListActive(ctx, now.Add(3*time.Minute), promotion.LineKinds...)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "second read must be served from cache")
	require.Len(t, after, 2)
	assert.ElementsMatch(t, []int64{1, 4}, []int64{after[0].ID, after[1].ID})
}

func TestPromotions_RedisDownFallsThrough(t *testing.T) {
	repo := &countingRepo{promos: samplePromotions()}
	client := newMockClient()
	client.getErr = errors.New("dial tcp: connection refused")
	client.setErr = errors.New("dial tcp: connection refused")
	cache := NewPromotions(repo, client, time.Minute)

	got, err := cache.ListActive(context.Background(), now, promotion.CartKinds...)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, repo.calls)
}

func TestPromotions_CorruptEntryIsReplaced(t *testing.T) {
	repo := &countingRepo{promos: samplePromotions()}
	client := newMockClient()
	client.data[ActiveKey] = `{"not":"an array"}`
	cache := NewPromotions(repo, client, time.Minute)

	got, err := cache.ListActive(context.Background(), now, promotion.CartKinds...)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, repo.calls)
	assert.NotEqual(t, `{"not":"an array"}`, client.data[ActiveKey])
}

func TestPromotions_RepositoryErrorPropagates(t *testing.T) {
	repo := &countingRepo{err: errors.New("db down")}
	cache := NewPromotions(repo, newMockClient(), time.Minute)

	_, err := cache.ListActive(context.Background(), now, promotion.CartKinds...)
	require.Error(t, err)
}

func TestPromotions_Invalidate(t *testing.T) {
	repo := &countingRepo{promos: samplePromotions()}
	client := newMockClient()
	cache := NewPromotions(repo, client, time.Minute)
	ctx := context.Background()

	_, err := cache.ListActive(ctx, now, promotion.CartKinds...)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx))

	_, err = cache.ListActive(ctx, now, promotion.CartKinds...)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}
