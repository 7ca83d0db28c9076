package promosync

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

type memStore struct {
	rows      map[int64]promotion.Promotion
	keep      []int64
	pruned    bool
	upsertErr map[int64]error
	deleteErr error
	// lookups counts exact coupon owner queries.
	lookups int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]promotion.Promotion)}
}

func (m *memStore) Upsert(_ context.Context, p promotion.Promotion) error {
	if err := m.upsertErr[p.ID]; err != nil {
		return err
	}
	m.rows[p.ID] = p
	return nil
}

func (m *memStore) DeleteMissing(_ context.Context, keep []int64) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.pruned = true
	m.keep = keep
	return 2, nil
}

func (m *memStore) CouponCodes(context.Context) ([]string, error) {
	var codes []string
	for _, p := range m.rows {
		if p.CouponCode != "" {
			codes = append(codes, p.CouponCode)
		}
	}
	return codes, nil
}

func (m *memStore) CouponOwner(_ context.Context, code string) (int64, error) {
	m.lookups++
	for id, p := range m.rows {
		if promotion.NormalizeCoupon(p.CouponCode) == code {
			return id, nil
		}
	}
	return 0, nil
}

type countingCache struct{ calls int }

func (c *countingCache) Invalidate(context.Context) error {
	c.calls++
	return nil
}

const payload = `{
	"promotions": [
		{
			"id": 1,
			"name": "Saldi anelli",
			"type": "percentage",
			"discount_value": "20.00",
			"discount_type": "percentage",
			"applies_to": "category",
			"category_slug": "anelli",
			"starts_at": "2025-06-01T00:00:00Z",
			"ends_at": "2025-06-30 23:59:59",
			"show_countdown": 1,
			"promo_badge": "-20%",
			"is_active": true
		},
		{
			"id": "2",
			"name": "Coupon estate",
			"type": "coupon",
			"discount_value": 10,
			"coupon_code": " estate10 ",
			"max_uses": 100,
			"product_codes": "[\"M1\",\"M2\"]",
			"applies_to": "specific_products",
			"starts_at": "2025-06-01",
			"ends_at": "2025-08-31",
			"is_active": "0",
			"unknown_field": {"nested": [1, 2]}
		}
	],
	"active_ids": [1, 2]
}`

func TestDecode(t *testing.T) {
	b, err := Decode([]byte(payload))
	require.NoError(t, err)

	require.Len(t, b.Promotions, 2)
	assert.True(t, b.Prune)
	assert.Equal(t, []int64{1, 2}, b.ActiveIDs)

	first := b.Promotions[0]
	assert.EqualValues(t, 1, first.ID)
	assert.Equal(t, "anelli", first.CategorySlug)
	assert.True(t, decimal.NewFromInt(20).Equal(first.DiscountValue))
	assert.True(t, first.ShowCountdown)
	require.NotNil(t, first.IsActive)
	assert.True(t, *first.IsActive)

	second := b.Promotions[1]
	assert.EqualValues(t, 2, second.ID)
	assert.Equal(t, []string{"M1", "M2"}, second.ProductCodes)
	require.NotNil(t, second.MaxUses)
	assert.Equal(t, 100, *second.MaxUses)
	require.NotNil(t, second.IsActive)
	assert.False(t, *second.IsActive)
}

func TestDecode_BareArray(t *testing.T) {
	b, err := Decode([]byte(`[{"id": 5, "starts_at": "2025-01-01", "ends_at": "2025-01-02"}]`))
	require.NoError(t, err)
	require.Len(t, b.Promotions, 1)
	assert.False(t, b.Prune)
}

func TestDecode_NullActiveIDsDoesNotPrune(t *testing.T) {
	b, err := Decode([]byte(`{"promotions": [], "active_ids": null}`))
	require.NoError(t, err)
	assert.False(t, b.Prune)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`"nope"`))
	require.Error(t, err)

	_, err = Decode([]byte(`{"promotions": [{"id": 1.5}]}`))
	require.Error(t, err)
}

func TestRecord_Promotion(t *testing.T) {
	rome := time.FixedZone("CEST", 2*60*60)

	b, err := Decode([]byte(payload))
	require.NoError(t, err)

	p, err := b.Promotions[1].Promotion(rome)
	require.NoError(t, err)

	assert.Equal(t, promotion.KindCoupon, p.Kind)
	assert.Equal(t, promotion.DiscountPercentage, p.DiscountType)
	assert.Equal(t, "ESTATE10", p.CouponCode)
	assert.Equal(t, 1, p.MaxUsesPerUser)
	assert.False(t, p.IsActive)
	assert.True(t, time.Date(2025, 6, 1, 0, 0, 0, 0, rome).Equal(p.StartsAt))
	assert.True(t, p.Scope.Matches(promotion.Target{ProductCode: "M2"}))

	_, err = Record{ID: 9, Type: "bogo", StartsAt: "2025-01-01", EndsAt: "2025-01-02"}.Promotion(time.UTC)
	require.ErrorIs(t, err, promotion.ErrUnknownKind)

	_, err = Record{ID: 9, StartsAt: "2025-02-01", EndsAt: "2025-01-01"}.Promotion(time.UTC)
	require.Error(t, err)
}

func TestRecord_Promotion_DiscountBounds(t *testing.T) {
	pct := func(v string) *decimal.Decimal {
		x := decimal.RequireFromString(v)
		return &x
	}
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{name: "full percentage", rec: Record{DiscountValue: decimal.NewFromInt(100)}},
		{name: "percentage above 100", rec: Record{DiscountValue: decimal.NewFromInt(150)}, wantErr: true},
		{name: "negative value", rec: Record{DiscountValue: decimal.NewFromInt(-5)}, wantErr: true},
		{name: "fixed amount above 100", rec: Record{DiscountValue: decimal.NewFromInt(150), DiscountType: "fixed_amount"}},
		{name: "bundle percent above 100", rec: Record{Type: "bundle_2_1", BundleFreePercent: pct("120")}, wantErr: true},
		{name: "bundle percent half", rec: Record{Type: "bundle_2_1", BundleFreePercent: pct("50")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			rec.ID = 1
			rec.StartsAt = "2025-01-01"
			rec.EndsAt = "2025-12-31"

			_, err := rec.Promotion(time.UTC)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSyncer_Sync(t *testing.T) {
	store := newMemStore()
	cache := &countingCache{}
	s := NewSyncer(store, cache, time.UTC)

	rep, err := s.Sync(context.Background(), Batch{
		Promotions: []Record{
			{ID: 1, Name: "A", CouponCode: "dup", StartsAt: "2025-01-01", EndsAt: "2025-12-31"},
			{ID: 2, Name: "B", CouponCode: "DUP ", StartsAt: "2025-01-01", EndsAt: "2025-12-31"},
			{ID: 0, Name: "no id"},
			{ID: 3, Name: "C", Type: "bogus", StartsAt: "2025-01-01", EndsAt: "2025-12-31"},
			{ID: 4, Name: "D", CouponCode: "OTHER", StartsAt: "2025-01-01", EndsAt: "2025-12-31"},
		},
		ActiveIDs: []int64{1, 2, 3, 4},
		Prune:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Synced)
	assert.EqualValues(t, 2, rep.Deleted)
	assert.Equal(t, "Sincronizzate 2 promozioni", rep.Message())
	require.Len(t, rep.Errors, 3)
	assert.Contains(t, rep.Errors[0], "già usato dalla promozione #1")
	assert.Equal(t, "Promozione senza ID saltata", rep.Errors[1])
	assert.Contains(t, rep.Errors[2], "Promozione #3")

	assert.Contains(t, store.rows, int64(1))
	assert.Contains(t, store.rows, int64(4))
	assert.NotContains(t, store.rows, int64(2))
	assert.Equal(t, []int64{1, 2, 3, 4}, store.keep)
	assert.Equal(t, 1, cache.calls)
}

func TestSyncer_Sync_StoredCouponCodes(t *testing.T) {
	store := newMemStore()
	store.rows[50] = promotion.Promotion{ID: 50, Kind: promotion.KindCoupon, CouponCode: "VIP"}

	rep, err := NewSyncer(store, nil, time.UTC).Sync(context.Background(), Batch{
		Promotions: []Record{
			{ID: 7, Type: "coupon", CouponCode: " vip", StartsAt: "2025-01-01", EndsAt: "2025-12-31"},
			{ID: 50, Type: "coupon", CouponCode: "VIP", StartsAt: "2025-01-01", EndsAt: "2025-12-31"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Synced)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "Promozione #7")
	assert.Contains(t, rep.Errors[0], "già usato dalla promozione #50")
	assert.NotContains(t, store.rows, int64(7))
}

func TestSyncer_Sync_OwnerLookupOnlyOnFilterHit(t *testing.T) {
	store := newMemStore()
	store.rows[50] = promotion.Promotion{ID: 50, Kind: promotion.KindCoupon, CouponCode: "VIP"}

	var recs []Record
	for i, code := range []string{"ESTATE10", "NATALE20", "BENVENUTO10", "SALDI30"} {
		recs = append(recs, Record{
			ID: int64(i + 1), Type: "coupon", CouponCode: code, StartsAt: "2025-01-01", EndsAt: "2025-12-31",
		})
	}

	rep, err := NewSyncer(store, nil, time.UTC).Sync(context.Background(), Batch{Promotions: recs})
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Synced)
	assert.Empty(t, rep.Errors)
	assert.Zero(t, store.lookups)
}

func TestSyncer_Sync_NoPruneWithoutActiveIDs(t *testing.T) {
	store := newMemStore()
	s := NewSyncer(store, nil, nil)

	_, err := s.Sync(context.Background(), Batch{
		Promotions: []Record{{ID: 1, StartsAt: "2025-01-01", EndsAt: "2025-12-31"}},
	})
	require.NoError(t, err)
	assert.False(t, store.pruned)
}

func TestSyncer_Sync_UpsertErrorIsReported(t *testing.T) {
	store := newMemStore()
	store.upsertErr = map[int64]error{1: errors.New("duplicate key value violates unique constraint")}
	cache := &countingCache{}
	s := NewSyncer(store, cache, time.UTC)

	rep, err := s.Sync(context.Background(), Batch{
		Promotions: []Record{{ID: 1, StartsAt: "2025-01-01", EndsAt: "2025-12-31"}},
	})
	require.NoError(t, err)
	assert.Zero(t, rep.Synced)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "unique constraint")
	assert.Zero(t, cache.calls)
}

func TestSyncer_Sync_Errors(t *testing.T) {
	s := NewSyncer(newMemStore(), nil, time.UTC)
	_, err := s.Sync(context.Background(), Batch{})
	require.ErrorIs(t, err, ErrEmptyBatch)

	store := newMemStore()
	store.deleteErr = errors.New("conn closed")
	_, err = NewSyncer(store, nil, time.UTC).Sync(context.Background(), Batch{
		Promotions: []Record{{ID: 1}},
		Prune:      true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune promotions")
}
