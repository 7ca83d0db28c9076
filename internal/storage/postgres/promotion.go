package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/domain/promotion"
)

const (
	promotionColumns = `id, name, COALESCE(description, ''), type, discount_type, discount_value,
		applies_to, COALESCE(category_slug, ''), COALESCE(tag_slug, ''), product_codes,
		bundle_free_percent, cart_min_amount, COALESCE(coupon_code, ''),
		max_uses, max_uses_per_user, times_used, starts_at, ends_at,
		show_countdown, COALESCE(promo_badge, ''), COALESCE(promo_message, ''), is_active`

	// Specific products first, then categories, tags and blanket rules;
	// larger discounts first within a tier.
	listActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE is_active AND starts_at <= $2 AND ends_at >= $1 AND type = ANY($3)
		ORDER BY CASE applies_to
				WHEN 'specific_products' THEN 1
				WHEN 'category' THEN 2
				WHEN 'tag' THEN 3
				WHEN 'all_products' THEN 4
				ELSE 5
			END,
			discount_value DESC,
			id`

	listCouponCodesSQL = `SELECT coupon_code FROM promotions WHERE coupon_code IS NOT NULL`

	couponOwnerSQL = `SELECT id FROM promotions
		WHERE upper(btrim(coupon_code)) = $1
		ORDER BY id
		LIMIT 1`

	upsertPromotionSQL = `INSERT INTO promotions (
			id, name, description, type, discount_value, discount_type,
			applies_to, category_slug, tag_slug, product_codes,
			bundle_free_percent, cart_min_amount,
			coupon_code, max_uses, max_uses_per_user,
			starts_at, ends_at, show_countdown,
			promo_badge, promo_message, is_active
		) VALUES (
			$1, $2, NULLIF($3, ''), $4, $5, $6,
			$7, NULLIF($8, ''), NULLIF($9, ''), $10,
			$11, $12,
			NULLIF($13, ''), $14, $15,
			$16, $17, $18,
			NULLIF($19, ''), NULLIF($20, ''), $21
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			discount_value = EXCLUDED.discount_value,
			discount_type = EXCLUDED.discount_type,
			applies_to = EXCLUDED.applies_to,
			category_slug = EXCLUDED.category_slug,
			tag_slug = EXCLUDED.tag_slug,
			product_codes = EXCLUDED.product_codes,
			bundle_free_percent = EXCLUDED.bundle_free_percent,
			cart_min_amount = EXCLUDED.cart_min_amount,
			coupon_code = EXCLUDED.coupon_code,
			max_uses = EXCLUDED.max_uses,
			max_uses_per_user = EXCLUDED.max_uses_per_user,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			show_countdown = EXCLUDED.show_countdown,
			promo_badge = EXCLUDED.promo_badge,
			promo_message = EXCLUDED.promo_message,
			is_active = EXCLUDED.is_active,
			updated_at = now()`

	deleteMissingPromotionsSQL = `DELETE FROM promotions WHERE NOT (id = ANY($1))`
)

var (
	_ promotion.Repository = (*PromotionRepository)(nil)
	_ promosync.Store      = (*PromotionRepository)(nil)
)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListActive returns promotions of the given kinds active at now, in
// evaluation order.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time, kinds ...promotion.Kind) ([]promotion.Promotion, error) {
	return r.ListOverlapping(ctx, now, now, kinds...)
}

// ListOverlapping returns switched-on promotions of the given kinds whose
// validity window intersects [from, to].
func (r *PromotionRepository) ListOverlapping(ctx context.Context, from, to time.Time, kinds ...promotion.Kind) ([]promotion.Promotion, error) {
	types := make([]string, len(kinds))
	for i, k := range kinds {
		types[i] = string(k)
	}

	rows, err := r.pool.Query(ctx, listActivePromotionsSQL, from, to, types)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}
	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, errors.Wrap(err, "scan promotions")
	}
	return promos, nil
}

// Upsert inserts or updates a promotion by id. The usage counter is never
// overwritten.
func (r *PromotionRepository) Upsert(ctx context.Context, p promotion.Promotion) error {
	appliesTo, categorySlug, tagSlug, codes := promotion.ScopeParams(p.Scope)
	if codes == nil {
		codes = []string{}
	}

	var maxUses *int32
	if p.MaxUses != nil {
		v := int32(*p.MaxUses)
		maxUses = &v
	}

	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		p.ID, p.Name, p.Description, string(p.Kind), p.DiscountValue, string(p.DiscountType),
		appliesTo, categorySlug, tagSlug, codes,
		p.BundleFreePercent, p.CartMinAmount,
		p.CouponCode, maxUses, int32(p.MaxUsesPerUser),
		p.StartsAt, p.EndsAt, p.ShowCountdown,
		p.Badge, p.Message, p.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert promotion %d", p.ID)
	}
	return nil
}

// CouponCodes returns the coupon code of every stored promotion that has one.
func (r *PromotionRepository) CouponCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupon codes")
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan coupon codes")
	}
	return codes, nil
}

// CouponOwner returns the id of the promotion holding the normalised code,
// or 0 when no promotion does.
func (r *PromotionRepository) CouponOwner(ctx context.Context, code string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, couponOwnerSQL, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "find owner of coupon %s", code)
	}
	return id, nil
}

// DeleteMissing removes every promotion whose id is not in keep and returns
// the number of deleted rows. An empty keep list deletes everything.
func (r *PromotionRepository) DeleteMissing(ctx context.Context, keep []int64) (int64, error) {
	if keep == nil {
		keep = []int64{}
	}
	tag, err := r.pool.Exec(ctx, deleteMissingPromotionsSQL, keep)
	if err != nil {
		return 0, errors.Wrap(err, "delete missing promotions")
	}
	return tag.RowsAffected(), nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p                         promotion.Promotion
		kind, discountType        string
		appliesTo                 string
		categorySlug, tagSlug     string
		productCodes              []string
		maxUses                   *int32
		maxUsesPerUser, timesUsed int32
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &kind, &discountType, &p.DiscountValue,
		&appliesTo, &categorySlug, &tagSlug, &productCodes,
		&p.BundleFreePercent, &p.CartMinAmount, &p.CouponCode,
		&maxUses, &maxUsesPerUser, &timesUsed, &p.StartsAt, &p.EndsAt,
		&p.ShowCountdown, &p.Badge, &p.Message, &p.IsActive,
	)
	if err != nil {
		return p, err
	}

	// Unknown types are kept as-is; the engine never applies them.
	p.Kind = promotion.Kind(kind)
	p.DiscountType = promotion.ParseDiscountType(discountType)
	p.Scope = promotion.ParseScope(appliesTo, categorySlug, tagSlug, productCodes)
	if maxUses != nil {
		v := int(*maxUses)
		p.MaxUses = &v
	}
	p.MaxUsesPerUser = int(maxUsesPerUser)
	p.TimesUsed = int(timesUsed)
	return p, nil
}
