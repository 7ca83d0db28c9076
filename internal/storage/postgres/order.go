package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gaurosa/storefront/internal/domain/checkout"
)

const (
	// The cap check and the increment are one statement, so two concurrent
	// checkouts can never both take the last use.
	redeemCouponSQL = `UPDATE promotions
		SET times_used = times_used + 1, updated_at = now()
		WHERE id = $1 AND (max_uses IS NULL OR times_used < max_uses)`

	nextOrderSeqSQL = `INSERT INTO order_counters (day, last) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last = order_counters.last + 1
		RETURNING last`

	createOrderSQL = `INSERT INTO orders (
			id, order_number, lines, subtotal, discount, shipping, total, tax_included,
			coupon_code, coupon_promotion_id, promotion_ids, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)`
)

var _ checkout.Repository = (*OrderRepository)(nil)

// OrderRepository implements checkout.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create redeems the promotions unlocked by the coupon code, assigns the
// order number and inserts the order in one transaction. The first redeemed
// promotion is stored as the order's coupon promotion. The lines are stored
// as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *checkout.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var couponPromotionID *int64
		for _, id := range o.RedeemedPromotionIDs {
			tag, err := tx.Exec(ctx, redeemCouponSQL, id)
			if err != nil {
				return errors.Wrapf(err, "redeem promotion %d", id)
			}
			if tag.RowsAffected() == 0 {
				return checkout.ErrCouponExhausted
			}
			if couponPromotionID == nil {
				couponPromotionID = &id
			}
		}

		day := o.CreatedAt.UTC()
		var seq int
		if err := tx.QueryRow(ctx, nextOrderSeqSQL, day).Scan(&seq); err != nil {
			return errors.Wrap(err, "next order number")
		}
		o.Number = fmt.Sprintf("GAU-%s-%03d", day.Format("20060102"), seq)

		promotionIDs := o.PromotionIDs
		if promotionIDs == nil {
			promotionIDs = []int64{}
		}
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Number, linesJSON, o.Subtotal, o.Discount, o.Shipping, o.Total, o.TaxIncluded,
			o.CouponCode, couponPromotionID, promotionIDs, o.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "create order %q", o.ID)
		}
		return nil
	})
}
