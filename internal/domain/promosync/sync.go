// Package promosync replaces the stored promotion set with the one exported
// by the management system.
package promosync

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// ErrEmptyBatch is returned when a sync carries no promotions.
var ErrEmptyBatch = errors.New("Nessuna promozione ricevuta")

const bloomFPR = 0.001

// Store persists promotions.
type Store interface {
	Upsert(ctx context.Context, p promotion.Promotion) error
	DeleteMissing(ctx context.Context, keep []int64) (int64, error)
	// CouponCodes returns every stored coupon code.
	CouponCodes(ctx context.Context) ([]string, error)
	// CouponOwner returns the id of the stored promotion holding code, or 0.
	CouponOwner(ctx context.Context, code string) (int64, error)
}

// Invalidator drops cached promotion sets after a sync.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Report summarises a sync. Per-record problems do not fail the sync; they
// are listed in Errors.
type Report struct {
	Synced  int
	Deleted int64
	Errors  []string
}

// Message is the customer-facing summary.
func (r Report) Message() string {
	return fmt.Sprintf("Sincronizzate %d promozioni", r.Synced)
}

// Syncer applies batches to a Store.
type Syncer struct {
	store Store
	cache Invalidator
	loc   *time.Location
}

// NewSyncer creates a Syncer. Dates without a zone are read in loc. cache
// may be nil.
func NewSyncer(store Store, cache Invalidator, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.UTC
	}
	return &Syncer{store: store, cache: cache, loc: loc}
}

// Sync prunes promotions missing upstream, when the batch says which ones
// exist, then upserts every valid record. Records whose coupon code is held
// by another stored promotion or by an earlier record of the batch are
// rejected.
func (s *Syncer) Sync(ctx context.Context, b Batch) (Report, error) {
	var rep Report
	if len(b.Promotions) == 0 {
		return rep, ErrEmptyBatch
	}
	lg := zctx.From(ctx)

	if b.Prune {
		deleted, err := s.store.DeleteMissing(ctx, b.ActiveIDs)
		if err != nil {
			return rep, errors.Wrap(err, "prune promotions")
		}
		rep.Deleted = deleted
		if deleted > 0 {
			lg.Info("Deleted stale promotions", zap.Int64("deleted", deleted))
		}
	}

	stored, err := s.store.CouponCodes(ctx)
	if err != nil {
		return rep, errors.Wrap(err, "list coupon codes")
	}
	codes := newCodeSet(s.store, stored, len(b.Promotions))

	for _, rec := range b.Promotions {
		if rec.ID == 0 {
			rep.Errors = append(rep.Errors, "Promozione senza ID saltata")
			continue
		}
		p, err := rec.Promotion(s.loc)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("Promozione #%d: %v", rec.ID, err))
			continue
		}
		if p.CouponCode != "" {
			owner, err := codes.owner(ctx, p.CouponCode, p.ID)
			if err != nil {
				return rep, errors.Wrapf(err, "check coupon code of promotion %d", p.ID)
			}
			if owner != 0 {
				rep.Errors = append(rep.Errors, fmt.Sprintf(
					"Promozione #%d: codice coupon %s già usato dalla promozione #%d", p.ID, p.CouponCode, owner))
				continue
			}
		}
		if err := s.store.Upsert(ctx, p); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("Promozione #%d: %v", p.ID, err))
			continue
		}
		if p.CouponCode != "" {
			codes.add(p.CouponCode, p.ID)
		}
		rep.Synced++
	}

	if s.cache != nil && (rep.Synced > 0 || rep.Deleted > 0) {
		if err := s.cache.Invalidate(ctx); err != nil {
			lg.Warn("Promotion cache invalidation failed", zap.Error(err))
		}
	}

	lg.Info("Promotions synced",
		zap.Int("synced", rep.Synced),
		zap.Int64("deleted", rep.Deleted),
		zap.Int("errors", len(rep.Errors)),
	)
	return rep, nil
}

type claim struct {
	code string
	id   int64
}

// codeSet finds coupon codes that are already taken. Stored codes and codes
// accepted from the batch go into a bloom filter; only a filter hit is
// confirmed, against the accepted records and then the store.
type codeSet struct {
	store   Store
	filter  *bloom.BloomFilter
	claimed []claim
}

func newCodeSet(store Store, stored []string, n int) *codeSet {
	filter := bloom.NewWithEstimates(uint(max(len(stored)+n, 1)), bloomFPR)
	for _, code := range stored {
		filter.AddString(promotion.NormalizeCoupon(code))
	}
	return &codeSet{store: store, filter: filter}
}

// owner returns the id of another promotion holding code, or 0.
func (c *codeSet) owner(ctx context.Context, code string, id int64) (int64, error) {
	code = promotion.NormalizeCoupon(code)
	if !c.filter.TestString(code) {
		return 0, nil
	}
	if i := slices.IndexFunc(c.claimed, func(cl claim) bool { return cl.code == code && cl.id != id }); i >= 0 {
		return c.claimed[i].id, nil
	}
	owner, err := c.store.CouponOwner(ctx, code)
	if err != nil || owner == id {
		return 0, err
	}
	return owner, nil
}

// add records code as taken by id.
func (c *codeSet) add(code string, id int64) {
	code = promotion.NormalizeCoupon(code)
	c.filter.AddString(code)
	c.claimed = append(c.claimed, claim{code: code, id: id})
}
