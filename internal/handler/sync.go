package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/gaurosa/storefront/internal/domain/promosync"
)

// SyncPromotions handles POST /api/sync/promotions, pushed by the
// management system.
func (h *Handler) SyncPromotions(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r, maxSyncBodyBytes)
	if err != nil {
		fail(w, r, err)
		return
	}
	batch, err := promosync.Decode(data)
	if err != nil {
		fail(w, r, badRequest(http.StatusBadRequest, msgInvalidJSON))
		return
	}

	rep, err := h.syncer.Sync(r.Context(), batch)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("synced")
		e.Int(rep.Synced)
		e.FieldStart("deleted")
		e.Int64(rep.Deleted)
		e.FieldStart("errors")
		strs(e, rep.Errors)
		e.FieldStart("message")
		e.Str(rep.Message())
	})
}

// ListSyncedPromotions handles GET /api/sync/promotions: every active
// promotion including coupon and usage data.
func (h *Handler) ListSyncedPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promotions.Active(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("data")
		e.ArrStart()
		for i := range promos {
			encodePromotion(e, &promos[i], true)
		}
		e.ArrEnd()
	})
}
