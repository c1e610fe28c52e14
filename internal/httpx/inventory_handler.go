package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// SnapshotCache is the read-through cache behind GET /inventory/{variantID}.
type SnapshotCache interface {
	Get(ctx context.Context, variantID string) (*inventory.Snapshot, error)
	Set(ctx context.Context, s *inventory.Snapshot) error
	Invalidate(ctx context.Context, variantIDs ...string) error
}

type InventoryHandler struct {
	Ledger *inventory.Ledger
	Cache  SnapshotCache // optional
	Log    *logger.Logger
}

type adjustReq struct {
	Adjustments []inventory.AdjustParams `json:"adjustments" validate:"required,min=1,dive"`
}

type reserveItem struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type reserveReq struct {
	Ref        string        `json:"ref" validate:"required"`
	Items      []reserveItem `json:"items" validate:"required,min=1,dive"`
	TTLSeconds int           `json:"ttl_seconds" validate:"gte=0"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory/{variantID}", h.snapshot)
	r.Post("/inventory/adjustments", h.adjust)
	r.Post("/inventory/reservations", h.reserve)
	r.Post("/inventory/reservations/{id}/confirm", h.confirm)
	r.Post("/inventory/reservations/{id}/cancel", h.cancel)
}

func (h *InventoryHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "variantID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if s, err := h.Cache.Get(ctx, id); err == nil && s != nil {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	s, err := h.Ledger.Snapshot(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, s); err != nil {
			h.Log.Warnw("stock cache set", "variant_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	recs, err := h.Ledger.AdjustMany(r.Context(), req.Adjustments)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidate(r.Context(), lo.Map(recs, func(i *inventory.Inventory, _ int) string { return i.VariantID }))
	writeJSON(w, http.StatusOK, lo.Map(recs, func(i *inventory.Inventory, _ int) inventoryView { return toInventoryView(i) }))
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	items := lo.Map(req.Items, func(it reserveItem, _ int) inventory.Item {
		return inventory.Item{VariantID: it.VariantID, Quantity: it.Quantity}
	})
	res, err := h.Ledger.ReserveMany(r.Context(), req.Ref, items, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidate(r.Context(), lo.Map(items, func(it inventory.Item, _ int) string { return it.VariantID }))
	writeJSON(w, http.StatusCreated, lo.Map(res, func(rv *inventory.Reservation, _ int) reservationView { return toReservationView(rv) }))
}

func (h *InventoryHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.Ledger.Confirm)
}

func (h *InventoryHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.Ledger.Cancel)
}

func (h *InventoryHandler) settle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*inventory.Reservation, error)) {
	res, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.invalidate(r.Context(), []string{res.VariantID})
	writeJSON(w, http.StatusOK, toReservationView(res))
}

func (h *InventoryHandler) invalidate(ctx context.Context, variantIDs []string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, lo.Uniq(variantIDs)...); err != nil {
		h.Log.Warnw("stock cache invalidate", "error", err)
	}
}
