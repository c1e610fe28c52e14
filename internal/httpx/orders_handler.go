package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type OrderStore interface {
	Get(ctx context.Context, id string) (*orders.Order, error)
	GetBySubscription(ctx context.Context, subscriptionID string) ([]*orders.Order, error)
	AdvanceStatus(ctx context.Context, id string, to orders.Status, tracking string) (*orders.Order, error)
}

type OrdersHandler struct {
	Repo OrderStore
	Log  *logger.Logger
}

type advanceReq struct {
	Status         orders.Status `json:"status" validate:"required,oneof=paid fulfilled shipped delivered cancelled"`
	TrackingNumber string        `json:"tracking_number"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.advance)
	r.Get("/subscriptions/{id}/orders", h.listBySubscription)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) listBySubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Repo.GetBySubscription(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(list, func(o *orders.Order, _ int) orderView { return toOrderView(o) }))
}

func (h *OrdersHandler) advance(w http.ResponseWriter, r *http.Request) {
	var req advanceReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.Repo.AdvanceStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.TrackingNumber)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}
