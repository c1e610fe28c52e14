package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/subscription"
	"github.com/go-chi/chi/v5"
)

type SubscriptionsHandler struct {
	Service *subscription.Service
	Log     *logger.Logger
}

type updateItemsReq struct {
	Items []subscription.Item `json:"items" validate:"required,min=1,dive"`
}

func (h *SubscriptionsHandler) Register(r chi.Router) {
	r.Post("/subscriptions", h.create)
	r.Get("/subscriptions/{id}", h.get)
	r.Post("/subscriptions/{id}/preview", h.preview)
	r.Post("/subscriptions/{id}/pause", h.action(h.Service.Pause))
	r.Post("/subscriptions/{id}/resume", h.action(h.Service.Resume))
	r.Post("/subscriptions/{id}/cancel", h.action(h.Service.Cancel))
	r.Put("/subscriptions/{id}/items", h.updateItems)
}

func (h *SubscriptionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req subscription.CreateParams
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	sub, err := h.Service.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionView(sub))
}

func (h *SubscriptionsHandler) get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionView(sub))
}

func (h *SubscriptionsHandler) preview(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *SubscriptionsHandler) action(op func(context.Context, string) (*subscription.Subscription, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := op(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubscriptionView(sub))
	}
}

func (h *SubscriptionsHandler) updateItems(w http.ResponseWriter, r *http.Request) {
	var req updateItemsReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	sub, err := h.Service.UpdateItems(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionView(sub))
}
