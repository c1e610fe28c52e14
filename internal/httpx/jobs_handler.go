package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-recurring-billing/internal/jobs"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/subscription"
	"github.com/go-chi/chi/v5"
)

type BillingJob interface {
	ProcessDueSubscriptions(ctx context.Context) (*subscription.BatchResult, error)
}

type SweepJob interface {
	SweepExpiredReservations(ctx context.Context, batchSize int) (int, error)
}

// JobsHandler triggers the periodic jobs on demand, under the same lease as cmd/scheduler.
type JobsHandler struct {
	Runner     *jobs.Runner
	Billing    BillingJob
	Sweep      SweepJob
	SweepBatch int
	Log        *logger.Logger
}

func (h *JobsHandler) Register(r chi.Router) {
	r.Post("/jobs/billing", h.billing)
	r.Post("/jobs/sweep", h.sweep)
}

func (h *JobsHandler) billing(w http.ResponseWriter, r *http.Request) {
	var res *subscription.BatchResult
	ran, err := h.Runner.Run(r.Context(), jobs.Billing, func(ctx context.Context) error {
		var err error
		res, err = h.Billing.ProcessDueSubscriptions(ctx)
		return err
	})
	h.finish(w, r, ran, err, res)
}

func (h *JobsHandler) sweep(w http.ResponseWriter, r *http.Request) {
	released := 0
	ran, err := h.Runner.Run(r.Context(), jobs.Sweep, func(ctx context.Context) error {
		var err error
		released, err = h.Sweep.SweepExpiredReservations(ctx, h.SweepBatch)
		return err
	})
	h.finish(w, r, ran, err, map[string]int{"released_count": released})
}

func (h *JobsHandler) finish(w http.ResponseWriter, r *http.Request, ran bool, err error, body any) {
	switch {
	case err != nil:
		writeError(w, r, h.Log, err)
	case !ran:
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
	default:
		writeJSON(w, http.StatusOK, body)
	}
}
