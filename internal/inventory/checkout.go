package inventory

import (
	"context"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/samber/lo"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventCheckoutStarted   = "CheckoutStarted"
	EventCheckoutPaid      = "CheckoutPaid"
	EventCheckoutAbandoned = "CheckoutAbandoned"

	EventStockReserved  = "StockReserved"
	EventStockRejected  = "StockRejected"
	EventStockCommitted = "StockCommitted"
	EventStockReleased  = "StockReleased"
	EventStockLow       = "StockLow"
)

const (
	RejectOutOfStock        = "OUT_OF_STOCK"
	RejectInvalidRequest    = "INVALID_REQUEST"
	RejectReservationClosed = "RESERVATION_CLOSED"
)

type CheckoutStartedPayload struct {
	Ref   string `json:"ref"`
	Items []Item `json:"items"`
}

type CheckoutRefPayload struct {
	Ref string `json:"ref"`
}

type StockReservedPayload struct {
	Ref       string    `json:"ref"`
	Items     []Item    `json:"items"`
	ExpiresAt time.Time `json:"expires_at"`
}

type StockRejectedPayload struct {
	Ref       string     `json:"ref"`
	Reason    string     `json:"reason"`
	Shortages []Shortage `json:"shortages,omitempty"`
}

type StockLowPayload struct {
	VariantID        string `json:"variant_id"`
	AvailableForSale int    `json:"available_for_sale"`
}

// Deduper remembers event ids already handled.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type Publisher interface {
	PublishEnvelope(env kafkax.Envelope)
}

// SnapshotCache is invalidated after every mutation driven by an event.
type SnapshotCache interface {
	Invalidate(ctx context.Context, variantIDs ...string) error
}

// CheckoutHandler drives the ledger from checkout events and reports the outcome on the stock topic.
type CheckoutHandler struct {
	Ledger      *Ledger
	Dedup       Deduper
	Stock       Publisher
	Cache       SnapshotCache // optional
	ServiceName string
	TTL         time.Duration
	Log         *logger.Logger
}

// Handle is installed as the consumer handler. Business rejections are published
// and acknowledged; only transient failures return an error so the message is redelivered.
func (h *CheckoutHandler) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		h.Log.Warnw("dropping undecodable message", "partition", m.Partition, "offset", m.Offset, "error", err)
		return nil
	}
	switch env.EventType {
	case EventCheckoutStarted, EventCheckoutPaid, EventCheckoutAbandoned:
	default:
		return nil
	}

	fresh, err := h.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	if err := h.dispatch(ctx, env); err != nil {
		if ferr := h.Dedup.Forget(ctx, env.EventID); ferr != nil {
			h.Log.Errorw("dedup forget failed", "event_id", env.EventID, "error", ferr)
		}
		return err
	}
	return nil
}

func (h *CheckoutHandler) dispatch(ctx context.Context, env kafkax.Envelope) error {
	switch env.EventType {
	case EventCheckoutStarted:
		p, err := kafkax.UnwrapPayload[CheckoutStartedPayload](env.Payload)
		if err != nil {
			h.Log.Warnw("bad checkout payload", "event_id", env.EventID, "error", err)
			return nil
		}
		return h.reserve(ctx, env, p)
	case EventCheckoutPaid, EventCheckoutAbandoned:
		p, err := kafkax.UnwrapPayload[CheckoutRefPayload](env.Payload)
		if err != nil {
			h.Log.Warnw("bad checkout payload", "event_id", env.EventID, "error", err)
			return nil
		}
		if env.EventType == EventCheckoutPaid {
			return h.settle(ctx, env, p.Ref, h.Ledger.ConfirmRef, EventStockCommitted)
		}
		return h.settle(ctx, env, p.Ref, h.Ledger.CancelRef, EventStockReleased)
	}
	return nil
}

func (h *CheckoutHandler) reserve(ctx context.Context, env kafkax.Envelope, p CheckoutStartedPayload) error {
	// redelivery after the dedup mark expired: the hold already exists.
	// Closed holds from an abandoned or expired attempt do not count.
	existing, err := h.Ledger.Reservations(ctx, p.Ref)
	if err != nil {
		return err
	}
	live := lo.Filter(existing, func(r *Reservation, _ int) bool {
		return r.Status == StatusReserved || r.Status == StatusConfirmed
	})
	if len(live) > 0 {
		h.publishReserved(env, p.Ref, live)
		return nil
	}

	res, err := h.Ledger.ReserveMany(ctx, p.Ref, p.Items, h.TTL)
	switch {
	case err == nil:
	case ierr.IsInsufficientStock(err):
		var se *ShortageError
		var shortages []Shortage
		if ierr.As(err, &se) {
			shortages = se.Shortages
		}
		h.publishRejected(env, p.Ref, RejectOutOfStock, shortages)
		return nil
	case ierr.IsValidation(err), ierr.IsNotFound(err):
		h.publishRejected(env, p.Ref, RejectInvalidRequest, nil)
		return nil
	default:
		return err
	}

	ids := lo.Uniq(lo.Map(p.Items, func(it Item, _ int) string { return it.VariantID }))
	h.invalidate(ctx, ids)
	h.publishReserved(env, p.Ref, res)
	h.publishLowStock(ctx, env, ids)
	return nil
}

func (h *CheckoutHandler) settle(ctx context.Context, env kafkax.Envelope, ref string,
	op func(context.Context, string) ([]*Reservation, error), outcome string) error {
	res, err := op(ctx, ref)
	switch {
	case err == nil:
	case ierr.IsNotFound(err):
		h.Log.Warnw("no reservations for checkout", "ref", ref, "event", env.EventType)
		return nil
	case ierr.IsInvalidState(err), ierr.IsInsufficientStock(err):
		h.publishRejected(env, ref, RejectReservationClosed, nil)
		return nil
	default:
		return err
	}

	h.invalidate(ctx, lo.Uniq(lo.Map(res, func(r *Reservation, _ int) string { return r.VariantID })))
	h.Stock.PublishEnvelope(kafkax.NewEnvelope(outcome, h.ServiceName, ref, env.TraceID, CheckoutRefPayload{Ref: ref}))
	return nil
}

func (h *CheckoutHandler) publishReserved(env kafkax.Envelope, ref string, res []*Reservation) {
	p := StockReservedPayload{Ref: ref}
	for _, r := range res {
		p.Items = append(p.Items, Item{VariantID: r.VariantID, Quantity: r.Quantity})
		if p.ExpiresAt.IsZero() || r.ExpiresAt.Before(p.ExpiresAt) {
			p.ExpiresAt = r.ExpiresAt
		}
	}
	h.Stock.PublishEnvelope(kafkax.NewEnvelope(EventStockReserved, h.ServiceName, ref, env.TraceID, p))
}

func (h *CheckoutHandler) publishRejected(env kafkax.Envelope, ref, reason string, shortages []Shortage) {
	h.Stock.PublishEnvelope(kafkax.NewEnvelope(EventStockRejected, h.ServiceName, ref, env.TraceID,
		StockRejectedPayload{Ref: ref, Reason: reason, Shortages: shortages}))
}

func (h *CheckoutHandler) publishLowStock(ctx context.Context, env kafkax.Envelope, variantIDs []string) {
	for _, id := range variantIDs {
		s, err := h.Ledger.Snapshot(ctx, id)
		if err != nil {
			h.Log.Warnw("snapshot after reserve", "variant_id", id, "error", err)
			continue
		}
		if s.LowStock {
			h.Stock.PublishEnvelope(kafkax.NewEnvelope(EventStockLow, h.ServiceName, id, env.TraceID,
				StockLowPayload{VariantID: id, AvailableForSale: s.AvailableForSale}))
		}
	}
}

func (h *CheckoutHandler) invalidate(ctx context.Context, variantIDs []string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, variantIDs...); err != nil {
		h.Log.Warnw("stock cache invalidate", "error", err)
	}
}
