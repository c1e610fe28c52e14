package subscription

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/config"
	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/notify"
	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/ariefcatur/go-recurring-billing/internal/payment"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

type OutcomeKind string

const (
	OutcomeBilled        OutcomeKind = "billed"
	OutcomePaymentFailed OutcomeKind = "payment_failed"
	OutcomePaused        OutcomeKind = "paused"
	OutcomeSkipped       OutcomeKind = "skipped"
	OutcomeError         OutcomeKind = "error"
)

type Outcome struct {
	SubscriptionID string          `json:"subscription_id"`
	Kind           OutcomeKind     `json:"outcome"`
	OrderID        string          `json:"order_id,omitempty"`
	Total          decimal.Decimal `json:"total"`
	RetryCount     int             `json:"retry_count"`
	NextRetryDate  *time.Time      `json:"next_retry_date,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
}

// BatchResult counts billed subscriptions as processed. Payment failures,
// pauses and errors count as failed; subscriptions claimed elsewhere or no
// longer due are skipped.
type BatchResult struct {
	Processed int       `json:"processed_count"`
	Failed    int       `json:"failed_count"`
	Skipped   int       `json:"skipped_count"`
	Outcomes  []Outcome `json:"outcomes"`
}

type Deps struct {
	Tx       Transactor
	Subs     Store
	Methods  PaymentMethods
	Gateway  payment.Gateway
	Pricer   Pricer
	Catalog  pricing.Catalog
	Orders   OrderWriter
	Stock    StockCommitter
	Notifier Notifier
	Cache    StockCache // optional
}

type Scheduler struct {
	Deps
	cfg    config.BillingConfig
	policy RetryPolicy
	now    func() time.Time
	log    *logger.Logger
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(deps Deps, cfg config.BillingConfig, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		Deps:   deps,
		cfg:    cfg,
		policy: RetryPolicyFromConfig(cfg),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
	}
	if s.cfg.Workers <= 0 {
		s.cfg.Workers = 1
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 100
	}
	if s.cfg.ChargeTimeout <= 0 {
		s.cfg.ChargeTimeout = 30 * time.Second
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProcessDueSubscriptions bills or retries every subscription due now. Each
// subscription runs in its own transaction; one failure never affects another.
func (s *Scheduler) ProcessDueSubscriptions(ctx context.Context) (*BatchResult, error) {
	ids, err := s.Subs.ListDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[Outcome]().WithMaxGoroutines(s.cfg.Workers)
	for _, id := range ids {
		p.Go(func() Outcome { return s.processOne(ctx, id) })
	}
	outcomes := p.Wait()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].SubscriptionID < outcomes[j].SubscriptionID })

	res := &BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeBilled:
			res.Processed++
		case OutcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}
	s.log.Infow("billing batch finished",
		"due", len(ids),
		"processed", res.Processed,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *Scheduler) processOne(ctx context.Context, id string) (out Outcome) {
	defer func() {
		if v := recover(); v != nil {
			s.log.Errorw("panic while billing subscription", "subscription_id", id, "panic", v)
			out = Outcome{SubscriptionID: id, Kind: OutcomeError, Error: fmt.Sprint(v), ErrorCode: ierr.ErrCodeSystemError}
		}
	}()

	var after func()
	err := s.Tx.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.Subs.Claim(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		// re-check under the lock, another instance may have billed it already
		if sub == nil || !sub.IsDue(now, s.policy.MaxAttempts) {
			out = Outcome{SubscriptionID: id, Kind: OutcomeSkipped}
			return nil
		}
		if sub.Status == StatusPaymentFailed && sub.PaymentRetryCount >= s.policy.MaxAttempts {
			sub.Pause(now)
			sub.UpdatedAt = now
			if err := s.Subs.Update(ctx, sub); err != nil {
				return err
			}
			out = Outcome{SubscriptionID: id, Kind: OutcomePaused, RetryCount: sub.PaymentRetryCount, Error: sub.LastPaymentError}
			after = s.notifyLater(sub, notify.EventSubscriptionPaused, map[string]any{
				"subscription_id": sub.ID,
				"retry_count":     sub.PaymentRetryCount,
			})
			return nil
		}
		out, after, err = s.attempt(ctx, sub, now)
		return err
	})
	if err != nil {
		s.log.Errorw("billing attempt rolled back", "subscription_id", id, "error", err)
		return Outcome{SubscriptionID: id, Kind: OutcomeError, Error: err.Error(), ErrorCode: ierr.Code(err)}
	}
	if after != nil {
		after()
	}
	return out
}

// attempt runs charge, order, stock and rollover. Any error after the charge
// rolls everything back; the next pass replays the same idempotency key.
func (s *Scheduler) attempt(ctx context.Context, sub *Subscription, now time.Time) (Outcome, func(), error) {
	out := Outcome{SubscriptionID: sub.ID}

	price, err := s.price(ctx, sub)
	if err != nil {
		return out, nil, err
	}
	sub.CurrentPrice = *price

	orderID := orders.AttemptID(sub.ID, sub.CurrentPeriodEnd.UTC().Format(time.RFC3339), sub.PaymentRetryCount)
	key := orders.IdempotencyKey(sub.ID, orderID)

	res, err := s.charge(ctx, sub, price, key)
	if err != nil {
		if !ierr.IsPaymentFailure(err) {
			return out, nil, err
		}
		paused := s.policy.RecordFailure(sub, err, now)
		sub.UpdatedAt = now
		if uerr := s.Subs.Update(ctx, sub); uerr != nil {
			return out, nil, uerr
		}
		s.log.Infow("subscription payment failed",
			"subscription_id", sub.ID,
			"retry_count", sub.PaymentRetryCount,
			"paused", paused,
			"error", err,
		)
		out.Kind = OutcomePaymentFailed
		event := notify.EventPaymentFailed
		if paused {
			out.Kind = OutcomePaused
			event = notify.EventSubscriptionPaused
		}
		out.RetryCount = sub.PaymentRetryCount
		out.NextRetryDate = sub.NextRetryDate
		out.Error = err.Error()
		out.ErrorCode = ierr.Code(err)
		data := map[string]any{
			"subscription_id": sub.ID,
			"retry_count":     sub.PaymentRetryCount,
			"reason":          ierr.Hint(err),
		}
		if sub.NextRetryDate != nil {
			data["next_retry_date"] = sub.NextRetryDate.Format(time.RFC3339)
		}
		return out, s.notifyLater(sub, event, data), nil
	}

	order := orders.NewPaid(orders.NewParams{
		ID:             orderID,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		IdempotencyKey: key,
		Currency:       s.currency(sub),
		PaymentRef:     res.ProviderRef,
		Address:        sub.ShippingAddress,
		Price:          price,
		Now:            now,
	})
	if err := s.Orders.Create(ctx, order); err != nil {
		return out, nil, err
	}

	adjustments := lo.Map(price.Lines, func(l pricing.LineBreakdown, _ int) inventory.AdjustParams {
		return inventory.AdjustParams{
			VariantID: l.VariantID,
			Delta:     -l.Quantity,
			Reason:    inventory.ReasonSubscriptionOrder,
			Actor:     "subscription:" + sub.ID,
			Notes:     "order " + order.ID,
		}
	})
	if _, err := s.Stock.AdjustMany(ctx, adjustments); err != nil {
		return out, nil, err
	}

	sub.RecordSuccess()
	if err := sub.Rollover(); err != nil {
		return out, nil, err
	}
	sub.UpdatedAt = now
	if err := s.Subs.Update(ctx, sub); err != nil {
		return out, nil, err
	}

	out.Kind = OutcomeBilled
	out.OrderID = order.ID
	out.Total = order.Total
	notice := s.notifyLater(sub, notify.EventPaymentSucceeded, map[string]any{
		"subscription_id":   sub.ID,
		"order_id":          order.ID,
		"total":             order.Total.StringFixed(2),
		"currency":          order.Currency,
		"next_billing_date": sub.NextBillingDate.Format(time.RFC3339),
	})
	variants := lo.Uniq(lo.Map(adjustments, func(a inventory.AdjustParams, _ int) string { return a.VariantID }))
	return out, func() {
		s.invalidate(variants)
		notice()
	}, nil
}

// invalidate runs after commit so readers never re-cache uncommitted stock.
func (s *Scheduler) invalidate(variantIDs []string) {
	if s.Cache == nil || len(variantIDs) == 0 {
		return
	}
	if err := s.Cache.Invalidate(context.Background(), variantIDs...); err != nil {
		s.log.Warnw("stock cache invalidate", "variant_ids", variantIDs, "error", err)
	}
}

func (s *Scheduler) price(ctx context.Context, sub *Subscription) (*pricing.Breakdown, error) {
	return livePrice(ctx, s.Pricer, s.Catalog, sub, s.log)
}

// charge returns a payment-failure error for a missing method, a decline or a
// provider problem; any other error aborts the attempt without counting it.
func (s *Scheduler) charge(ctx context.Context, sub *Subscription, price *pricing.Breakdown, key string) (*payment.Result, error) {
	method, err := s.Methods.DefaultForUser(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
	defer cancel()
	res, err := s.Gateway.Charge(cctx, payment.ChargeRequest{
		Amount:         price.Total,
		Currency:       s.currency(sub),
		Method:         *method,
		IdempotencyKey: key,
		Description:    "subscription " + sub.ID,
		Metadata:       map[string]string{"subscription_id": sub.ID},
	})
	if err != nil {
		// shutting down is not the customer's failure
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ierr.IsPaymentFailure(err) {
			return nil, err
		}
		return nil, ierr.WithError(err).
			WithHint("the payment provider could not be reached").
			Mark(ierr.ErrPaymentGateway)
	}
	if !res.Succeeded() {
		return nil, payment.DeclinedError(res)
	}
	return res, nil
}

func (s *Scheduler) currency(sub *Subscription) string {
	if sub.Currency != "" {
		return sub.Currency
	}
	return s.cfg.Currency
}

func (s *Scheduler) notifyLater(sub *Subscription, event string, data map[string]any) func() {
	userID := sub.UserID
	return func() {
		if s.Notifier == nil {
			return
		}
		if err := s.Notifier.Notify(context.Background(), userID, event, data); err != nil {
			s.log.Warnw("notification failed", "user_id", userID, "event", event, "error", err)
		}
	}
}
