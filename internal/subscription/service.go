package subscription

import (
	"context"
	"strings"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service holds the user-initiated actions. Billing-cycle fields are left to the Scheduler.
type Service struct {
	tx       Transactor
	subs     Store
	pricer   Pricer
	catalog  pricing.Catalog
	currency string
	validate *validator.Validate
	now      func() time.Time
	log      *logger.Logger
}

func NewService(tx Transactor, subs Store, pricer Pricer, catalog pricing.Catalog, currency string, log *logger.Logger) *Service {
	return &Service{
		tx:       tx,
		subs:     subs,
		pricer:   pricer,
		catalog:  catalog,
		currency: currency,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// WithClock is for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	UserID          string          `json:"user_id" validate:"required"`
	Items           []Item          `json:"items" validate:"required,min=1,dive"`
	DeliveryType    string          `json:"delivery_type" validate:"required"`
	ShippingAddress pricing.Address `json:"shipping_address"`
	DiscountCode    string          `json:"discount_code"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	BillingCycle    BillingCycle    `json:"billing_cycle" validate:"required,oneof=weekly monthly yearly"`
}

// Create starts a subscription whose first renewal is one cycle from now.
// The creation price is frozen into InitialPrice.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Subscription, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, ierr.WithError(err).WithHint("invalid subscription").Mark(ierr.ErrValidation)
	}
	now := s.now()
	end, err := NextPeriodEnd(now, p.BillingCycle)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		ID:                 uuid.NewString(),
		UserID:             p.UserID,
		Items:              p.Items,
		DeliveryType:       p.DeliveryType,
		ShippingAddress:    p.ShippingAddress,
		DiscountCode:       p.DiscountCode,
		Currency:           strings.ToUpper(p.Currency),
		BillingCycle:       p.BillingCycle,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
		NextBillingDate:    end,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if sub.Currency == "" {
		sub.Currency = s.currency
	}
	price, err := s.price(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.InitialPrice = *price
	sub.CurrentPrice = *price
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.log.Infow("subscription created", "subscription_id", sub.ID, "user_id", sub.UserID, "cycle", sub.BillingCycle)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Subscription, error) {
	return s.subs.Get(ctx, id)
}

// Pause stops automatic billing. Pausing a paused subscription is a no-op.
func (s *Service) Pause(ctx context.Context, id string) (*Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		switch sub.Status {
		case StatusPaused:
			return nil
		case StatusCancelled:
			return invalidState(sub, "pause")
		}
		sub.Pause(now)
		return nil
	})
}

// Resume reactivates a paused subscription with a clean retry state. An
// overdue subscription is re-anchored at now, so the next pass bills it once
// instead of once per missed period.
func (s *Service) Resume(ctx context.Context, id string) (*Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		switch sub.Status {
		case StatusActive:
			return nil
		case StatusPaused:
		default:
			return invalidState(sub, "resume")
		}
		sub.RecordSuccess()
		sub.Reanchor(now)
		sub.PausedAt = nil
		return nil
	})
}

// Cancel is terminal and soft; the row stays.
func (s *Service) Cancel(ctx context.Context, id string) (*Subscription, error) {
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		if sub.Status == StatusCancelled {
			return nil
		}
		t := now
		sub.Status = StatusCancelled
		sub.CancelledAt = &t
		sub.NextRetryDate = nil
		return nil
	})
}

// UpdateItems replaces the line items and recomputes the current price snapshot.
func (s *Service) UpdateItems(ctx context.Context, id string, items []Item) (*Subscription, error) {
	if len(items) == 0 {
		return nil, ierr.NewError("no items").WithHint("a subscription needs at least one item").Mark(ierr.ErrValidation)
	}
	if err := s.validate.Var(items, "dive"); err != nil {
		return nil, ierr.WithError(err).WithHint("invalid subscription items").Mark(ierr.ErrValidation)
	}
	return s.mutate(ctx, id, func(sub *Subscription, now time.Time) error {
		if sub.Status == StatusCancelled {
			return invalidState(sub, "edit")
		}
		sub.Items = items
		price, err := s.price(ctx, sub)
		if err != nil {
			return err
		}
		sub.CurrentPrice = *price
		return nil
	})
}

// Preview prices the subscription as the next billing pass would, without writing.
func (s *Service) Preview(ctx context.Context, id string) (*pricing.Breakdown, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, sub)
}

func (s *Service) mutate(ctx context.Context, id string, fn func(sub *Subscription, now time.Time) error) (*Subscription, error) {
	var out *Subscription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.subs.Lock(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := fn(sub, now); err != nil {
			return err
		}
		sub.UpdatedAt = now
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) price(ctx context.Context, sub *Subscription) (*pricing.Breakdown, error) {
	return livePrice(ctx, s.pricer, s.catalog, sub, s.log)
}

// livePrice prices the live items, refreshed from the catalog when one is configured.
func livePrice(ctx context.Context, pricer Pricer, catalog pricing.Catalog, sub *Subscription, log *logger.Logger) (*pricing.Breakdown, error) {
	lines := sub.Lines()
	if catalog != nil {
		var err error
		if lines, err = pricing.ApplyCatalog(ctx, catalog, lines, log); err != nil {
			return nil, err
		}
	}
	return pricer.Calculate(ctx, sub.PricingInput(lines))
}

func invalidState(sub *Subscription, action string) error {
	return ierr.NewError("subscription action not allowed").
		WithHintf("cannot %s a subscription that is %s", action, sub.Status).
		WithReportableDetails(map[string]any{"subscription_id": sub.ID, "status": sub.Status}).
		Mark(ierr.ErrInvalidState)
}
