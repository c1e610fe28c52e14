package subscription

import (
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive        Status = "active"
	StatusPaymentFailed Status = "payment_failed"
	StatusPaused        Status = "paused"
	StatusCancelled     Status = "cancelled"
)

type BillingCycle string

const (
	CycleWeekly  BillingCycle = "weekly"
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == CycleWeekly || c == CycleMonthly || c == CycleYearly
}

// Item is a subscribed line. UnitPrice is the price last seen; billing uses the live catalog price.
type Item struct {
	VariantID   string          `json:"variant_id" validate:"required"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Subscription struct {
	ID                 string
	UserID             string
	Items              []Item
	DeliveryType       string
	ShippingAddress    pricing.Address
	DiscountCode       string
	Currency           string
	BillingCycle       BillingCycle
	Status             Status
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	NextBillingDate    time.Time
	PaymentRetryCount  int
	NextRetryDate      *time.Time
	LastPaymentError   string
	// InitialPrice is frozen at creation. CurrentPrice follows items and catalog changes.
	InitialPrice pricing.Breakdown
	CurrentPrice pricing.Breakdown
	PausedAt     *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Subscription) Lines() []pricing.Line {
	out := make([]pricing.Line, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, pricing.Line{
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}

func (s *Subscription) PricingInput(lines []pricing.Line) pricing.Input {
	return pricing.Input{
		Lines:        lines,
		DeliveryType: s.DeliveryType,
		Address:      s.ShippingAddress,
		DiscountCode: s.DiscountCode,
	}
}

// IsDue is evaluated from persisted fields only, on every pass.
func (s *Subscription) IsDue(now time.Time, maxAttempts int) bool {
	switch s.Status {
	case StatusActive:
		return !s.NextBillingDate.After(now)
	case StatusPaymentFailed:
		if s.PaymentRetryCount >= maxAttempts {
			return true
		}
		return s.NextRetryDate != nil && !s.NextRetryDate.After(now)
	default:
		return false
	}
}
