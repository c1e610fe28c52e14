package orders

import (
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Order is immutable after creation except for Status, PaymentStatus and TrackingNumber.
type Order struct {
	ID              string
	SubscriptionID  string
	UserID          string
	Status          Status // see status.go
	PaymentStatus   PaymentStatus
	PaymentRef      string
	IdempotencyKey  string
	Currency        string
	Subtotal        decimal.Decimal
	Shipping        decimal.Decimal
	Tax             decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	TaxRate         decimal.Decimal
	ShippingAddress pricing.Address
	BillingAddress  pricing.Address
	TrackingNumber  string
	Lines           []Line
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Line struct {
	ID          string
	OrderID     string
	VariantID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

type NewParams struct {
	ID             string
	SubscriptionID string
	UserID         string
	IdempotencyKey string
	Currency       string
	PaymentRef     string
	Address        pricing.Address
	Price          *pricing.Breakdown
	Now            time.Time
}

// NewPaid materializes a charged order from the breakdown it was charged for.
func NewPaid(p NewParams) *Order {
	o := &Order{
		ID:              p.ID,
		SubscriptionID:  p.SubscriptionID,
		UserID:          p.UserID,
		Status:          StatusPaid,
		PaymentStatus:   PaymentSucceeded,
		PaymentRef:      p.PaymentRef,
		IdempotencyKey:  p.IdempotencyKey,
		Currency:        p.Currency,
		Subtotal:        p.Price.Subtotal,
		Shipping:        p.Price.Shipping,
		Tax:             p.Price.Tax,
		Discount:        p.Price.Discount,
		Total:           p.Price.Total,
		TaxRate:         p.Price.TaxRate,
		ShippingAddress: p.Address,
		BillingAddress:  p.Address,
		CreatedAt:       p.Now,
		UpdatedAt:       p.Now,
	}
	for i, l := range p.Price.Lines {
		o.Lines = append(o.Lines, Line{
			ID:          lineID(o.ID, i),
			OrderID:     o.ID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		})
	}
	return o
}
