package httpx

import (
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/ariefcatur/go-recurring-billing/internal/subscription"
	"github.com/shopspring/decimal"
)

type inventoryView struct {
	VariantID         string `json:"variant_id"`
	LocationID        string `json:"location_id"`
	QuantityAvailable int    `json:"quantity_available"`
	QuantityReserved  int    `json:"quantity_reserved"`
	QuantityCommitted int    `json:"quantity_committed"`
	AvailableForSale  int    `json:"available_for_sale"`
	Version           int64  `json:"version"`
}

func toInventoryView(i *inventory.Inventory) inventoryView {
	return inventoryView{
		VariantID:         i.VariantID,
		LocationID:        i.LocationID,
		QuantityAvailable: i.QuantityAvailable,
		QuantityReserved:  i.QuantityReserved,
		QuantityCommitted: i.QuantityCommitted,
		AvailableForSale:  i.AvailableForSale(),
		Version:           i.Version,
	}
}

type reservationView struct {
	ID          string     `json:"id"`
	VariantID   string     `json:"variant_id"`
	Ref         string     `json:"ref"`
	Quantity    int        `json:"quantity"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func toReservationView(r *inventory.Reservation) reservationView {
	return reservationView{
		ID:          r.ID,
		VariantID:   r.VariantID,
		Ref:         r.Ref,
		Quantity:    r.Quantity,
		Status:      string(r.Status),
		ExpiresAt:   r.ExpiresAt,
		ConfirmedAt: r.ConfirmedAt,
		CancelledAt: r.CancelledAt,
	}
}

type subscriptionView struct {
	ID                 string              `json:"id"`
	UserID             string              `json:"user_id"`
	Items              []subscription.Item `json:"items"`
	DeliveryType       string              `json:"delivery_type"`
	ShippingAddress    pricing.Address     `json:"shipping_address"`
	DiscountCode       string              `json:"discount_code,omitempty"`
	Currency           string              `json:"currency"`
	BillingCycle       string              `json:"billing_cycle"`
	Status             string              `json:"status"`
	CurrentPeriodStart time.Time           `json:"current_period_start"`
	CurrentPeriodEnd   time.Time           `json:"current_period_end"`
	NextBillingDate    time.Time           `json:"next_billing_date"`
	PaymentRetryCount  int                 `json:"payment_retry_count"`
	NextRetryDate      *time.Time          `json:"next_retry_date,omitempty"`
	LastPaymentError   string              `json:"last_payment_error,omitempty"`
	InitialPrice       pricing.Breakdown   `json:"initial_price"`
	CurrentPrice       pricing.Breakdown   `json:"current_price"`
	PausedAt           *time.Time          `json:"paused_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func toSubscriptionView(s *subscription.Subscription) subscriptionView {
	return subscriptionView{
		ID:                 s.ID,
		UserID:             s.UserID,
		Items:              s.Items,
		DeliveryType:       s.DeliveryType,
		ShippingAddress:    s.ShippingAddress,
		DiscountCode:       s.DiscountCode,
		Currency:           s.Currency,
		BillingCycle:       string(s.BillingCycle),
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		NextBillingDate:    s.NextBillingDate,
		PaymentRetryCount:  s.PaymentRetryCount,
		NextRetryDate:      s.NextRetryDate,
		LastPaymentError:   s.LastPaymentError,
		InitialPrice:       s.InitialPrice,
		CurrentPrice:       s.CurrentPrice,
		PausedAt:           s.PausedAt,
		CancelledAt:        s.CancelledAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

type orderLineView struct {
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type orderView struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"payment_status"`
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Lines          []orderLineView `json:"lines"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toOrderView(o *orders.Order) orderView {
	v := orderView{
		ID:             o.ID,
		SubscriptionID: o.SubscriptionID,
		UserID:         o.UserID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Currency:       o.Currency,
		Subtotal:       o.Subtotal,
		Shipping:       o.Shipping,
		Tax:            o.Tax,
		Discount:       o.Discount,
		Total:          o.Total,
		TrackingNumber: o.TrackingNumber,
		Lines:          make([]orderLineView, 0, len(o.Lines)),
		CreatedAt:      o.CreatedAt,
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, orderLineView{
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		})
	}
	return v
}
