package orders_test

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptIDIsDeterministic(t *testing.T) {
	a := orders.AttemptID("sub_1", "2026-03-01T00:00:00Z", 0)
	assert.Equal(t, a, orders.AttemptID("sub_1", "2026-03-01T00:00:00Z", 0))
	assert.NotEqual(t, a, orders.AttemptID("sub_1", "2026-03-01T00:00:00Z", 1))
	assert.NotEqual(t, a, orders.AttemptID("sub_1", "2026-04-01T00:00:00Z", 0))
	assert.NotEqual(t, a, orders.AttemptID("sub_2", "2026-03-01T00:00:00Z", 0))
	assert.Equal(t, "sub_sub_1_order_"+a, orders.IdempotencyKey("sub_1", a))
}

func TestNewPaid(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	price := &pricing.Breakdown{
		Subtotal: testutil.Money("40.00"),
		Shipping: testutil.Money("8.99"),
		Tax:      testutil.Money("3.92"),
		Total:    testutil.Money("52.91"),
		TaxRate:  testutil.Money("0.08"),
		Lines: []pricing.LineBreakdown{
			{VariantID: "var_a", ProductName: "Coffee", Quantity: 2, UnitPrice: testutil.Money("20.00"), LineTotal: testutil.Money("40.00")},
		},
	}
	o := orders.NewPaid(orders.NewParams{
		ID:             "ord_1",
		SubscriptionID: "sub_1",
		UserID:         "user_1",
		IdempotencyKey: "key",
		Currency:       "USD",
		PaymentRef:     "ch_1",
		Address:        pricing.Address{Country: "US"},
		Price:          price,
		Now:            now,
	})

	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, orders.PaymentSucceeded, o.PaymentStatus)
	assert.True(t, price.Total.Equal(o.Total))
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "ord_1", o.Lines[0].OrderID)
	assert.NotEmpty(t, o.Lines[0].ID)
	assert.Equal(t, now, o.CreatedAt)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to orders.Status
		ok       bool
	}{
		{orders.StatusPending, orders.StatusPaid, true},
		{orders.StatusPaid, orders.StatusFulfilled, true},
		{orders.StatusPaid, orders.StatusCancelled, true},
		{orders.StatusFulfilled, orders.StatusShipped, true},
		{orders.StatusShipped, orders.StatusDelivered, true},
		{orders.StatusShipped, orders.StatusCancelled, false},
		{orders.StatusDelivered, orders.StatusPaid, false},
		{orders.StatusCancelled, orders.StatusPaid, false},
		{orders.StatusPending, orders.StatusShipped, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, orders.CanTransition(tt.from, tt.to))
		})
	}
}
