package subscription_test

import (
	"context"
	"testing"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/ariefcatur/go-recurring-billing/internal/subscription"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	db      *testutil.MemDB
	catalog *testutil.StaticCatalog
	svc     *subscription.Service
	now     time.Time
}

func TestService(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewMemDB()
	s.now = time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)
	s.catalog = &testutil.StaticCatalog{Items: map[string]pricing.CatalogPrice{}}
	pricer := pricing.NewRecalculator(
		&testutil.StaticShipping{Methods: []pricing.ShippingMethod{
			{ID: "ship_monthly", Name: "Monthly Delivery", Cost: money("8.99"), Active: true},
		}},
		&testutil.StaticTax{Rates: map[string]decimal.Decimal{"US|": money("0.08")}},
		&testutil.StaticPromos{},
		money("5.99"),
		logger.NewNop(),
	)
	s.svc = subscription.NewService(s.db.Tx, s.db.Subscriptions(), pricer, s.catalog, "USD", logger.NewNop()).
		WithClock(func() time.Time { return s.now })
}

func (s *ServiceSuite) create() *subscription.Subscription {
	sub, err := s.svc.Create(s.ctx, subscription.CreateParams{
		UserID:          "user_1",
		Items:           []subscription.Item{{VariantID: "var_a", ProductName: "Coffee", Quantity: 2, UnitPrice: money("20.00")}},
		DeliveryType:    "monthly",
		ShippingAddress: pricing.Address{Country: "US"},
		BillingCycle:    subscription.CycleMonthly,
	})
	s.Require().NoError(err)
	return sub
}

func (s *ServiceSuite) TestCreate() {
	sub := s.create()
	s.NotEmpty(sub.ID)
	s.Equal(subscription.StatusActive, sub.Status)
	s.Equal("USD", sub.Currency)
	s.Equal(s.now, sub.CurrentPeriodStart)
	s.Equal(time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	s.Equal(sub.CurrentPeriodEnd, sub.NextBillingDate)
	s.True(money("52.91").Equal(sub.InitialPrice.Total))
	s.True(money("52.91").Equal(sub.CurrentPrice.Total))

	stored, err := s.svc.Get(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(sub.ID, stored.ID)
}

func (s *ServiceSuite) TestCreateValidation() {
	tests := []struct {
		name string
		p    subscription.CreateParams
	}{
		{name: "no items", p: subscription.CreateParams{UserID: "u", DeliveryType: "monthly", BillingCycle: subscription.CycleMonthly}},
		{name: "bad cycle", p: subscription.CreateParams{UserID: "u", DeliveryType: "monthly", BillingCycle: "daily",
			Items: []subscription.Item{{VariantID: "var_a", Quantity: 1}}}},
		{name: "zero quantity", p: subscription.CreateParams{UserID: "u", DeliveryType: "monthly", BillingCycle: subscription.CycleWeekly,
			Items: []subscription.Item{{VariantID: "var_a", Quantity: 0}}}},
		{name: "no user", p: subscription.CreateParams{DeliveryType: "monthly", BillingCycle: subscription.CycleWeekly,
			Items: []subscription.Item{{VariantID: "var_a", Quantity: 1}}}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Create(s.ctx, tt.p)
			s.True(ierr.IsValidation(err), "%v", err)
		})
	}
}

func (s *ServiceSuite) TestPauseResumeCancel() {
	sub := s.create()

	paused, err := s.svc.Pause(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(subscription.StatusPaused, paused.Status)
	s.NotNil(paused.PausedAt)

	_, err = s.svc.Pause(s.ctx, sub.ID)
	s.NoError(err)

	resumed, err := s.svc.Resume(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(subscription.StatusActive, resumed.Status)
	s.Nil(resumed.PausedAt)
	s.Zero(resumed.PaymentRetryCount)

	cancelled, err := s.svc.Cancel(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(subscription.StatusCancelled, cancelled.Status)
	s.NotNil(cancelled.CancelledAt)

	_, err = s.svc.Cancel(s.ctx, sub.ID)
	s.NoError(err)

	_, err = s.svc.Resume(s.ctx, sub.ID)
	s.True(ierr.IsInvalidState(err))
	_, err = s.svc.Pause(s.ctx, sub.ID)
	s.True(ierr.IsInvalidState(err))
}

func (s *ServiceSuite) TestResumeClearsRetryState() {
	sub := s.create()
	next := s.now.Add(time.Hour)
	stored := s.db.Subscription(sub.ID)
	stored.Status = subscription.StatusPaused
	stored.PaymentRetryCount = 3
	stored.NextRetryDate = &next
	stored.LastPaymentError = "declined"
	s.db.SeedSubscription(&stored)

	resumed, err := s.svc.Resume(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(subscription.StatusActive, resumed.Status)
	s.Zero(resumed.PaymentRetryCount)
	s.Nil(resumed.NextRetryDate)
	s.Empty(resumed.LastPaymentError)
}

func (s *ServiceSuite) TestUpdateItemsKeepsInitialPrice() {
	sub := s.create()

	updated, err := s.svc.UpdateItems(s.ctx, sub.ID, []subscription.Item{
		{VariantID: "var_a", ProductName: "Coffee", Quantity: 3, UnitPrice: money("20.00")},
	})
	s.Require().NoError(err)
	// (60.00 + 8.99) * 1.08 = 74.5092
	s.True(money("74.51").Equal(updated.CurrentPrice.Total), updated.CurrentPrice.Total.String())
	s.True(money("52.91").Equal(updated.InitialPrice.Total))

	_, err = s.svc.UpdateItems(s.ctx, sub.ID, nil)
	s.True(ierr.IsValidation(err))
}

func (s *ServiceSuite) TestPreviewFollowsCatalog() {
	sub := s.create()
	s.catalog.Items["var_a"] = pricing.CatalogPrice{VariantID: "var_a", UnitPrice: money("25.00")}

	b, err := s.svc.Preview(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.True(money("63.71").Equal(b.Total))

	// preview never writes
	s.True(money("52.91").Equal(s.db.Subscription(sub.ID).CurrentPrice.Total))
}

func (s *ServiceSuite) TestUnknownSubscription() {
	_, err := s.svc.Pause(s.ctx, "missing")
	s.True(ierr.IsNotFound(err))
	_, err = s.svc.Get(s.ctx, "missing")
	s.True(ierr.IsNotFound(err))
}
