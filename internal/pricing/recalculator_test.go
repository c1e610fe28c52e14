package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

var money = testutil.Money

type RecalculatorSuite struct {
	suite.Suite
	ctx      context.Context
	shipping *testutil.StaticShipping
	tax      *testutil.StaticTax
	promos   *testutil.StaticPromos
	calc     *pricing.Recalculator
}

func TestRecalculator(t *testing.T) {
	suite.Run(t, new(RecalculatorSuite))
}

func (s *RecalculatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.shipping = &testutil.StaticShipping{Methods: []pricing.ShippingMethod{
		{ID: "s1", Name: "Monthly Delivery", Cost: money("8.99"), Active: true},
		{ID: "s2", Name: "Monthly Delivery Express", Cost: money("14.99"), Active: true},
		{ID: "s3", Name: "Standard", Cost: money("5.00"), Active: true},
		{ID: "s4", Name: "Free pickup", Cost: money("0"), Active: false},
	}}
	s.tax = &testutil.StaticTax{Rates: map[string]decimal.Decimal{
		"US|":   money("0.08"),
		"US|CA": money("0.0725"),
	}}
	s.promos = &testutil.StaticPromos{Codes: map[string]pricing.Promo{
		"TEN":  {Code: "TEN", Kind: pricing.PromoPercentage, Value: money("10")},
		"FIVE": {Code: "FIVE", Kind: pricing.PromoFixed, Value: money("5")},
		"HUGE": {Code: "HUGE", Kind: pricing.PromoFixed, Value: money("500")},
	}}
	s.calc = pricing.NewRecalculator(s.shipping, s.tax, s.promos, money("4.99"), logger.NewNop())
}

func (s *RecalculatorSuite) input() pricing.Input {
	return pricing.Input{
		Lines:        []pricing.Line{{VariantID: "var_a", Quantity: 2, UnitPrice: money("20.00")}},
		DeliveryType: "monthly",
		Address:      pricing.Address{Country: "US"},
	}
}

func (s *RecalculatorSuite) TestMonthlyBoxExample() {
	b, err := s.calc.Calculate(s.ctx, s.input())
	s.Require().NoError(err)
	s.True(money("40.00").Equal(b.Subtotal), b.Subtotal.String())
	s.True(money("8.99").Equal(b.Shipping), b.Shipping.String())
	s.True(money("3.92").Equal(b.Tax), b.Tax.String())
	s.True(money("52.91").Equal(b.Total), b.Total.String())
	s.True(b.Discount.IsZero())
	s.Require().Len(b.Lines, 1)
	s.True(money("40.00").Equal(b.Lines[0].LineTotal))
}

func (s *RecalculatorSuite) TestStateRateWins() {
	in := s.input()
	in.Address.State = "ca"
	b, err := s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(money("0.0725").Equal(b.TaxRate))
	// 48.99 * 0.0725 = 3.5518
	s.True(money("3.55").Equal(b.Tax), b.Tax.String())
}

func (s *RecalculatorSuite) TestShippingFallbacks() {
	in := s.input()
	in.DeliveryType = "overnight"
	b, err := s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(money("5.00").Equal(b.Shipping), "cheapest active method when nothing matches")

	s.shipping.Methods = nil
	b, err = s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(money("4.99").Equal(b.Shipping), "floor when no method is active")

	s.shipping.Err = errors.New("db down")
	b, err = s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(money("4.99").Equal(b.Shipping), "floor when lookup fails")
}

func (s *RecalculatorSuite) TestTaxFallbacks() {
	in := s.input()
	in.Address.Country = ""
	b, err := s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(b.Tax.IsZero())

	in.Address.Country = "DE"
	b, err = s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(b.Tax.IsZero())

	s.tax.Err = errors.New("timeout")
	b, err = s.calc.Calculate(s.ctx, s.input())
	s.Require().NoError(err)
	s.True(b.Tax.IsZero())
	s.True(money("48.99").Equal(b.Total))
}

func (s *RecalculatorSuite) TestDiscounts() {
	tests := []struct {
		code     string
		discount string
		total    string
	}{
		// (40 - 4 + 8.99) * 1.08 = 48.59
		{code: "TEN", discount: "4.00", total: "48.59"},
		// (40 - 5 + 8.99) * 0.08 = 3.5192
		{code: "FIVE", discount: "5.00", total: "47.51"},
		// capped at the subtotal, shipping and its tax remain
		{code: "HUGE", discount: "40.00", total: "9.71"},
		{code: "NOPE", discount: "0", total: "52.91"},
	}
	for _, tt := range tests {
		s.Run(tt.code, func() {
			in := s.input()
			in.DiscountCode = tt.code
			b, err := s.calc.Calculate(s.ctx, in)
			s.Require().NoError(err)
			s.True(money(tt.discount).Equal(b.Discount), b.Discount.String())
			s.True(money(tt.total).Equal(b.Total), b.Total.String())
		})
	}
}

func (s *RecalculatorSuite) TestPromoLookupFailureAppliesNoDiscount() {
	s.promos.Err = errors.New("boom")
	in := s.input()
	in.DiscountCode = "TEN"
	b, err := s.calc.Calculate(s.ctx, in)
	s.Require().NoError(err)
	s.True(b.Discount.IsZero())
}

func (s *RecalculatorSuite) TestRejectsBadInput() {
	_, err := s.calc.Calculate(s.ctx, pricing.Input{})
	s.Error(err)

	in := s.input()
	in.Lines[0].Quantity = 0
	_, err = s.calc.Calculate(s.ctx, in)
	s.Error(err)
}

func (s *RecalculatorSuite) TestApplyCatalog() {
	catalog := &testutil.StaticCatalog{Items: map[string]pricing.CatalogPrice{
		"var_a": {VariantID: "var_a", ProductName: "Coffee 1kg", UnitPrice: money("22.50")},
	}}
	lines := []pricing.Line{
		{VariantID: "var_a", ProductName: "Coffee", Quantity: 1, UnitPrice: money("20.00")},
		{VariantID: "var_gone", ProductName: "Old mug", Quantity: 1, UnitPrice: money("7.00")},
	}
	out, err := pricing.ApplyCatalog(s.ctx, catalog, lines, logger.NewNop())
	s.Require().NoError(err)
	s.True(money("22.50").Equal(out[0].UnitPrice))
	s.Equal("Coffee 1kg", out[0].ProductName)
	s.True(money("7.00").Equal(out[1].UnitPrice))
	// input is left alone
	s.True(money("20.00").Equal(lines[0].UnitPrice))
}
