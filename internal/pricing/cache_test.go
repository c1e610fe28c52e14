package pricing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedShipping(t *testing.T) {
	ctx := context.Background()
	src := &testutil.StaticShipping{Methods: []pricing.ShippingMethod{{ID: "s1", Name: "Standard", Cost: money("5"), Active: true}}}
	cached := pricing.NewCachedShipping(src, time.Minute)

	for i := 0; i < 3; i++ {
		m, err := cached.ActiveMethods(ctx)
		require.NoError(t, err)
		assert.Len(t, m, 1)
	}
	assert.Equal(t, 1, src.Calls)
}

func TestCachedShippingDisabled(t *testing.T) {
	src := &testutil.StaticShipping{}
	assert.Same(t, src, pricing.NewCachedShipping(src, 0))
}

func TestCachedTaxRatesSkipsErrors(t *testing.T) {
	ctx := context.Background()
	src := &testutil.StaticTax{Err: errors.New("down"), Rates: map[string]decimal.Decimal{"US|": money("0.08")}}
	cached := pricing.NewCachedTaxRates(src, time.Minute)

	_, err := cached.Rate(ctx, "US", "")
	require.Error(t, err)

	src.Err = nil
	r, err := cached.Rate(ctx, "US", "")
	require.NoError(t, err)
	assert.True(t, money("0.08").Equal(r))
	_, err = cached.Rate(ctx, "US", "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls)
}
