package payment_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-recurring-billing/internal/config"
	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/payment"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func charge(providerID, key, amount string) payment.ChargeRequest {
	return payment.ChargeRequest{
		Amount:         testutil.Money(amount),
		Currency:       "USD",
		Method:         payment.Method{ProviderID: providerID},
		IdempotencyKey: key,
	}
}

func TestSandboxGateway(t *testing.T) {
	ctx := context.Background()
	g := payment.NewSandboxGateway(logger.NewNop())

	ok, err := g.Charge(ctx, charge("pm_card_visa", "k1", "52.91"))
	require.NoError(t, err)
	assert.True(t, ok.Succeeded())
	assert.NotEmpty(t, ok.ProviderRef)

	again, err := g.Charge(ctx, charge("pm_card_visa", "k1", "52.91"))
	require.NoError(t, err)
	assert.Equal(t, ok.ProviderRef, again.ProviderRef)

	declined, err := g.Charge(ctx, charge("pm_decline_generic", "k2", "10"))
	require.NoError(t, err)
	assert.False(t, declined.Succeeded())
	assert.Equal(t, "card_declined", declined.FailureReason)

	zero, err := g.Charge(ctx, charge("pm_card_visa", "k3", "0"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_amount", zero.FailureReason)

	_, err = g.Charge(ctx, charge("pm_unreachable", "k4", "10"))
	require.Error(t, err)
	assert.True(t, ierr.IsPaymentFailure(err))
	assert.Equal(t, ierr.ErrCodePaymentGateway, ierr.Code(err))
}

func TestDeclinedError(t *testing.T) {
	err := payment.DeclinedError(&payment.Result{Status: payment.ChargeFailed, FailureReason: "expired_card"})
	assert.Equal(t, ierr.ErrCodePaymentDeclined, ierr.Code(err))
	assert.Contains(t, err.Error(), "expired_card")
	assert.Contains(t, ierr.Hint(err), "expired_card")
}

func TestNewGateway(t *testing.T) {
	g, err := payment.NewGateway(config.PaymentConfig{Provider: payment.ProviderSandbox}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &payment.SandboxGateway{}, g)

	g, err = payment.NewGateway(config.PaymentConfig{Provider: payment.ProviderStripe, StripeSecretKey: "sk_test_x"}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &payment.StripeGateway{}, g)

	_, err = payment.NewGateway(config.PaymentConfig{Provider: "paypal"}, logger.NewNop())
	assert.True(t, ierr.IsValidation(err))
}
