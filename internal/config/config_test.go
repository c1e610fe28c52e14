package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{6 * time.Hour, 24 * time.Hour}, cfg.Billing.RetryDelays)
	assert.Equal(t, 3, cfg.Billing.MaxAttempts)
	assert.Equal(t, "USD", cfg.Billing.Currency)
	assert.Equal(t, 15*time.Minute, cfg.Inventory.ReservationTTL)
	assert.Equal(t, "sandbox", cfg.Payment.Provider)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BILLING_BILLING_MAX_ATTEMPTS", "5")
	t.Setenv("BILLING_BILLING_CHARGE_TIMEOUT", "45s")
	t.Setenv("BILLING_INVENTORY_LOCATION", "warehouse-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Billing.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Billing.ChargeTimeout)
	assert.Equal(t, "warehouse-2", cfg.Inventory.Location)
}

func TestStripeNeedsSecretKey(t *testing.T) {
	t.Setenv("BILLING_PAYMENT_PROVIDER", "stripe")

	_, err := Load()
	assert.Error(t, err)
}
