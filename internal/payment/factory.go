package payment

import (
	"github.com/ariefcatur/go-recurring-billing/internal/config"
	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
)

const (
	ProviderStripe  = "stripe"
	ProviderSandbox = "sandbox"
)

// NewGateway selects the provider once, from configuration.
func NewGateway(cfg config.PaymentConfig, log *logger.Logger) (Gateway, error) {
	switch cfg.Provider {
	case ProviderStripe:
		return NewStripeGateway(cfg.StripeSecretKey, cfg.TransportRetries, log), nil
	case ProviderSandbox:
		return NewSandboxGateway(log), nil
	default:
		return nil, ierr.NewError("unknown payment provider").
			WithHintf("provider %q is not supported", cfg.Provider).
			Mark(ierr.ErrValidation)
	}
}
