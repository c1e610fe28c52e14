package payment

import (
	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
)

func gatewayError(err error) error {
	return ierr.WithError(err).
		WithHint("the payment provider could not be reached").
		Mark(ierr.ErrPaymentGateway)
}

// DeclinedError converts a failed Result into the error the retry machine records.
func DeclinedError(r *Result) error {
	reason := r.FailureReason
	if reason == "" {
		reason = "declined"
	}
	return ierr.NewError("payment declined: " + reason).
		WithHintf("the card was declined (%s)", reason).
		WithReportableDetails(map[string]any{"provider_ref": r.ProviderRef}).
		Mark(ierr.ErrPaymentDeclined)
}
