package payment

import (
	"context"
	"errors"
	"strings"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

// zeroDecimal currencies are charged in whole units.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

var centsPerUnit = decimal.NewFromInt(100)

// minorUnits converts amount to the smallest unit Stripe expects for currency.
func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(centsPerUnit).Round(0).IntPart()
}

// StripeGateway confirms an off-session PaymentIntent against the saved method.
// Transport failures are retried with the same idempotency key, so Stripe
// returns the original intent instead of charging twice.
type StripeGateway struct {
	client  *stripe.Client
	retries uint64
	log     *logger.Logger
}

func NewStripeGateway(secretKey string, retries uint64, log *logger.Logger) *StripeGateway {
	return &StripeGateway{
		client:  stripe.NewClient(secretKey, nil),
		retries: retries,
		log:     log,
	}
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(minorUnits(req.Amount, req.Currency)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Method.ProviderID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
		Metadata:      req.Metadata,
	}
	if req.Method.CustomerID != "" {
		params.Customer = stripe.String(req.Method.CustomerID)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	var intent *stripe.PaymentIntent
	op := func() error {
		pi, err := g.client.V1PaymentIntents.Create(ctx, params)
		if err != nil {
			var se *stripe.Error
			if errors.As(err, &se) && !retryable(se) {
				return backoff.Permanent(err)
			}
			g.log.Warnw("stripe charge attempt failed", "idempotency_key", req.IdempotencyKey, "error", err)
			return err
		}
		intent = pi
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			return &Result{
				Status:        ChargeFailed,
				FailureReason: declineReason(se),
			}, nil
		}
		return nil, ierr.WithError(err).
			WithHint("the payment provider could not be reached").
			WithReportableDetails(map[string]any{"idempotency_key": req.IdempotencyKey}).
			Mark(ierr.ErrPaymentGateway)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return &Result{
			Status:        ChargeFailed,
			ProviderRef:   intent.ID,
			FailureReason: "payment intent " + string(intent.Status),
		}, nil
	}
	return &Result{Status: ChargeSucceeded, ProviderRef: intent.ID}, nil
}

// card errors and invalid requests are final; everything else may be transient
func retryable(se *stripe.Error) bool {
	switch se.Type {
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
		return false
	}
	return se.HTTPStatusCode == 0 || se.HTTPStatusCode >= 500 || se.HTTPStatusCode == 429
}

func declineReason(se *stripe.Error) string {
	if se.DeclineCode != "" {
		return string(se.DeclineCode)
	}
	if se.Code != "" {
		return string(se.Code)
	}
	return se.Msg
}
