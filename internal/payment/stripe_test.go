package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  stripe.Error
		want bool
	}{
		{name: "card", err: stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: 402}},
		{name: "invalid request", err: stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 400}},
		{name: "idempotency", err: stripe.Error{Type: stripe.ErrorTypeIdempotency, HTTPStatusCode: 409}},
		{name: "api 500", err: stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 500}, want: true},
		{name: "rate limited", err: stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 429}, want: true},
		{name: "no response", err: stripe.Error{Type: stripe.ErrorTypeAPI}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(&tt.err))
		})
	}
}

func TestDeclineReason(t *testing.T) {
	assert.Equal(t, "insufficient_funds", declineReason(&stripe.Error{DeclineCode: "insufficient_funds", Code: "card_declined"}))
	assert.Equal(t, "expired_card", declineReason(&stripe.Error{Code: "expired_card"}))
	assert.Equal(t, "Your card was declined.", declineReason(&stripe.Error{Msg: "Your card was declined."}))
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"12.34", "USD", 1234},
		{"52.905", "usd", 5291},
		{"1500", "JPY", 1500},
		{"1500", "jpy", 1500},
		{"9900.6", "KRW", 9901},
		{"25000", "VND", 25000},
	}
	for _, tt := range tests {
		t.Run(tt.amount+" "+tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.want, minorUnits(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}
