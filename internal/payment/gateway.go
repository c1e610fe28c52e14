package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
)

// Method is a stored payment instrument.
type Method struct {
	ID         string
	UserID     string
	ProviderID string // provider-side instrument id, e.g. pm_...
	CustomerID string // provider-side customer id
	Brand      string
	Last4      string
	IsDefault  bool
}

type ChargeRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Method         Method
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

type Result struct {
	Status        ChargeStatus
	ProviderRef   string
	FailureReason string
}

func (r *Result) Succeeded() bool { return r != nil && r.Status == ChargeSucceeded }

// Gateway charges a stored instrument. Implementations must be idempotent under
// IdempotencyKey. A decline is a Result with ChargeFailed and a nil error; an
// error means the outcome is unknown or the provider could not be reached.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
}
