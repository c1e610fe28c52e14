package payment

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Instruments whose provider id starts with one of these prefixes behave accordingly.
const (
	SandboxDeclinePrefix     = "pm_decline"
	SandboxUnreachablePrefix = "pm_unreachable"
)

// SandboxGateway is the non-production provider. It remembers results per
// idempotency key for a day, like a real provider would.
type SandboxGateway struct {
	seen *cache.Cache
	log  *logger.Logger
}

func NewSandboxGateway(log *logger.Logger) *SandboxGateway {
	return &SandboxGateway{seen: cache.New(24*time.Hour, time.Hour), log: log}
}

func (g *SandboxGateway) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, gatewayError(err)
	}
	if v, ok := g.seen.Get(req.IdempotencyKey); ok {
		r := v.(Result)
		return &r, nil
	}

	var r Result
	switch id := req.Method.ProviderID; {
	case strings.HasPrefix(id, SandboxUnreachablePrefix):
		return nil, gatewayError(context.DeadlineExceeded)
	case strings.HasPrefix(id, SandboxDeclinePrefix):
		r = Result{Status: ChargeFailed, FailureReason: "card_declined"}
	case !req.Amount.IsPositive():
		r = Result{Status: ChargeFailed, FailureReason: "invalid_amount"}
	default:
		r = Result{Status: ChargeSucceeded, ProviderRef: "sbx_" + uuid.NewString()}
	}
	g.seen.SetDefault(req.IdempotencyKey, r)
	g.log.Debugw("sandbox charge", "idempotency_key", req.IdempotencyKey, "status", r.Status, "amount", req.Amount.String())
	return &r, nil
}
