package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/payment"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// GatewayStep scripts one non-replayed charge.
type GatewayStep struct {
	Decline string // failure reason; empty means success
	Err     error
	Delay   time.Duration
}

// FakeGateway is idempotent per key: a replayed key returns the first result
// without consuming a step. Errors are not remembered, like a request that
// never reached the provider.
type FakeGateway struct {
	mu       sync.Mutex
	steps    []GatewayStep
	byKey    map[string]payment.Result
	Requests []payment.ChargeRequest
	n        int
}

func NewFakeGateway(steps ...GatewayStep) *FakeGateway {
	return &FakeGateway{steps: steps, byKey: map[string]payment.Result{}}
}

func (g *FakeGateway) Push(steps ...GatewayStep) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.steps = append(g.steps, steps...)
}

func (g *FakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Result, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	if r, ok := g.byKey[req.IdempotencyKey]; ok {
		g.mu.Unlock()
		return &r, nil
	}
	var step GatewayStep
	if len(g.steps) > 0 {
		step, g.steps = g.steps[0], g.steps[1:]
	}
	g.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var r payment.Result
	if step.Decline != "" {
		r = payment.Result{Status: payment.ChargeFailed, FailureReason: step.Decline}
	} else {
		g.n++
		r = payment.Result{Status: payment.ChargeSucceeded, ProviderRef: fmt.Sprintf("ch_%d", g.n)}
	}
	g.byKey[req.IdempotencyKey] = r
	return &r, nil
}

// Captured counts distinct keys that were charged successfully.
func (g *FakeGateway) Captured() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func (g *FakeGateway) Keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.Requests))
	for _, r := range g.Requests {
		out = append(out, r.IdempotencyKey)
	}
	return out
}

type Notification struct {
	UserID string
	Event  string
	Data   map[string]any
}

type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []Notification
	Err  error
}

func (n *RecordingNotifier) Notify(ctx context.Context, userID, event string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, Notification{UserID: userID, Event: event, Data: data})
	return n.Err
}

func (n *RecordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.Sent))
	for _, s := range n.Sent {
		out = append(out, s.Event)
	}
	return out
}

type RecordingPublisher struct {
	mu        sync.Mutex
	Envelopes []kafkax.Envelope
}

func (p *RecordingPublisher) PublishEnvelope(env kafkax.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Envelopes = append(p.Envelopes, env)
}

func (p *RecordingPublisher) OfType(eventType string) []kafkax.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kafkax.Envelope
	for _, e := range p.Envelopes {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MemDedup is the go-cache counterpart of redisx.Dedup.
type MemDedup struct{ c *cache.Cache }

func NewMemDedup() *MemDedup { return &MemDedup{c: cache.New(time.Hour, time.Hour)} }

func (d *MemDedup) Claim(ctx context.Context, id string) (bool, error) {
	return d.c.Add(id, struct{}{}, cache.DefaultExpiration) == nil, nil
}

func (d *MemDedup) Forget(ctx context.Context, id string) error {
	d.c.Delete(id)
	return nil
}

// ---- pricing lookups ----

type StaticShipping struct {
	mu      sync.Mutex
	Methods []pricing.ShippingMethod
	Err     error
	Calls   int
}

func (s *StaticShipping) ActiveMethods(ctx context.Context) ([]pricing.ShippingMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	return s.Methods, s.Err
}

type StaticTax struct {
	mu    sync.Mutex
	Rates map[string]decimal.Decimal // "COUNTRY|STATE"
	Err   error
	Calls int
}

func (s *StaticTax) Rate(ctx context.Context, country, state string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return decimal.Zero, s.Err
	}
	if r, ok := s.Rates[country+"|"+state]; ok {
		return r, nil
	}
	return s.Rates[country+"|"], nil
}

type StaticPromos struct {
	Codes map[string]pricing.Promo
	Err   error
}

func (s *StaticPromos) Lookup(ctx context.Context, code string) (*pricing.Promo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.Codes[code]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type StaticCatalog struct {
	Items map[string]pricing.CatalogPrice
	Err   error
}

func (s *StaticCatalog) Prices(ctx context.Context, variantIDs []string) (map[string]pricing.CatalogPrice, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := map[string]pricing.CatalogPrice{}
	for _, id := range variantIDs {
		if p, ok := s.Items[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Money parses a decimal literal and panics on typos.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
