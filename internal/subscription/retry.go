package subscription

import (
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/config"
)

// RetryPolicy bounds payment retries: one delay per failed attempt, then pause.
type RetryPolicy struct {
	Delays      []time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delays: []time.Duration{6 * time.Hour, 24 * time.Hour}, MaxAttempts: 3}
}

// RetryPolicyFromConfig falls back to the default policy when nothing is configured.
func RetryPolicyFromConfig(cfg config.BillingConfig) RetryPolicy {
	if cfg.MaxAttempts <= 0 || len(cfg.RetryDelays) == 0 {
		return DefaultRetryPolicy()
	}
	return RetryPolicy{Delays: cfg.RetryDelays, MaxAttempts: cfg.MaxAttempts}
}

// Next reports what follows the n-th consecutive failure (n starts at 1).
func (p RetryPolicy) Next(n int) (delay time.Duration, pause bool) {
	if n >= p.MaxAttempts || len(p.Delays) == 0 {
		return 0, true
	}
	if n-1 < len(p.Delays) {
		return p.Delays[n-1], false
	}
	return p.Delays[len(p.Delays)-1], false
}

// RecordFailure advances the retry state machine after a failed attempt.
// It returns true when the subscription was paused.
func (p RetryPolicy) RecordFailure(s *Subscription, cause error, now time.Time) bool {
	s.PaymentRetryCount++
	s.LastPaymentError = cause.Error()
	delay, pause := p.Next(s.PaymentRetryCount)
	if pause {
		s.Pause(now)
		return true
	}
	next := now.Add(delay)
	s.Status = StatusPaymentFailed
	s.NextRetryDate = &next
	return false
}

// RecordSuccess clears the retry state.
func (s *Subscription) RecordSuccess() {
	s.Status = StatusActive
	s.PaymentRetryCount = 0
	s.NextRetryDate = nil
	s.LastPaymentError = ""
}

func (s *Subscription) Pause(now time.Time) {
	t := now
	s.Status = StatusPaused
	s.PausedAt = &t
	s.NextRetryDate = nil
}
