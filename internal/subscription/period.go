package subscription

import (
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
)

// NextPeriodEnd advances from by one billing cycle on the calendar.
// Monthly and yearly steps clamp to the last day of the target month.
func NextPeriodEnd(from time.Time, cycle BillingCycle) (time.Time, error) {
	switch cycle {
	case CycleWeekly:
		return from.AddDate(0, 0, 7), nil
	case CycleMonthly:
		return addMonthsClamped(from, 1), nil
	case CycleYearly:
		return addMonthsClamped(from, 12), nil
	default:
		return time.Time{}, ierr.NewError("unknown billing cycle").
			WithHintf("billing cycle %q is not supported", cycle).
			Mark(ierr.ErrValidation)
	}
}

// addMonthsClamped differs from time.AddDate, which normalizes Jan 31 + 1 month to Mar 3.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Rollover moves the subscription into its next billing period.
func (s *Subscription) Rollover() error {
	end, err := NextPeriodEnd(s.CurrentPeriodEnd, s.BillingCycle)
	if err != nil {
		return err
	}
	s.CurrentPeriodStart = s.CurrentPeriodEnd
	s.CurrentPeriodEnd = end
	s.NextBillingDate = end
	return nil
}

// Reanchor drops billing periods missed while paused. An overdue subscription
// is billed once at now and later periods follow from there.
func (s *Subscription) Reanchor(now time.Time) {
	if !s.NextBillingDate.Before(now) {
		return
	}
	s.CurrentPeriodEnd = now
	s.NextBillingDate = now
}
