package subscription

import (
	"context"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/ariefcatur/go-recurring-billing/internal/payment"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// Lock waits for the row lock. Used by user actions.
	Lock(ctx context.Context, id string) (*Subscription, error)
	// ListDue returns ids of subscriptions that may be due at now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Claim locks the row without waiting. It returns nil, nil when another
	// worker or scheduler instance already holds it.
	Claim(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PaymentMethods interface {
	DefaultForUser(ctx context.Context, userID string) (*payment.Method, error)
}

type OrderWriter interface {
	Create(ctx context.Context, o *orders.Order) error
}

// StockCommitter is the part of the ledger billing needs.
type StockCommitter interface {
	AdjustMany(ctx context.Context, params []inventory.AdjustParams) ([]*inventory.Inventory, error)
}

type Pricer interface {
	Calculate(ctx context.Context, in pricing.Input) (*pricing.Breakdown, error)
}

// StockCache drops cached stock snapshots once billing has taken stock.
type StockCache interface {
	Invalidate(ctx context.Context, variantIDs ...string) error
}

// Notifier failures are logged by the caller and never fail billing.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, data map[string]any) error
}
