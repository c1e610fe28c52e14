package payment

import (
	"context"
	"errors"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type MethodsRepo struct{ DB *postgres.DB }

func NewMethodsRepo(db *postgres.DB) *MethodsRepo { return &MethodsRepo{DB: db} }

// DefaultForUser fails with ErrNoPaymentMethod when the user has no default instrument.
func (r *MethodsRepo) DefaultForUser(ctx context.Context, userID string) (*Method, error) {
	var m Method
	err := r.DB.Q(ctx).QueryRow(ctx, `
		SELECT id, user_id, provider_id, customer_id, brand, last4, is_default
		FROM payment_methods
		WHERE user_id = $1 AND is_default
		ORDER BY created_at DESC
		LIMIT 1`, userID).
		Scan(&m.ID, &m.UserID, &m.ProviderID, &m.CustomerID, &m.Brand, &m.Last4, &m.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NoMethodError(userID)
	}
	if err != nil {
		return nil, postgres.MapError(err)
	}
	return &m, nil
}

func NoMethodError(userID string) error {
	return ierr.NewError("no default payment method").
		WithHint("add a payment method to keep your subscription running").
		WithReportableDetails(map[string]any{"user_id": userID}).
		Mark(ierr.ErrNoPaymentMethod)
}
