package orders

import (
	"context"
	"encoding/json"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB *postgres.DB }

func NewRepo(db *postgres.DB) *Repo { return &Repo{DB: db} }

// Create inserts the order and its lines on the ambient transaction.
// A second order with the same idempotency key fails with ErrInvalidState.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	return r.DB.WithTx(ctx, func(ctx context.Context) error {
		ct, err := r.DB.Q(ctx).Exec(ctx, `
			INSERT INTO orders(id, subscription_id, user_id, status, payment_status, payment_ref,
				idempotency_key, currency, subtotal, shipping, tax, discount, total, tax_rate,
				shipping_address, billing_address, tracking_number, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
			ON CONFLICT (idempotency_key) DO NOTHING`,
			o.ID, o.SubscriptionID, o.UserID, string(o.Status), string(o.PaymentStatus), o.PaymentRef,
			o.IdempotencyKey, o.Currency, o.Subtotal, o.Shipping, o.Tax, o.Discount, o.Total, o.TaxRate,
			shipping, billing, o.TrackingNumber, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return postgres.MapError(err)
		}
		if ct.RowsAffected() == 0 {
			return DuplicateError(o)
		}
		for _, l := range o.Lines {
			if _, err := r.DB.Q(ctx).Exec(ctx, `
				INSERT INTO order_lines(id, order_id, variant_id, product_name, quantity, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				l.ID, l.OrderID, l.VariantID, l.ProductName, l.Quantity, l.UnitPrice, l.LineTotal); err != nil {
				return postgres.MapError(err)
			}
		}
		return nil
	})
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *Repo) GetBySubscription(ctx context.Context, subscriptionID string) ([]*Order, error) {
	rows, err := r.DB.Q(ctx).Query(ctx,
		`SELECT id FROM orders WHERE subscription_id = $1 ORDER BY created_at`, subscriptionID)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, postgres.MapError(err)
	}
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// AdvanceStatus moves the order one step along the fulfilment path.
func (r *Repo) AdvanceStatus(ctx context.Context, id string, to Status, tracking string) (*Order, error) {
	var out *Order
	err := r.DB.WithTx(ctx, func(ctx context.Context) error {
		o, err := r.get(ctx, `WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, to) {
			return ierr.NewError("invalid order transition").
				WithHintf("an order that is %s cannot become %s", o.Status, to).
				Mark(ierr.ErrInvalidState)
		}
		if to == StatusShipped && tracking == "" {
			return ierr.NewError("tracking number required").Mark(ierr.ErrValidation)
		}
		o.Status = to
		if tracking != "" {
			o.TrackingNumber = tracking
		}
		if _, err := r.DB.Q(ctx).Exec(ctx,
			`UPDATE orders SET status = $2, tracking_number = $3, updated_at = now() WHERE id = $1`,
			o.ID, string(o.Status), o.TrackingNumber); err != nil {
			return postgres.MapError(err)
		}
		out = o
		return nil
	})
	return out, err
}

func (r *Repo) get(ctx context.Context, where string, args ...any) (*Order, error) {
	var (
		o                 Order
		status, payStatus string
		subID             *string
		shipping, billing []byte
	)
	err := r.DB.Q(ctx).QueryRow(ctx, `
		SELECT id, subscription_id, user_id, status, payment_status, payment_ref, idempotency_key,
			currency, subtotal, shipping, tax, discount, total, tax_rate,
			shipping_address, billing_address, tracking_number, created_at, updated_at
		FROM orders `+where, args...).
		Scan(&o.ID, &subID, &o.UserID, &status, &payStatus, &o.PaymentRef, &o.IdempotencyKey,
			&o.Currency, &o.Subtotal, &o.Shipping, &o.Tax, &o.Discount, &o.Total, &o.TaxRate,
			&shipping, &billing, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	if subID != nil {
		o.SubscriptionID = *subID
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	rows, err := r.DB.Q(ctx).Query(ctx, `
		SELECT id, order_id, variant_id, product_name, quantity, unit_price, line_total
		FROM order_lines WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.VariantID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, postgres.MapError(err)
		}
		o.Lines = append(o.Lines, l)
	}
	return &o, postgres.MapError(rows.Err())
}

// DuplicateError is returned when an idempotency key was already used.
func DuplicateError(o *Order) error {
	return ierr.NewError("order already exists for this billing attempt").
		WithReportableDetails(map[string]any{"order_id": o.ID, "idempotency_key": o.IdempotencyKey}).
		Mark(ierr.ErrInvalidState)
}
