package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct {
	DB          *postgres.DB
	MaxAttempts int
}

func NewRepo(db *postgres.DB, maxAttempts int) *Repo {
	return &Repo{DB: db, MaxAttempts: maxAttempts}
}

const columns = `id, user_id, items, delivery_type, shipping_address, discount_code, currency,
	billing_cycle, status, current_period_start, current_period_end, next_billing_date,
	payment_retry_count, next_retry_date, last_payment_error, initial_price, current_price,
	paused_at, cancelled_at, created_at, updated_at`

func scan(row pgx.Row) (*Subscription, error) {
	var (
		s                          Subscription
		items, addr, initial, curr []byte
		cycle, status              string
	)
	err := row.Scan(&s.ID, &s.UserID, &items, &s.DeliveryType, &addr, &s.DiscountCode, &s.Currency,
		&cycle, &status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.NextBillingDate,
		&s.PaymentRetryCount, &s.NextRetryDate, &s.LastPaymentError, &initial, &curr,
		&s.PausedAt, &s.CancelledAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.BillingCycle = BillingCycle(cycle)
	s.Status = Status(status)
	for _, f := range []struct {
		raw []byte
		dst any
	}{{items, &s.Items}, {addr, &s.ShippingAddress}, {initial, &s.InitialPrice}, {curr, &s.CurrentPrice}} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, ierr.WithError(err).WithMessage("decode subscription").Mark(ierr.ErrSystem)
		}
	}
	return &s, nil
}

type encoded struct {
	items, addr, initial, curr []byte
}

func encode(s *Subscription) (encoded, error) {
	var (
		e   encoded
		err error
	)
	if e.items, err = json.Marshal(s.Items); err != nil {
		return e, err
	}
	if e.addr, err = json.Marshal(s.ShippingAddress); err != nil {
		return e, err
	}
	if e.initial, err = json.Marshal(s.InitialPrice); err != nil {
		return e, err
	}
	e.curr, err = json.Marshal(s.CurrentPrice)
	return e, err
}

func (r *Repo) Create(ctx context.Context, s *Subscription) error {
	e, err := encode(s)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	_, err = r.DB.Q(ctx).Exec(ctx, `
		INSERT INTO subscriptions(`+columns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		s.ID, s.UserID, e.items, s.DeliveryType, e.addr, s.DiscountCode, s.Currency,
		string(s.BillingCycle), string(s.Status), s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextBillingDate,
		s.PaymentRetryCount, s.NextRetryDate, s.LastPaymentError, e.initial, e.curr,
		s.PausedAt, s.CancelledAt, s.CreatedAt, s.UpdatedAt)
	return postgres.MapError(err)
}

func (r *Repo) Get(ctx context.Context, id string) (*Subscription, error) {
	return r.one(ctx, `SELECT `+columns+` FROM subscriptions WHERE id = $1`, id)
}

func (r *Repo) Lock(ctx context.Context, id string) (*Subscription, error) {
	return r.one(ctx, `SELECT `+columns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repo) Claim(ctx context.Context, id string) (*Subscription, error) {
	s, err := r.one(ctx, `SELECT `+columns+` FROM subscriptions WHERE id = $1 FOR UPDATE SKIP LOCKED`, id)
	if ierr.IsNotFound(err) {
		return nil, nil
	}
	return s, err
}

func (r *Repo) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.DB.Q(ctx).Query(ctx, `
		SELECT id FROM subscriptions
		WHERE (status = 'active' AND next_billing_date <= $1)
		   OR (status = 'payment_failed' AND (next_retry_date <= $1 OR payment_retry_count >= $2))
		ORDER BY COALESCE(next_retry_date, next_billing_date), id
		LIMIT $3`, now, r.MaxAttempts, limit)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, postgres.MapError(err)
}

func (r *Repo) Update(ctx context.Context, s *Subscription) error {
	e, err := encode(s)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	ct, err := r.DB.Q(ctx).Exec(ctx, `
		UPDATE subscriptions SET
			items = $2, delivery_type = $3, shipping_address = $4, discount_code = $5,
			status = $6, current_period_start = $7, current_period_end = $8, next_billing_date = $9,
			payment_retry_count = $10, next_retry_date = $11, last_payment_error = $12,
			current_price = $13, paused_at = $14, cancelled_at = $15, updated_at = $16
		WHERE id = $1`,
		s.ID, e.items, s.DeliveryType, e.addr, s.DiscountCode,
		string(s.Status), s.CurrentPeriodStart, s.CurrentPeriodEnd, s.NextBillingDate,
		s.PaymentRetryCount, s.NextRetryDate, s.LastPaymentError,
		e.curr, s.PausedAt, s.CancelledAt, s.UpdatedAt)
	if err != nil {
		return postgres.MapError(err)
	}
	if ct.RowsAffected() == 0 {
		return ierr.NewError("subscription not found").Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *Repo) one(ctx context.Context, sql string, args ...any) (*Subscription, error) {
	s, err := scan(r.DB.Q(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ierr.WithError(err).
			WithHint("subscription not found").
			Mark(ierr.ErrNotFound)
	}
	if err != nil && !ierr.Is(err, ierr.ErrSystem) {
		return nil, postgres.MapError(err)
	}
	return s, err
}
