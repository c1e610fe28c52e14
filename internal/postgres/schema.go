package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id                  TEXT PRIMARY KEY,
		variant_id          TEXT NOT NULL,
		location_id         TEXT NOT NULL,
		quantity_available  INTEGER NOT NULL DEFAULT 0 CHECK (quantity_available >= 0),
		quantity_reserved   INTEGER NOT NULL DEFAULT 0 CHECK (quantity_reserved >= 0),
		quantity_committed  INTEGER NOT NULL DEFAULT 0 CHECK (quantity_committed >= 0),
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		reorder_point       INTEGER NOT NULL DEFAULT 0,
		version             BIGINT NOT NULL DEFAULT 0,
		last_restocked_at   TIMESTAMPTZ,
		last_sold_at        TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (variant_id, location_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		id           TEXT PRIMARY KEY,
		inventory_id TEXT NOT NULL REFERENCES inventory(id),
		delta        INTEGER NOT NULL,
		reason       TEXT NOT NULL,
		actor        TEXT NOT NULL,
		notes        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_reservations (
		id           TEXT PRIMARY KEY,
		inventory_id TEXT NOT NULL REFERENCES inventory(id),
		variant_id   TEXT NOT NULL,
		ref          TEXT NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0),
		status       TEXT NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_reservations_expiry_idx
		ON inventory_reservations (expires_at) WHERE status = 'reserved'`,
	`CREATE INDEX IF NOT EXISTS inventory_reservations_ref_idx ON inventory_reservations (ref)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id                   TEXT PRIMARY KEY,
		user_id              TEXT NOT NULL,
		items                JSONB NOT NULL,
		delivery_type        TEXT NOT NULL,
		shipping_address     JSONB NOT NULL,
		discount_code        TEXT NOT NULL DEFAULT '',
		currency             TEXT NOT NULL,
		billing_cycle        TEXT NOT NULL,
		status               TEXT NOT NULL,
		current_period_start TIMESTAMPTZ NOT NULL,
		current_period_end   TIMESTAMPTZ NOT NULL,
		next_billing_date    TIMESTAMPTZ NOT NULL,
		payment_retry_count  INTEGER NOT NULL DEFAULT 0,
		next_retry_date      TIMESTAMPTZ,
		last_payment_error   TEXT NOT NULL DEFAULT '',
		initial_price        JSONB NOT NULL,
		current_price        JSONB NOT NULL,
		paused_at            TIMESTAMPTZ,
		cancelled_at         TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS subscriptions_due_idx ON subscriptions (status, next_billing_date)`,
	`CREATE INDEX IF NOT EXISTS subscriptions_retry_idx ON subscriptions (status, next_retry_date)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                 TEXT PRIMARY KEY,
		subscription_id    TEXT,
		user_id            TEXT NOT NULL,
		status             TEXT NOT NULL,
		payment_status     TEXT NOT NULL,
		payment_ref        TEXT NOT NULL DEFAULT '',
		idempotency_key    TEXT NOT NULL UNIQUE,
		currency           TEXT NOT NULL,
		subtotal           NUMERIC(12,2) NOT NULL,
		shipping           NUMERIC(12,2) NOT NULL,
		tax                NUMERIC(12,2) NOT NULL,
		discount           NUMERIC(12,2) NOT NULL,
		total              NUMERIC(12,2) NOT NULL,
		tax_rate           NUMERIC(8,5) NOT NULL,
		shipping_address   JSONB NOT NULL,
		billing_address    JSONB NOT NULL,
		tracking_number    TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		id           TEXT PRIMARY KEY,
		order_id     TEXT NOT NULL REFERENCES orders(id),
		variant_id   TEXT NOT NULL,
		product_name TEXT NOT NULL,
		quantity     INTEGER NOT NULL,
		unit_price   NUMERIC(12,2) NOT NULL,
		line_total   NUMERIC(12,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		brand       TEXT NOT NULL DEFAULT '',
		last4       TEXT NOT NULL DEFAULT '',
		is_default  BOOLEAN NOT NULL DEFAULT false,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS shipping_methods (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		cost      NUMERIC(12,2) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS tax_rates (
		country TEXT NOT NULL,
		state   TEXT NOT NULL DEFAULT '',
		rate    NUMERIC(8,5) NOT NULL,
		PRIMARY KEY (country, state)
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_prices (
		variant_id   TEXT PRIMARY KEY,
		product_name TEXT NOT NULL,
		unit_price   NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
		is_active    BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS promo_codes (
		code       TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		value      NUMERIC(12,2) NOT NULL,
		is_active  BOOLEAN NOT NULL DEFAULT true,
		expires_at TIMESTAMPTZ
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return MapError(err)
		}
	}
	return nil
}
