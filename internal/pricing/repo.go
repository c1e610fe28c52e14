package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repo serves every pricing lookup from Postgres. Lookups run on their own
// connection so a billing transaction never sees their failures.
type Repo struct{ Q postgres.Querier }

func NewRepo(db *postgres.DB) *Repo { return &Repo{Q: db.Outside()} }

func (r *Repo) ActiveMethods(ctx context.Context) ([]ShippingMethod, error) {
	rows, err := r.Q.Query(ctx,
		`SELECT id, name, cost, is_active FROM shipping_methods WHERE is_active ORDER BY cost, id`)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []ShippingMethod
	for rows.Next() {
		var m ShippingMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Cost, &m.Active); err != nil {
			return nil, postgres.MapError(err)
		}
		out = append(out, m)
	}
	return out, postgres.MapError(rows.Err())
}

// Rate prefers the state row and falls back to the country-wide row (state '').
func (r *Repo) Rate(ctx context.Context, country, state string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.Q.QueryRow(ctx, `
		SELECT rate FROM tax_rates
		WHERE country = $1 AND state IN ($2, '')
		ORDER BY state DESC
		LIMIT 1`, country, state).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, postgres.MapError(err)
	}
	return rate, nil
}

func (r *Repo) Lookup(ctx context.Context, code string) (*Promo, error) {
	var (
		p       Promo
		kind    string
		expires *time.Time
	)
	err := r.Q.QueryRow(ctx, `
		SELECT code, kind, value, expires_at FROM promo_codes
		WHERE upper(code) = upper($1) AND is_active`, code).Scan(&p.Code, &kind, &p.Value, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, postgres.MapError(err)
	}
	if expires != nil && expires.Before(time.Now()) {
		return nil, nil
	}
	p.Kind = PromoKind(kind)
	return &p, nil
}

func (r *Repo) Prices(ctx context.Context, variantIDs []string) (map[string]CatalogPrice, error) {
	rows, err := r.Q.Query(ctx, `
		SELECT variant_id, product_name, unit_price FROM catalog_prices
		WHERE variant_id = ANY($1) AND is_active`, variantIDs)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	out := make(map[string]CatalogPrice, len(variantIDs))
	for rows.Next() {
		var p CatalogPrice
		if err := rows.Scan(&p.VariantID, &p.ProductName, &p.UnitPrice); err != nil {
			return nil, postgres.MapError(err)
		}
		out[p.VariantID] = p
	}
	return out, postgres.MapError(rows.Err())
}
