package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

type ShippingMethods interface {
	ActiveMethods(ctx context.Context) ([]ShippingMethod, error)
}

// TaxRates returns zero with a nil error when no rate is configured.
type TaxRates interface {
	Rate(ctx context.Context, country, state string) (decimal.Decimal, error)
}

// PromoCodes returns nil, nil for an unknown, inactive or expired code.
type PromoCodes interface {
	Lookup(ctx context.Context, code string) (*Promo, error)
}

// Catalog resolves live unit prices. Variants it does not know are absent from the map.
type Catalog interface {
	Prices(ctx context.Context, variantIDs []string) (map[string]CatalogPrice, error)
}
