package pricing

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const keyActiveMethods = "shipping:active"

// CachedShipping memoizes the active method list; it changes rarely and every
// billing pass reads it once per subscription.
type CachedShipping struct {
	next  ShippingMethods
	cache *cache.Cache
}

func NewCachedShipping(next ShippingMethods, ttl time.Duration) ShippingMethods {
	if ttl <= 0 {
		return next
	}
	return &CachedShipping{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedShipping) ActiveMethods(ctx context.Context) ([]ShippingMethod, error) {
	if v, ok := c.cache.Get(keyActiveMethods); ok {
		return v.([]ShippingMethod), nil
	}
	methods, err := c.next.ActiveMethods(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(keyActiveMethods, methods)
	return methods, nil
}

type CachedTaxRates struct {
	next  TaxRates
	cache *cache.Cache
}

func NewCachedTaxRates(next TaxRates, ttl time.Duration) TaxRates {
	if ttl <= 0 {
		return next
	}
	return &CachedTaxRates{next: next, cache: cache.New(ttl, 2*ttl)}
}

// errors are not cached
func (c *CachedTaxRates) Rate(ctx context.Context, country, state string) (decimal.Decimal, error) {
	key := country + "|" + state
	if v, ok := c.cache.Get(key); ok {
		return v.(decimal.Decimal), nil
	}
	rate, err := c.next.Rate(ctx, country, state)
	if err != nil {
		return decimal.Zero, err
	}
	c.cache.SetDefault(key, rate)
	return rate, nil
}
