package pricing

import (
	"context"
	"strings"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Recalculator computes a price breakdown. It never writes anything; lookup
// failures degrade (floor shipping, zero tax, no discount) instead of failing.
type Recalculator struct {
	shipping ShippingMethods
	tax      TaxRates
	promo    PromoCodes
	floor    decimal.Decimal
	log      *logger.Logger
}

func NewRecalculator(shipping ShippingMethods, tax TaxRates, promo PromoCodes, floor decimal.Decimal, log *logger.Logger) *Recalculator {
	return &Recalculator{shipping: shipping, tax: tax, promo: promo, floor: floor, log: log}
}

func (r *Recalculator) Calculate(ctx context.Context, in Input) (*Breakdown, error) {
	if len(in.Lines) == 0 {
		return nil, ierr.NewError("nothing to price").
			WithHint("at least one line item is required").
			Mark(ierr.ErrValidation)
	}

	b := &Breakdown{Lines: make([]LineBreakdown, 0, len(in.Lines))}
	for _, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			return nil, ierr.NewError("invalid line item").
				WithHintf("line %q needs a positive quantity and a non-negative price", l.VariantID).
				Mark(ierr.ErrValidation)
		}
		total := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(moneyPlaces)
		b.Lines = append(b.Lines, LineBreakdown{
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   total,
		})
		b.Subtotal = b.Subtotal.Add(total)
	}

	b.Shipping = r.resolveShipping(ctx, in.DeliveryType)
	b.Discount = r.resolveDiscount(ctx, in.DiscountCode, b.Subtotal)
	b.TaxRate = r.resolveTaxRate(ctx, in.Address)

	taxable := b.Subtotal.Sub(b.Discount).Add(b.Shipping)
	b.Tax = taxable.Mul(b.TaxRate).Round(moneyPlaces)
	b.Total = taxable.Add(b.Tax)
	return b, nil
}

// resolveShipping picks the cheapest active method whose name contains the
// delivery type, else the cheapest active method, else the floor.
func (r *Recalculator) resolveShipping(ctx context.Context, deliveryType string) decimal.Decimal {
	methods, err := r.shipping.ActiveMethods(ctx)
	if err != nil {
		r.log.Warnw("shipping lookup failed, using floor", "delivery_type", deliveryType, "error", err)
		return r.floor
	}

	want := strings.ToLower(strings.TrimSpace(deliveryType))
	var matched, cheapest *ShippingMethod
	for i := range methods {
		m := &methods[i]
		if !m.Active {
			continue
		}
		if cheapest == nil || m.Cost.LessThan(cheapest.Cost) {
			cheapest = m
		}
		if want != "" && strings.Contains(strings.ToLower(m.Name), want) {
			if matched == nil || m.Cost.LessThan(matched.Cost) {
				matched = m
			}
		}
	}
	switch {
	case matched != nil:
		return matched.Cost
	case cheapest != nil:
		return cheapest.Cost
	default:
		return r.floor
	}
}

func (r *Recalculator) resolveTaxRate(ctx context.Context, addr Address) decimal.Decimal {
	if addr.Country == "" {
		return decimal.Zero
	}
	rate, err := r.tax.Rate(ctx, strings.ToUpper(addr.Country), strings.ToUpper(addr.State))
	if err != nil {
		r.log.Warnw("tax lookup failed, charging no tax", "country", addr.Country, "state", addr.State, "error", err)
		return decimal.Zero
	}
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}

// resolveDiscount applies to the subtotal only and never exceeds it.
func (r *Recalculator) resolveDiscount(ctx context.Context, code string, subtotal decimal.Decimal) decimal.Decimal {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero
	}
	p, err := r.promo.Lookup(ctx, code)
	if err != nil {
		r.log.Warnw("promo lookup failed, no discount applied", "code", code, "error", err)
		return decimal.Zero
	}
	if p == nil || !p.Value.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch p.Kind {
	case PromoPercentage:
		d = subtotal.Mul(p.Value).Div(hundred).Round(moneyPlaces)
	case PromoFixed:
		d = p.Value.Round(moneyPlaces)
	default:
		r.log.Warnw("unknown promo kind", "code", code, "kind", p.Kind)
		return decimal.Zero
	}
	return decimal.Min(d, subtotal)
}

// ApplyCatalog replaces unit prices with live catalog prices. Variants missing
// from the catalog keep the price they carry.
func ApplyCatalog(ctx context.Context, c Catalog, lines []Line, log *logger.Logger) ([]Line, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.VariantID)
	}
	prices, err := c.Prices(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = l
		p, ok := prices[l.VariantID]
		if !ok {
			log.Warnw("variant missing from catalog, keeping stored price", "variant_id", l.VariantID)
			continue
		}
		out[i].UnitPrice = p.UnitPrice
		if p.ProductName != "" {
			out[i].ProductName = p.ProductName
		}
	}
	return out, nil
}
