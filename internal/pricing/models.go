package pricing

import (
	"github.com/shopspring/decimal"
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

// Line is one priced item. UnitPrice is the live catalog price, not a snapshot.
type Line struct {
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Input struct {
	Lines        []Line
	DeliveryType string
	Address      Address
	DiscountCode string
}

type LineBreakdown struct {
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Breakdown is also persisted as the subscription price snapshot.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	Lines    []LineBreakdown `json:"lines"`
}

type ShippingMethod struct {
	ID     string
	Name   string
	Cost   decimal.Decimal
	Active bool
}

type PromoKind string

const (
	PromoPercentage PromoKind = "percentage"
	PromoFixed      PromoKind = "fixed"
)

// Promo is a resolved discount. For PromoPercentage, Value is in percent (10 = 10%).
type Promo struct {
	Code  string
	Kind  PromoKind
	Value decimal.Decimal
}

// CatalogPrice is the live price of a variant.
type CatalogPrice struct {
	VariantID   string
	ProductName string
	UnitPrice   decimal.Decimal
}
