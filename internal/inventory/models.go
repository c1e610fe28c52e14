package inventory

import (
	"fmt"
	"strings"
	"time"
)

// Inventory is the stock record of one variant at one location.
// Counters change only through Ledger operations.
type Inventory struct {
	ID                string
	VariantID         string
	LocationID        string
	QuantityAvailable int
	QuantityReserved  int
	QuantityCommitted int
	LowStockThreshold int
	ReorderPoint      int
	Version           int64
	LastRestockedAt   *time.Time
	LastSoldAt        *time.Time
	UpdatedAt         time.Time
}

// AvailableForSale is the only quantity ever shown to buyers.
func (i *Inventory) AvailableForSale() int {
	if n := i.QuantityAvailable - i.QuantityReserved; n > 0 {
		return n
	}
	return 0
}

// Adjustment is an append-only audit row, one per counter mutation that changes stock.
type Adjustment struct {
	ID          string
	InventoryID string
	Delta       int
	Reason      string
	Actor       string
	Notes       string
	CreatedAt   time.Time
}

const (
	ReasonOrderConfirmed    = "order_confirmed"
	ReasonSubscriptionOrder = "subscription order"
	ReasonRestock           = "restock"
	ReasonWarehouseSync     = "warehouse_sync"
	ReasonManual            = "manual"
)

type Reservation struct {
	ID          string
	InventoryID string
	VariantID   string
	Ref         string // order, cart session or subscription reference
	Quantity    int
	Status      ReservationStatus
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
}

// Item is a variant/quantity pair used by multi-variant operations.
type Item struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Snapshot is a lock-free view for callers that only need to detect staleness.
type Snapshot struct {
	VariantID        string `json:"variant_id"`
	AvailableForSale int    `json:"available_for_sale"`
	Version          int64  `json:"version"`
	LowStock         bool   `json:"low_stock"`
}

type Shortage struct {
	VariantID string `json:"variant_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// ShortageError carries every variant that could not be satisfied.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s requested=%d available=%d", s.VariantID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}
