package inventory

import (
	"context"
	"time"
)

// Store is the persistence contract of the ledger. Lock* methods take exclusive
// row locks that are held until the ambient transaction ends.
type Store interface {
	// LockInventory locks the records of variantIDs in the order given.
	// A variant without a record yields ErrNotFound.
	LockInventory(ctx context.Context, location string, variantIDs []string) ([]*Inventory, error)
	GetInventory(ctx context.Context, location, variantID string) (*Inventory, error)
	// UpdateInventory writes counters only if the stored version still equals expectedVersion.
	UpdateInventory(ctx context.Context, inv *Inventory, expectedVersion int64) error
	InsertAdjustment(ctx context.Context, adj *Adjustment) error

	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id string) (*Reservation, error)
	LockReservation(ctx context.Context, id string) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
	ListReservationsByRef(ctx context.Context, ref string) ([]*Reservation, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

// Transactor runs fn inside a transaction, joining one already carried by ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
