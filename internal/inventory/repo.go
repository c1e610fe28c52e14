package inventory

import (
	"context"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Repo is the Postgres Store. All statements run on the ambient transaction when present.
type Repo struct{ DB *postgres.DB }

func NewRepo(db *postgres.DB) *Repo { return &Repo{DB: db} }

const inventoryColumns = `id, variant_id, location_id, quantity_available, quantity_reserved,
	quantity_committed, low_stock_threshold, reorder_point, version,
	last_restocked_at, last_sold_at, updated_at`

const reservationColumns = `id, inventory_id, variant_id, ref, quantity, status,
	expires_at, confirmed_at, cancelled_at, created_at`

func scanInventory(row pgx.Row) (*Inventory, error) {
	var i Inventory
	err := row.Scan(&i.ID, &i.VariantID, &i.LocationID, &i.QuantityAvailable, &i.QuantityReserved,
		&i.QuantityCommitted, &i.LowStockThreshold, &i.ReorderPoint, &i.Version,
		&i.LastRestockedAt, &i.LastSoldAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var status string
	err := row.Scan(&r.ID, &r.InventoryID, &r.VariantID, &r.Ref, &r.Quantity, &status,
		&r.ExpiresAt, &r.ConfirmedAt, &r.CancelledAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = ReservationStatus(status)
	return &r, nil
}

// LockInventory relies on ORDER BY variant_id so lock acquisition follows the
// same total order regardless of the order the caller passes.
func (r *Repo) LockInventory(ctx context.Context, location string, variantIDs []string) ([]*Inventory, error) {
	rows, err := r.DB.Q(ctx).Query(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE location_id = $1 AND variant_id = ANY($2)
		ORDER BY variant_id
		FOR UPDATE`, location, variantIDs)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	out := make([]*Inventory, 0, len(variantIDs))
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, postgres.MapError(err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err)
	}
	if len(out) != len(variantIDs) {
		return nil, ierr.NewError("inventory record missing").
			WithHint("one or more variants are not stocked at this location").
			WithReportableDetails(map[string]any{"location": location, "variant_ids": variantIDs}).
			Mark(ierr.ErrNotFound)
	}
	return out, nil
}

func (r *Repo) GetInventory(ctx context.Context, location, variantID string) (*Inventory, error) {
	inv, err := scanInventory(r.DB.Q(ctx).QueryRow(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory WHERE location_id = $1 AND variant_id = $2`, location, variantID))
	if err != nil {
		return nil, postgres.MapError(err)
	}
	return inv, nil
}

func (r *Repo) UpdateInventory(ctx context.Context, inv *Inventory, expectedVersion int64) error {
	ct, err := r.DB.Q(ctx).Exec(ctx, `
		UPDATE inventory SET
			quantity_available = $3,
			quantity_reserved  = $4,
			quantity_committed = $5,
			version            = $6,
			last_restocked_at  = $7,
			last_sold_at       = $8,
			updated_at         = $9
		WHERE id = $1 AND version = $2`,
		inv.ID, expectedVersion, inv.QuantityAvailable, inv.QuantityReserved, inv.QuantityCommitted,
		inv.Version, inv.LastRestockedAt, inv.LastSoldAt, inv.UpdatedAt)
	if err != nil {
		return postgres.MapError(err)
	}
	if ct.RowsAffected() != 1 {
		return ierr.NewError("inventory version changed").
			WithReportableDetails(map[string]any{"inventory_id": inv.ID, "expected_version": expectedVersion}).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

func (r *Repo) InsertAdjustment(ctx context.Context, a *Adjustment) error {
	_, err := r.DB.Q(ctx).Exec(ctx, `
		INSERT INTO stock_adjustments(id, inventory_id, delta, reason, actor, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.InventoryID, a.Delta, a.Reason, a.Actor, a.Notes, a.CreatedAt)
	return postgres.MapError(err)
}

func (r *Repo) CreateReservation(ctx context.Context, res *Reservation) error {
	_, err := r.DB.Q(ctx).Exec(ctx, `
		INSERT INTO inventory_reservations(`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		res.ID, res.InventoryID, res.VariantID, res.Ref, res.Quantity, string(res.Status),
		res.ExpiresAt, res.ConfirmedAt, res.CancelledAt, res.CreatedAt)
	return postgres.MapError(err)
}

func (r *Repo) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	res, err := scanReservation(r.DB.Q(ctx).QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM inventory_reservations WHERE id = $1`, id))
	if err != nil {
		return nil, postgres.MapError(err)
	}
	return res, nil
}

func (r *Repo) LockReservation(ctx context.Context, id string) (*Reservation, error) {
	res, err := scanReservation(r.DB.Q(ctx).QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM inventory_reservations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, postgres.MapError(err)
	}
	return res, nil
}

func (r *Repo) UpdateReservation(ctx context.Context, res *Reservation) error {
	_, err := r.DB.Q(ctx).Exec(ctx, `
		UPDATE inventory_reservations
		SET status = $2, confirmed_at = $3, cancelled_at = $4
		WHERE id = $1`,
		res.ID, string(res.Status), res.ConfirmedAt, res.CancelledAt)
	return postgres.MapError(err)
}

func (r *Repo) ListReservationsByRef(ctx context.Context, ref string) ([]*Reservation, error) {
	return r.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM inventory_reservations WHERE ref = $1 ORDER BY id`, ref)
}

func (r *Repo) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*Reservation, error) {
	return r.listReservations(ctx, `
		SELECT `+reservationColumns+`
		FROM inventory_reservations
		WHERE status = 'reserved' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
}

func (r *Repo) listReservations(ctx context.Context, sql string, args ...any) ([]*Reservation, error) {
	rows, err := r.DB.Q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err)
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, postgres.MapError(err)
		}
		out = append(out, res)
	}
	return out, postgres.MapError(rows.Err())
}
