package inventory

import (
	"context"
	"sort"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const ledgerActor = "ledger"

// Ledger serializes every mutation of stock counters behind row locks.
// Each operation joins the caller's transaction when ctx carries one, so a
// reservation and, say, a charge record can commit or roll back together.
type Ledger struct {
	store    Store
	tx       Transactor
	location string
	ttl      time.Duration
	now      func() time.Time
	cache    SnapshotCache
	log      *logger.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithDefaultTTL sets the hold duration used when a caller passes ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(l *Ledger) { l.ttl = ttl }
}

// WithCache drops cached snapshots of variants the sweeper releases.
func WithCache(c SnapshotCache) Option {
	return func(l *Ledger) { l.cache = c }
}

func NewLedger(store Store, tx Transactor, location string, log *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		tx:       tx,
		location: location,
		ttl:      15 * time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

type AdjustParams struct {
	VariantID string `json:"variant_id" validate:"required"`
	Delta     int    `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
	Actor     string `json:"actor" validate:"required"`
	Notes     string `json:"notes"`
}

// lockOrder is the single total order every multi-row path locks in.
func lockOrder(variantIDs []string) []string {
	ids := lo.Uniq(variantIDs)
	sort.Strings(ids)
	return ids
}

// Lock takes the row lock of one variant. Must run inside a transaction.
func (l *Ledger) Lock(ctx context.Context, variantID string) (*Inventory, error) {
	recs, err := l.LockMany(ctx, []string{variantID})
	if err != nil {
		return nil, err
	}
	return recs[variantID], nil
}

// LockMany locks the given variants in ascending id order. Must run inside a transaction.
func (l *Ledger) LockMany(ctx context.Context, variantIDs []string) (map[string]*Inventory, error) {
	ids := lockOrder(variantIDs)
	if len(ids) == 0 {
		return map[string]*Inventory{}, nil
	}
	recs, err := l.store.LockInventory(ctx, l.location, ids)
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(recs, func(i *Inventory) string { return i.VariantID }), nil
}

// Adjust changes quantity_available by delta and records the audit row.
func (l *Ledger) Adjust(ctx context.Context, p AdjustParams) (*Inventory, error) {
	out, err := l.AdjustMany(ctx, []AdjustParams{p})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// AdjustMany applies several adjustments atomically, e.g. a warehouse bulk sync
// or the lines of one subscription order.
func (l *Ledger) AdjustMany(ctx context.Context, params []AdjustParams) ([]*Inventory, error) {
	if len(params) == 0 {
		return nil, ierr.NewError("no adjustments given").Mark(ierr.ErrValidation)
	}
	for _, p := range params {
		if p.VariantID == "" || p.Delta == 0 || p.Reason == "" || p.Actor == "" {
			return nil, ierr.NewError("invalid adjustment").
				WithHint("variant, non-zero delta, reason and actor are required").
				WithReportableDetails(map[string]any{"variant_id": p.VariantID, "delta": p.Delta}).
				Mark(ierr.ErrValidation)
		}
	}

	var out []*Inventory
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		recs, err := l.LockMany(ctx, lo.Map(params, func(p AdjustParams, _ int) string { return p.VariantID }))
		if err != nil {
			return err
		}
		now := l.now()
		out = make([]*Inventory, 0, len(params))
		for _, p := range params {
			inv := recs[p.VariantID]
			if inv.QuantityAvailable+p.Delta < 0 {
				return shortage(Shortage{VariantID: p.VariantID, Requested: -p.Delta, Available: inv.QuantityAvailable})
			}
			inv.QuantityAvailable += p.Delta
			stamp := now
			if p.Delta > 0 {
				inv.LastRestockedAt = &stamp
			} else {
				inv.LastSoldAt = &stamp
			}
			if err := l.save(ctx, inv, now); err != nil {
				return err
			}
			if err := l.store.InsertAdjustment(ctx, &Adjustment{
				ID:          uuid.NewString(),
				InventoryID: inv.ID,
				Delta:       p.Delta,
				Reason:      p.Reason,
				Actor:       p.Actor,
				Notes:       p.Notes,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
			out = append(out, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reserve holds quantity units of a variant for ref until now+ttl.
func (l *Ledger) Reserve(ctx context.Context, variantID string, quantity int, ref string, ttl time.Duration) (*Reservation, error) {
	out, err := l.ReserveMany(ctx, ref, []Item{{VariantID: variantID, Quantity: quantity}}, ttl)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ReserveMany holds every item for ref or none of them. All shortages are reported together.
func (l *Ledger) ReserveMany(ctx context.Context, ref string, items []Item, ttl time.Duration) ([]*Reservation, error) {
	if ref == "" || len(items) == 0 {
		return nil, ierr.NewError("reference and items are required").Mark(ierr.ErrValidation)
	}
	for _, it := range items {
		if it.VariantID == "" || it.Quantity <= 0 {
			return nil, ierr.NewError("invalid reservation item").
				WithHintf("quantity for %q must be positive", it.VariantID).
				Mark(ierr.ErrValidation)
		}
	}
	if ttl <= 0 {
		ttl = l.ttl
	}

	var out []*Reservation
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		ids := lo.Map(items, func(it Item, _ int) string { return it.VariantID })
		recs, err := l.LockMany(ctx, ids)
		if err != nil {
			return err
		}

		need := map[string]int{}
		for _, it := range items {
			need[it.VariantID] += it.Quantity
		}
		var short []Shortage
		for _, id := range lockOrder(ids) {
			if afs := recs[id].AvailableForSale(); need[id] > afs {
				short = append(short, Shortage{VariantID: id, Requested: need[id], Available: afs})
			}
		}
		if len(short) > 0 {
			return shortage(short...)
		}

		now := l.now()
		out = make([]*Reservation, 0, len(items))
		for _, it := range items {
			inv := recs[it.VariantID]
			inv.QuantityReserved += it.Quantity
			if err := l.save(ctx, inv, now); err != nil {
				return err
			}
			r := &Reservation{
				ID:          uuid.NewString(),
				InventoryID: inv.ID,
				VariantID:   inv.VariantID,
				Ref:         ref,
				Quantity:    it.Quantity,
				Status:      StatusReserved,
				ExpiresAt:   now.Add(ttl),
				CreatedAt:   now,
			}
			if err := l.store.CreateReservation(ctx, r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm turns a hold into committed stock. Only a reserved reservation can be confirmed.
func (l *Ledger) Confirm(ctx context.Context, reservationID string) (*Reservation, error) {
	return l.settle(ctx, reservationID, StatusConfirmed)
}

// Cancel releases a hold. Cancelling a terminal reservation is a no-op.
func (l *Ledger) Cancel(ctx context.Context, reservationID string) (*Reservation, error) {
	return l.settle(ctx, reservationID, StatusCancelled)
}

func (l *Ledger) settle(ctx context.Context, reservationID string, to ReservationStatus) (*Reservation, error) {
	var out *Reservation
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		peek, err := l.store.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		inv, err := l.Lock(ctx, peek.VariantID)
		if err != nil {
			return err
		}
		r, err := l.store.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		out = r
		if r.Status.IsTerminal() {
			if to == StatusConfirmed {
				return invalidState(r, to)
			}
			return nil
		}
		return l.apply(ctx, inv, r, to, l.now())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmRef confirms every open reservation of ref. Already confirmed ones are skipped.
func (l *Ledger) ConfirmRef(ctx context.Context, ref string) ([]*Reservation, error) {
	return l.settleRef(ctx, ref, StatusConfirmed)
}

// CancelRef releases every open reservation of ref.
func (l *Ledger) CancelRef(ctx context.Context, ref string) ([]*Reservation, error) {
	return l.settleRef(ctx, ref, StatusCancelled)
}

func (l *Ledger) settleRef(ctx context.Context, ref string, to ReservationStatus) ([]*Reservation, error) {
	var out []*Reservation
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		peek, err := l.store.ListReservationsByRef(ctx, ref)
		if err != nil {
			return err
		}
		if len(peek) == 0 {
			return ierr.NewError("no reservations for reference").
				WithReportableDetails(map[string]any{"ref": ref}).
				Mark(ierr.ErrNotFound)
		}
		recs, err := l.LockMany(ctx, lo.Map(peek, func(r *Reservation, _ int) string { return r.VariantID }))
		if err != nil {
			return err
		}
		sort.Slice(peek, func(i, j int) bool { return peek[i].ID < peek[j].ID })

		now := l.now()
		var closed *Reservation
		for _, p := range peek {
			r, err := l.store.LockReservation(ctx, p.ID)
			if err != nil {
				return err
			}
			if r.Status.IsTerminal() {
				// a restarted checkout leaves closed rows from the earlier attempt
				if to == StatusConfirmed && r.Status != StatusConfirmed {
					if closed == nil {
						closed = r
					}
					continue
				}
				out = append(out, r)
				continue
			}
			if err := l.apply(ctx, recs[r.VariantID], r, to, now); err != nil {
				return err
			}
			out = append(out, r)
		}
		if len(out) == 0 && closed != nil {
			return invalidState(closed, to)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// apply moves a reserved reservation into a terminal state. Both rows must be locked.
func (l *Ledger) apply(ctx context.Context, inv *Inventory, r *Reservation, to ReservationStatus, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return invalidState(r, to)
	}
	q := r.Quantity
	if inv.QuantityReserved < q {
		return ierr.NewError("reserved counter below reservation quantity").
			WithReportableDetails(map[string]any{
				"inventory_id":   inv.ID,
				"reservation_id": r.ID,
				"reserved":       inv.QuantityReserved,
				"quantity":       q,
			}).
			Mark(ierr.ErrSystem)
	}

	stamp := now
	switch to {
	case StatusConfirmed:
		if inv.QuantityAvailable < q {
			return shortage(Shortage{VariantID: inv.VariantID, Requested: q, Available: inv.QuantityAvailable})
		}
		inv.QuantityAvailable -= q
		inv.QuantityReserved -= q
		inv.QuantityCommitted += q
		inv.LastSoldAt = &stamp
		r.ConfirmedAt = &stamp
	default:
		inv.QuantityReserved -= q
		r.CancelledAt = &stamp
	}

	if err := l.save(ctx, inv, now); err != nil {
		return err
	}
	if to == StatusConfirmed {
		if err := l.store.InsertAdjustment(ctx, &Adjustment{
			ID:          uuid.NewString(),
			InventoryID: inv.ID,
			Delta:       -q,
			Reason:      ReasonOrderConfirmed,
			Actor:       ledgerActor,
			Notes:       "reservation " + r.ID + " ref " + r.Ref,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
	}
	r.Status = to
	return l.store.UpdateReservation(ctx, r)
}

// Reservations lists every reservation of ref without locking.
func (l *Ledger) Reservations(ctx context.Context, ref string) ([]*Reservation, error) {
	return l.store.ListReservationsByRef(ctx, ref)
}

// Snapshot reads without locking. The version lets callers detect staleness later.
func (l *Ledger) Snapshot(ctx context.Context, variantID string) (*Snapshot, error) {
	inv, err := l.store.GetInventory(ctx, l.location, variantID)
	if err != nil {
		return nil, err
	}
	afs := inv.AvailableForSale()
	return &Snapshot{
		VariantID:        inv.VariantID,
		AvailableForSale: afs,
		Version:          inv.Version,
		LowStock:         afs <= inv.LowStockThreshold,
	}, nil
}

func (l *Ledger) save(ctx context.Context, inv *Inventory, now time.Time) error {
	expected := inv.Version
	inv.Version++
	inv.UpdatedAt = now
	return l.store.UpdateInventory(ctx, inv, expected)
}

func shortage(s ...Shortage) error {
	b := ierr.WithError(&ShortageError{Shortages: s})
	if len(s) == 1 {
		b = b.WithHintf("only %d left", s[0].Available)
	}
	return b.WithReportableDetails(map[string]any{"shortages": s}).Mark(ierr.ErrInsufficientStock)
}

func invalidState(r *Reservation, to ReservationStatus) error {
	return ierr.NewError("reservation is not open").
		WithHintf("reservation is %s and cannot become %s", r.Status, to).
		WithReportableDetails(map[string]any{"reservation_id": r.ID, "status": r.Status}).
		Mark(ierr.ErrInvalidState)
}
