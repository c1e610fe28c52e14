package inventory

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

// SweepExpiredReservations expires every reserved hold whose expires_at has
// passed and returns how many it released. Committed stock is never touched.
// Each batch runs in its own transaction so a long backlog does not pin locks.
func (l *Ledger) SweepExpiredReservations(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	total := 0
	var prev []string
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		now := l.now()
		candidates, err := l.store.ListExpiredReservations(ctx, now, batchSize)
		if err != nil {
			return total, err
		}
		if len(candidates) == 0 {
			return total, nil
		}
		ids := lo.Map(candidates, func(r *Reservation, _ int) string { return r.ID })
		// holds settled concurrently drop out of the next listing; the same
		// batch coming back without progress would loop forever
		if lo.Every(prev, ids) {
			return total, nil
		}
		prev = ids

		variants, err := l.sweepBatch(ctx, candidates)
		total += len(variants)
		if err != nil {
			return total, err
		}
		if len(variants) > 0 {
			l.log.Infow("expired reservations released", "count", len(variants))
			l.invalidate(ctx, variants)
		}
		if len(candidates) < batchSize {
			return total, nil
		}
	}
}

// sweepBatch returns the variant of every hold it released, one entry per hold.
func (l *Ledger) sweepBatch(ctx context.Context, candidates []*Reservation) ([]string, error) {
	var released []string
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		released = released[:0]
		recs, err := l.LockMany(ctx, lo.Map(candidates, func(r *Reservation, _ int) string { return r.VariantID }))
		if err != nil {
			return err
		}
		sorted := append([]*Reservation(nil), candidates...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

		now := l.now()
		for _, c := range sorted {
			r, err := l.store.LockReservation(ctx, c.ID)
			if err != nil {
				return err
			}
			// recheck under lock, it may have been confirmed or cancelled since listing
			if r.Status != StatusReserved || !r.ExpiresAt.Before(now) {
				continue
			}
			if err := l.apply(ctx, recs[r.VariantID], r, StatusExpired, now); err != nil {
				return err
			}
			released = append(released, r.VariantID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (l *Ledger) invalidate(ctx context.Context, variantIDs []string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, lo.Uniq(variantIDs)...); err != nil {
		l.log.Warnw("snapshot cache invalidate failed", "variants", variantIDs, "error", err)
	}
}
