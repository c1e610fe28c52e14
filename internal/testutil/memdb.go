package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/ariefcatur/go-recurring-billing/internal/payment"
	"github.com/ariefcatur/go-recurring-billing/internal/subscription"
	"github.com/google/uuid"
)

const DefaultLocation = "main"

// MemDB is the in-memory counterpart of the Postgres schema. Each store view
// satisfies one package's Store contract.
type MemDB struct {
	Tx *TxManager
	// MaxAttempts mirrors the retry bound the Postgres due query uses.
	MaxAttempts int

	mu            sync.Mutex
	inventory     map[string]*inventory.Inventory
	byVariant     map[string]string // location/variant -> inventory id
	adjustments   []inventory.Adjustment
	reservations  map[string]*inventory.Reservation
	subscriptions map[string]*subscription.Subscription
	orders        map[string]*orders.Order
	orderKeys     map[string]string
	methods       map[string]*payment.Method
}

func NewMemDB() *MemDB {
	return &MemDB{
		Tx:            NewTxManager(2 * time.Second),
		MaxAttempts:   3,
		inventory:     map[string]*inventory.Inventory{},
		byVariant:     map[string]string{},
		reservations:  map[string]*inventory.Reservation{},
		subscriptions: map[string]*subscription.Subscription{},
		orders:        map[string]*orders.Order{},
		orderKeys:     map[string]string{},
		methods:       map[string]*payment.Method{},
	}
}

func (db *MemDB) Inventory() *InventoryStore { return &InventoryStore{db: db} }

func (db *MemDB) Subscriptions() *SubscriptionStore { return &SubscriptionStore{db: db} }

func (db *MemDB) Orders() *OrderStore { return &OrderStore{db: db} }

func (db *MemDB) Methods() *MethodStore { return &MethodStore{db: db} }

func notLocked(key string) error {
	return ierr.NewError("row written without holding its lock").
		WithReportableDetails(map[string]any{"key": key}).
		Mark(ierr.ErrSystem)
}

// ---- seeding and inspection ----

func (db *MemDB) SeedInventory(variantID string, available, lowStockThreshold int) inventory.Inventory {
	db.mu.Lock()
	defer db.mu.Unlock()
	inv := &inventory.Inventory{
		ID:                uuid.NewString(),
		VariantID:         variantID,
		LocationID:        DefaultLocation,
		QuantityAvailable: available,
		LowStockThreshold: lowStockThreshold,
		UpdatedAt:         time.Now().UTC(),
	}
	db.inventory[inv.ID] = inv
	db.byVariant[DefaultLocation+"/"+variantID] = inv.ID
	return *inv
}

func (db *MemDB) InventoryOf(variantID string) inventory.Inventory {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.inventory[db.byVariant[DefaultLocation+"/"+variantID]]
}

func (db *MemDB) Adjustments(variantID string) []inventory.Adjustment {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := db.byVariant[DefaultLocation+"/"+variantID]
	var out []inventory.Adjustment
	for _, a := range db.adjustments {
		if a.InventoryID == id {
			out = append(out, a)
		}
	}
	return out
}

func (db *MemDB) Reservation(id string) inventory.Reservation {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.reservations[id]
}

// AgeReservation moves a reservation's expiry, e.g. into the past.
func (db *MemDB) AgeReservation(id string, expiresAt time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reservations[id].ExpiresAt = expiresAt
}

func (db *MemDB) SeedSubscription(s *subscription.Subscription) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.subscriptions[s.ID] = copySubscription(s)
}

func (db *MemDB) Subscription(id string) subscription.Subscription {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *copySubscription(db.subscriptions[id])
}

func (db *MemDB) SetDefaultMethod(m payment.Method) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m.IsDefault = true
	db.methods[m.UserID] = &m
}

func (db *MemDB) OrdersFor(subscriptionID string) []orders.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []orders.Order
	for _, o := range db.orders {
		if o.SubscriptionID == subscriptionID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func copySubscription(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	c.Items = append([]subscription.Item(nil), s.Items...)
	return &c
}

// ---- inventory.Store ----

type InventoryStore struct{ db *MemDB }

var _ inventory.Store = (*InventoryStore)(nil)

func invKey(id string) string { return "inventory:" + id }
func resKey(id string) string { return "reservation:" + id }

func (s *InventoryStore) LockInventory(ctx context.Context, location string, variantIDs []string) ([]*inventory.Inventory, error) {
	out := make([]*inventory.Inventory, 0, len(variantIDs))
	for _, v := range variantIDs {
		s.db.mu.Lock()
		id, ok := s.db.byVariant[location+"/"+v]
		s.db.mu.Unlock()
		if !ok {
			return nil, ierr.NewError("inventory record missing").
				WithReportableDetails(map[string]any{"variant_id": v}).
				Mark(ierr.ErrNotFound)
		}
		if err := s.db.Tx.Lock(ctx, invKey(id)); err != nil {
			return nil, err
		}
		s.db.mu.Lock()
		c := *s.db.inventory[id]
		s.db.mu.Unlock()
		out = append(out, &c)
	}
	return out, nil
}

func (s *InventoryStore) GetInventory(ctx context.Context, location, variantID string) (*inventory.Inventory, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	id, ok := s.db.byVariant[location+"/"+variantID]
	if !ok {
		return nil, ierr.NewError("inventory not found").Mark(ierr.ErrNotFound)
	}
	c := *s.db.inventory[id]
	return &c, nil
}

func (s *InventoryStore) UpdateInventory(ctx context.Context, inv *inventory.Inventory, expectedVersion int64) error {
	if !s.db.Tx.Holds(ctx, invKey(inv.ID)) {
		return notLocked(invKey(inv.ID))
	}
	if inv.QuantityAvailable < 0 || inv.QuantityReserved < 0 || inv.QuantityCommitted < 0 {
		return ierr.NewError("inventory check constraint violated").Mark(ierr.ErrDatabase)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.inventory[inv.ID]
	if !ok {
		return ierr.NewError("inventory not found").Mark(ierr.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return ierr.NewError("inventory version changed").Mark(ierr.ErrVersionConflict)
	}
	prev := *cur
	next := *inv
	s.db.inventory[inv.ID] = &next
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		s.db.inventory[prev.ID] = &prev
	})
	return nil
}

func (s *InventoryStore) InsertAdjustment(ctx context.Context, adj *inventory.Adjustment) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.adjustments = append(s.db.adjustments, *adj)
	id := adj.ID
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		for i := range s.db.adjustments {
			if s.db.adjustments[i].ID == id {
				s.db.adjustments = append(s.db.adjustments[:i], s.db.adjustments[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InventoryStore) CreateReservation(ctx context.Context, r *inventory.Reservation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c := *r
	s.db.reservations[r.ID] = &c
	id := r.ID
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		delete(s.db.reservations, id)
	})
	return nil
}

func (s *InventoryStore) GetReservation(ctx context.Context, id string) (*inventory.Reservation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.reservations[id]
	if !ok {
		return nil, ierr.NewError("reservation not found").Mark(ierr.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (s *InventoryStore) LockReservation(ctx context.Context, id string) (*inventory.Reservation, error) {
	if _, err := s.GetReservation(ctx, id); err != nil {
		return nil, err
	}
	if err := s.db.Tx.Lock(ctx, resKey(id)); err != nil {
		return nil, err
	}
	return s.GetReservation(ctx, id)
}

func (s *InventoryStore) UpdateReservation(ctx context.Context, r *inventory.Reservation) error {
	if !s.db.Tx.Holds(ctx, resKey(r.ID)) {
		return notLocked(resKey(r.ID))
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev := *s.db.reservations[r.ID]
	c := *r
	s.db.reservations[r.ID] = &c
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		s.db.reservations[prev.ID] = &prev
	})
	return nil
}

func (s *InventoryStore) ListReservationsByRef(ctx context.Context, ref string) ([]*inventory.Reservation, error) {
	return s.list(func(r *inventory.Reservation) bool { return r.Ref == ref }, 0), nil
}

func (s *InventoryStore) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*inventory.Reservation, error) {
	return s.list(func(r *inventory.Reservation) bool {
		return r.Status == inventory.StatusReserved && r.ExpiresAt.Before(now)
	}, limit), nil
}

func (s *InventoryStore) list(match func(*inventory.Reservation) bool, limit int) []*inventory.Reservation {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*inventory.Reservation
	for _, r := range s.db.reservations {
		if match(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ---- subscription.Store ----

type SubscriptionStore struct{ db *MemDB }

var _ subscription.Store = (*SubscriptionStore)(nil)

func subKey(id string) string { return "subscription:" + id }

func (s *SubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.subscriptions[sub.ID] = copySubscription(sub)
	id := sub.ID
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		delete(s.db.subscriptions, id)
	})
	return nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sub, ok := s.db.subscriptions[id]
	if !ok {
		return nil, ierr.NewError("subscription not found").Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *SubscriptionStore) Lock(ctx context.Context, id string) (*subscription.Subscription, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.db.Tx.Lock(ctx, subKey(id)); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SubscriptionStore) Claim(ctx context.Context, id string) (*subscription.Subscription, error) {
	if _, err := s.Get(ctx, id); err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	ok, err := s.db.Tx.TryLock(ctx, subKey(id))
	if err != nil || !ok {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SubscriptionStore) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var due []*subscription.Subscription
	for _, sub := range s.db.subscriptions {
		if sub.IsDue(now, s.db.MaxAttempts) {
			due = append(due, sub)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	out := make([]string, 0, len(due))
	for _, sub := range due {
		out = append(out, sub.ID)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if !s.db.Tx.Holds(ctx, subKey(sub.ID)) {
		return notLocked(subKey(sub.ID))
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	prev, ok := s.db.subscriptions[sub.ID]
	if !ok {
		return ierr.NewError("subscription not found").Mark(ierr.ErrNotFound)
	}
	s.db.subscriptions[sub.ID] = copySubscription(sub)
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		s.db.subscriptions[prev.ID] = prev
	})
	return nil
}

// ---- orders ----

type OrderStore struct{ db *MemDB }

func (s *OrderStore) Create(ctx context.Context, o *orders.Order) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, dup := s.db.orderKeys[o.IdempotencyKey]; dup {
		return orders.DuplicateError(o)
	}
	c := *o
	c.Lines = append([]orders.Line(nil), o.Lines...)
	s.db.orders[o.ID] = &c
	s.db.orderKeys[o.IdempotencyKey] = o.ID
	id, key := o.ID, o.IdempotencyKey
	OnRollback(ctx, func() {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		delete(s.db.orders, id)
		delete(s.db.orderKeys, key)
	})
	return nil
}

// ---- payment methods ----

type MethodStore struct{ db *MemDB }

func (s *MethodStore) DefaultForUser(ctx context.Context, userID string) (*payment.Method, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.methods[userID]
	if !ok {
		return nil, payment.NoMethodError(userID)
	}
	c := *m
	return &c, nil
}
