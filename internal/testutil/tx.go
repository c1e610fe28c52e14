package testutil

import (
	"context"
	"sync"
	"time"

	ierr "github.com/ariefcatur/go-recurring-billing/internal/errors"
)

type txKey struct{}

type memTx struct {
	held  map[string]bool
	order []string
	undo  []func()
}

// TxManager gives in-memory stores Postgres-like transactions: exclusive row
// locks held until the outermost WithTx returns, a lock wait bound, and undo
// on rollback. Writes are visible to other goroutines immediately; every
// mutating path in the engine locks first, so that is enough for tests.
type TxManager struct {
	LockTimeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewTxManager(lockTimeout time.Duration) *TxManager {
	return &TxManager{LockTimeout: lockTimeout, locks: map[string]chan struct{}{}}
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}

	t := &memTx{held: map[string]bool{}}
	defer m.release(t)
	defer func() {
		if v := recover(); v != nil {
			t.rollback()
			panic(v)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (m *TxManager) release(t *memTx) {
	for i := len(t.order) - 1; i >= 0; i-- {
		<-m.lockFor(t.order[i])
	}
}

func (m *TxManager) lockFor(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}

func txFrom(ctx context.Context) *memTx {
	t, _ := ctx.Value(txKey{}).(*memTx)
	return t
}

// Lock waits for the row lock of key, like SELECT ... FOR UPDATE.
func (m *TxManager) Lock(ctx context.Context, key string) error {
	_, err := m.lock(ctx, key, true)
	return err
}

// TryLock is SELECT ... FOR UPDATE SKIP LOCKED for one row.
func (m *TxManager) TryLock(ctx context.Context, key string) (bool, error) {
	return m.lock(ctx, key, false)
}

func (m *TxManager) lock(ctx context.Context, key string, wait bool) (bool, error) {
	t := txFrom(ctx)
	if t == nil {
		return false, ierr.NewError("row lock outside transaction").
			WithReportableDetails(map[string]any{"key": key}).
			Mark(ierr.ErrSystem)
	}
	if t.held[key] {
		return true, nil
	}
	ch := m.lockFor(key)
	if !wait {
		select {
		case ch <- struct{}{}:
		default:
			return false, nil
		}
	} else {
		timer := time.NewTimer(m.LockTimeout)
		defer timer.Stop()
		select {
		case ch <- struct{}{}:
		case <-timer.C:
			return false, ierr.NewError("lock wait timeout").
				WithReportableDetails(map[string]any{"key": key}).
				Mark(ierr.ErrLockTimeout)
		case <-ctx.Done():
			return false, ierr.WithError(ctx.Err()).Mark(ierr.ErrLockTimeout)
		}
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return true, nil
}

// Holds reports whether the transaction in ctx holds key. Outside a
// transaction there is nothing to check and it reports true.
func (m *TxManager) Holds(ctx context.Context, key string) bool {
	t := txFrom(ctx)
	return t == nil || t.held[key]
}

// OnRollback registers undo for a write made in ctx's transaction.
func OnRollback(ctx context.Context, undo func()) {
	if t := txFrom(ctx); t != nil {
		t.undo = append(t.undo, undo)
	}
}
