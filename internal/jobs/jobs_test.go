package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *memLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[job] {
		return false, nil
	}
	l.held[job] = true
	return true, nil
}

func (l *memLocker) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, job)
	l.released = append(l.released, job)
	return nil
}

func TestRunnerHoldsLeaseWhileRunning(t *testing.T) {
	locker := &memLocker{held: map[string]bool{}}
	r := NewRunner(locker, time.Minute, logger.NewNop())
	ctx := context.Background()

	ran, err := r.Run(ctx, Billing, func(ctx context.Context) error {
		nested, err := r.Run(ctx, Billing, func(context.Context) error {
			t.Fatal("must not run while the lease is held")
			return nil
		})
		assert.False(t, nested)
		return err
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{Billing}, locker.released)

	// a different job is independent
	ran, err = r.Run(ctx, Sweep, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRunnerReleasesOnFailure(t *testing.T) {
	locker := &memLocker{held: map[string]bool{}}
	r := NewRunner(locker, time.Minute, logger.NewNop())
	boom := errors.New("boom")

	ran, err := r.Run(context.Background(), Sweep, func(context.Context) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, locker.held)
}

func TestRunnerWithoutLocker(t *testing.T) {
	r := NewRunner(nil, 0, logger.NewNop())
	calls := 0
	for i := 0; i < 2; i++ {
		ran, err := r.Run(context.Background(), Billing, func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	}
	assert.Equal(t, 2, calls)
}
