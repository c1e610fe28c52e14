package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	pending []kafka.Message
	commits []kafka.Message
	closed  bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.commits...)
}

type handled struct {
	mu    sync.Mutex
	seen  map[int][]int64
	total int
}

func (h *handled) add(m kafka.Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen == nil {
		h.seen = map[int][]int64{}
	}
	h.seen[m.Partition] = append(h.seen[m.Partition], m.Offset)
	h.total++
	return h.total
}

func (h *handled) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func offsetsByPartition(msgs []kafka.Message) map[int][]int64 {
	out := map[int][]int64{}
	for _, m := range msgs {
		out[m.Partition] = append(out[m.Partition], m.Offset)
	}
	return out
}

func runConsumer(t *testing.T, r *fakeReader, workers int, h Handler) (context.CancelFunc, <-chan error) {
	t.Helper()
	c := newConsumer(r, workers, logger.NewNop(), WithRetryBackoff(time.Millisecond, 5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestConsumerRetriesFailedMessageBeforeLaterOffsets(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Partition: 0, Offset: 0, Key: []byte("cart_1")},
		{Partition: 1, Offset: 0, Key: []byte("cart_2")},
		{Partition: 0, Offset: 1, Key: []byte("cart_1")},
		{Partition: 1, Offset: 1, Key: []byte("cart_2")},
		{Partition: 0, Offset: 2, Key: []byte("cart_1")},
	}}
	var (
		seen     handled
		mu       sync.Mutex
		failures int
	)
	cancel, done := runConsumer(t, r, 2, func(ctx context.Context, m kafka.Message) error {
		seen.add(m)
		if m.Partition == 0 && m.Offset == 1 {
			mu.Lock()
			defer mu.Unlock()
			if failures < 2 {
				failures++
				return errors.New("database unavailable")
			}
		}
		return nil
	})

	require.Eventually(t, func() bool { return len(r.committed()) == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	commits := offsetsByPartition(r.committed())
	assert.Equal(t, []int64{0, 1, 2}, commits[0])
	assert.Equal(t, []int64{0, 1}, commits[1])
	assert.Equal(t, []int64{0, 1, 1, 1, 2}, seen.seen[0])
	assert.Equal(t, []int64{0, 1}, seen.seen[1])
	assert.True(t, r.closed)
}

func TestConsumerLeavesFailingMessageUncommittedOnShutdown(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Partition: 0, Offset: 7}}}
	var seen handled
	cancel, done := runConsumer(t, r, 1, func(ctx context.Context, m kafka.Message) error {
		seen.add(m)
		return errors.New("database unavailable")
	})

	require.Eventually(t, func() bool { return seen.count() >= 2 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, r.committed())
}

func TestConsumerDropsPermanentFailure(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Partition: 0, Offset: 3}}}
	var seen handled
	cancel, done := runConsumer(t, r, 1, func(ctx context.Context, m kafka.Message) error {
		seen.add(m)
		return backoff.Permanent(errors.New("unknown schema"))
	})

	require.Eventually(t, func() bool { return len(r.committed()) == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, seen.count())
}
