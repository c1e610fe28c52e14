package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	closed  bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerCloseFlushesBufferedMessages(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16, logger.NewNop())
	p.Start(context.Background())

	for _, ref := range []string{"sub_1", "sub_2", "sub_3"} {
		p.PublishEnvelope(NewEnvelope("PaymentSucceeded", "billing", ref, "", reservedPayload{Ref: ref}))
	}
	p.Close()
	p.WaitClosed()

	require.Len(t, w.written, 3)
	assert.Equal(t, "sub_1", string(w.written[0].Key))
	assert.Equal(t, "sub_3", string(w.written[2].Key))
	assert.True(t, w.closed)
}

func TestProducerCancelledContextStillDrainsInbox(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16, logger.NewNop())
	p.Publish([]byte("a"), []byte("1"))
	p.Publish([]byte("b"), []byte("2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)
	p.WaitClosed()

	assert.Len(t, w.written, 2)
	assert.True(t, w.closed)
}
