package notify_test

import (
	"context"
	"testing"

	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/notify"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaNotifier(t *testing.T) {
	pub := &testutil.RecordingPublisher{}
	n := notify.NewKafkaNotifier(pub, "billing-scheduler", logger.NewNop())

	err := n.Notify(context.Background(), "user_1", notify.EventPaymentFailed, map[string]any{"retry_count": 1})
	require.NoError(t, err)

	sent := pub.OfType(notify.EventPaymentFailed)
	require.Len(t, sent, 1)
	assert.Equal(t, "user_1", sent[0].CorrelationID)
	assert.Equal(t, "billing-scheduler", sent[0].Producer)

	p, err := kafkax.UnwrapPayload[notify.Payload](sent[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "user_1", p.UserID)
	assert.EqualValues(t, 1, p.Data["retry_count"])
}

func TestKafkaNotifierCancelled(t *testing.T) {
	pub := &testutil.RecordingPublisher{}
	n := notify.NewKafkaNotifier(pub, "billing-scheduler", logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, "user_1", notify.EventPaymentSucceeded, nil), context.Canceled)
	assert.Empty(t, pub.Envelopes)
}
