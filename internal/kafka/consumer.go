package kafka

import (
	"context"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/sourcegraph/conc"
)

// Handler must return nil only when the message is fully processed and its offset may be committed.
// Failed messages are retried; wrap the error with backoff.Permanent to drop a message that can never succeed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r            messageReader
	workers      int
	retryInitial time.Duration
	retryMax     time.Duration
	log          *logger.Logger
}

type ConsumerOption func(*Consumer)

// WithRetryBackoff bounds the wait between attempts at a failing message.
func WithRetryBackoff(initial, max time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.retryInitial = initial
		c.retryMax = max
	}
}

func NewConsumer(brokers []string, group, topic string, workers int, log *logger.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log.With("topic", topic, "group", group), opts...)
}

func newConsumer(r messageReader, workers int, log *logger.Logger, opts ...ConsumerOption) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	c := &Consumer{
		r:            r,
		workers:      workers,
		retryInitial: 200 * time.Millisecond,
		retryMax:     30 * time.Second,
		log:          log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start fetches messages until ctx is cancelled. Each partition is pinned to
// one worker, so messages sharing a key are handled and committed in offset
// order. A failing message blocks its partition and is retried with backoff;
// on shutdown it stays uncommitted and the group redelivers it.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	shards := make([]chan kafka.Message, c.workers)
	var wg conc.WaitGroup
	for i := range shards {
		ch := make(chan kafka.Message, 128)
		shards[i] = ch
		wg.Go(func() {
			for m := range ch {
				c.process(ctx, h, m)
			}
		})
	}
	defer wg.Wait()
	defer func() {
		for _, ch := range shards {
			close(ch)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case shards[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	if ctx.Err() != nil {
		return
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return h(ctx, m)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.log.Errorw("handler failed", "partition", m.Partition, "offset", m.Offset, "retry_in", wait, "error", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// retries only stop early on a permanent error
		c.log.Errorw("dropping message", "partition", m.Partition, "offset", m.Offset, "error", err)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Errorw("commit failed", "partition", m.Partition, "offset", m.Offset, "error", err)
	}
}
