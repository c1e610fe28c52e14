package notify

import (
	"context"

	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
)

const (
	EventPaymentSucceeded   = "subscription.payment_succeeded"
	EventPaymentFailed      = "subscription.payment_failed"
	EventSubscriptionPaused = "subscription.paused"
)

type Payload struct {
	UserID string         `json:"user_id"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data"`
}

type Publisher interface {
	PublishEnvelope(env kafkax.Envelope)
}

// KafkaNotifier hands notifications to the delivery service over Kafka.
// Delivery (email, push) happens elsewhere; nothing here blocks on it.
type KafkaNotifier struct {
	pub     Publisher
	service string
	log     *logger.Logger
}

func NewKafkaNotifier(pub Publisher, service string, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, service: service, log: log}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, event string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.pub.PublishEnvelope(kafkax.NewEnvelope(event, n.service, userID, "", Payload{
		UserID: userID,
		Event:  event,
		Data:   data,
	}))
	n.log.Debugw("notification queued", "user_id", userID, "event", event)
	return nil
}
