package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
)

type recordingCache struct{ invalidated []string }

func (c *recordingCache) Invalidate(ctx context.Context, variantIDs ...string) error {
	c.invalidated = append(c.invalidated, variantIDs...)
	return nil
}

type CheckoutHandlerSuite struct {
	suite.Suite
	ctx     context.Context
	db      *testutil.MemDB
	pub     *testutil.RecordingPublisher
	cache   *recordingCache
	handler *inventory.CheckoutHandler
}

func TestCheckoutHandler(t *testing.T) {
	suite.Run(t, new(CheckoutHandlerSuite))
}

func (s *CheckoutHandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewMemDB()
	s.pub = &testutil.RecordingPublisher{}
	s.cache = &recordingCache{}
	s.handler = &inventory.CheckoutHandler{
		Ledger:      inventory.NewLedger(s.db.Inventory(), s.db.Tx, testutil.DefaultLocation, logger.NewNop()),
		Dedup:       testutil.NewMemDedup(),
		Stock:       s.pub,
		Cache:       s.cache,
		ServiceName: "inventory-test",
		TTL:         10 * time.Minute,
		Log:         logger.NewNop(),
	}
	s.db.SeedInventory("var_a", 5, 2)
	s.db.SeedInventory("var_b", 10, 0)
}

func (s *CheckoutHandlerSuite) message(env kafkax.Envelope) kafkago.Message {
	return kafkago.Message{Key: kafkax.PartitionKey(env.CorrelationID), Value: kafkax.MustMarshal(env)}
}

func (s *CheckoutHandlerSuite) started(ref string, items ...inventory.Item) kafkax.Envelope {
	return kafkax.NewEnvelope(inventory.EventCheckoutStarted, "checkout", ref, "trace-1",
		inventory.CheckoutStartedPayload{Ref: ref, Items: items})
}

func (s *CheckoutHandlerSuite) TestReserveThenPaid() {
	env := s.started("cart_1", inventory.Item{VariantID: "var_a", Quantity: 3}, inventory.Item{VariantID: "var_b", Quantity: 1})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(env)))

	reserved := s.pub.OfType(inventory.EventStockReserved)
	s.Require().Len(reserved, 1)
	s.Equal("cart_1", reserved[0].CorrelationID)
	s.Equal("trace-1", reserved[0].TraceID)
	p, err := kafkax.UnwrapPayload[inventory.StockReservedPayload](reserved[0].Payload)
	s.Require().NoError(err)
	s.Len(p.Items, 2)

	low := s.pub.OfType(inventory.EventStockLow)
	s.Require().Len(low, 1)
	lp, err := kafkax.UnwrapPayload[inventory.StockLowPayload](low[0].Payload)
	s.Require().NoError(err)
	s.Equal(inventory.StockLowPayload{VariantID: "var_a", AvailableForSale: 2}, lp)
	s.ElementsMatch([]string{"var_a", "var_b"}, s.cache.invalidated)

	paid := kafkax.NewEnvelope(inventory.EventCheckoutPaid, "checkout", "cart_1", "trace-1", inventory.CheckoutRefPayload{Ref: "cart_1"})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(paid)))
	s.Len(s.pub.OfType(inventory.EventStockCommitted), 1)

	a := s.db.InventoryOf("var_a")
	s.Equal(2, a.QuantityAvailable)
	s.Equal(0, a.QuantityReserved)
	s.Equal(3, a.QuantityCommitted)
}

func (s *CheckoutHandlerSuite) TestDuplicateEventIsIgnored() {
	env := s.started("cart_1", inventory.Item{VariantID: "var_b", Quantity: 4})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(env)))
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(env)))

	s.Len(s.pub.OfType(inventory.EventStockReserved), 1)
	s.Equal(4, s.db.InventoryOf("var_b").QuantityReserved)
}

func (s *CheckoutHandlerSuite) TestRedeliveryWithNewEventIDRepublishesHold() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(s.started("cart_1", inventory.Item{VariantID: "var_b", Quantity: 4}))))
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(s.started("cart_1", inventory.Item{VariantID: "var_b", Quantity: 4}))))

	s.Len(s.pub.OfType(inventory.EventStockReserved), 2)
	s.Equal(4, s.db.InventoryOf("var_b").QuantityReserved)
}

func (s *CheckoutHandlerSuite) TestOutOfStockIsRejected() {
	env := s.started("cart_1", inventory.Item{VariantID: "var_a", Quantity: 6})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(env)))

	rejected := s.pub.OfType(inventory.EventStockRejected)
	s.Require().Len(rejected, 1)
	p, err := kafkax.UnwrapPayload[inventory.StockRejectedPayload](rejected[0].Payload)
	s.Require().NoError(err)
	s.Equal(inventory.RejectOutOfStock, p.Reason)
	s.Equal([]inventory.Shortage{{VariantID: "var_a", Requested: 6, Available: 5}}, p.Shortages)
	s.Equal(0, s.db.InventoryOf("var_a").QuantityReserved)
}

func (s *CheckoutHandlerSuite) TestUnknownVariantIsInvalidRequest() {
	env := s.started("cart_1", inventory.Item{VariantID: "ghost", Quantity: 1})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(env)))

	rejected := s.pub.OfType(inventory.EventStockRejected)
	s.Require().Len(rejected, 1)
	p, err := kafkax.UnwrapPayload[inventory.StockRejectedPayload](rejected[0].Payload)
	s.Require().NoError(err)
	s.Equal(inventory.RejectInvalidRequest, p.Reason)
}

func (s *CheckoutHandlerSuite) TestAbandonReleasesHold() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(s.started("cart_1", inventory.Item{VariantID: "var_b", Quantity: 4}))))

	abandoned := kafkax.NewEnvelope(inventory.EventCheckoutAbandoned, "checkout", "cart_1", "", inventory.CheckoutRefPayload{Ref: "cart_1"})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(abandoned)))
	s.Len(s.pub.OfType(inventory.EventStockReleased), 1)
	s.Equal(0, s.db.InventoryOf("var_b").QuantityReserved)

	// paying after the hold was released cannot commit stock
	paid := kafkax.NewEnvelope(inventory.EventCheckoutPaid, "checkout", "cart_1", "", inventory.CheckoutRefPayload{Ref: "cart_1"})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(paid)))
	rejected := s.pub.OfType(inventory.EventStockRejected)
	s.Require().Len(rejected, 1)
	p, err := kafkax.UnwrapPayload[inventory.StockRejectedPayload](rejected[0].Payload)
	s.Require().NoError(err)
	s.Equal(inventory.RejectReservationClosed, p.Reason)
	s.Equal(0, s.db.InventoryOf("var_b").QuantityCommitted)
}

func (s *CheckoutHandlerSuite) TestRestartAfterAbandonReservesAgain() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(s.started("cart_9", inventory.Item{VariantID: "var_b", Quantity: 4}))))
	abandoned := kafkax.NewEnvelope(inventory.EventCheckoutAbandoned, "checkout", "cart_9", "", inventory.CheckoutRefPayload{Ref: "cart_9"})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(abandoned)))
	s.Equal(0, s.db.InventoryOf("var_b").QuantityReserved)

	// the customer comes back to the same cart
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(s.started("cart_9", inventory.Item{VariantID: "var_b", Quantity: 4}))))
	s.Len(s.pub.OfType(inventory.EventStockReserved), 2)
	s.Equal(4, s.db.InventoryOf("var_b").QuantityReserved)

	paid := kafkax.NewEnvelope(inventory.EventCheckoutPaid, "checkout", "cart_9", "", inventory.CheckoutRefPayload{Ref: "cart_9"})
	s.Require().NoError(s.handler.Handle(s.ctx, s.message(paid)))
	s.Len(s.pub.OfType(inventory.EventStockCommitted), 1)
	s.Empty(s.pub.OfType(inventory.EventStockRejected))

	b := s.db.InventoryOf("var_b")
	s.Equal(6, b.QuantityAvailable)
	s.Equal(0, b.QuantityReserved)
	s.Equal(4, b.QuantityCommitted)
}

func (s *CheckoutHandlerSuite) TestGarbageIsDropped() {
	s.NoError(s.handler.Handle(s.ctx, kafkago.Message{Value: []byte("not json")}))

	other := kafkax.NewEnvelope("OrderShipped", "orders", "o1", "", map[string]string{})
	s.NoError(s.handler.Handle(s.ctx, s.message(other)))
	s.Empty(s.pub.Envelopes)
}
