package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-recurring-billing/internal/config"
	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/ariefcatur/go-recurring-billing/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	service := cfg.Server.ServiceName + "-inventory"
	lg = lg.With("service", service)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		lg.Fatalw("postgres connect", "error", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		lg.Fatalw("postgres migrate", "error", err)
	}
	db := postgres.NewDB(pool, cfg.Postgres.LockTimeout, lg)

	rdb := redisx.New(cfg.Redis.Addr)
	defer rdb.Close()

	// stock events share one topic keyed by checkout ref
	stock := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.StockTopic, 1024, lg)
	stock.Start(context.Background())

	cache := redisx.NewStockCache(rdb, cfg.Inventory.Location)
	h := &inventory.CheckoutHandler{
		Ledger: inventory.NewLedger(inventory.NewRepo(db), db, cfg.Inventory.Location,
			lg.With("component", "ledger"), inventory.WithDefaultTTL(cfg.Inventory.ReservationTTL),
			inventory.WithCache(cache)),
		Dedup:       redisx.NewDedup(rdb, service),
		Stock:       stock,
		Cache:       cache,
		ServiceName: service,
		TTL:         cfg.Inventory.ReservationTTL,
		Log:         lg,
	}

	cons := kafkax.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.InventoryGroup, cfg.Kafka.CheckoutTopic, cfg.Kafka.InventoryWorkers, lg)
	lg.Infow("checkout consumer started",
		"group", cfg.Kafka.InventoryGroup,
		"topic", cfg.Kafka.CheckoutTopic,
		"workers", cfg.Kafka.InventoryWorkers,
	)
	if err := cons.Start(ctx, h.Handle); err != nil {
		lg.Errorw("consumer exit", "error", err)
	}

	lg.Infow("shutting down consumer")
	stop()
	stock.Close()
	stock.WaitClosed()
}
