// Package app wires the billing components shared by the api and scheduler binaries.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-recurring-billing/internal/config"
	"github.com/ariefcatur/go-recurring-billing/internal/inventory"
	"github.com/ariefcatur/go-recurring-billing/internal/jobs"
	kafkax "github.com/ariefcatur/go-recurring-billing/internal/kafka"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/ariefcatur/go-recurring-billing/internal/notify"
	"github.com/ariefcatur/go-recurring-billing/internal/orders"
	"github.com/ariefcatur/go-recurring-billing/internal/payment"
	"github.com/ariefcatur/go-recurring-billing/internal/postgres"
	"github.com/ariefcatur/go-recurring-billing/internal/pricing"
	"github.com/ariefcatur/go-recurring-billing/internal/redisx"
	"github.com/ariefcatur/go-recurring-billing/internal/subscription"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type App struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Ledger     *inventory.Ledger
	Orders     *orders.Repo
	Service    *subscription.Service
	Scheduler  *subscription.Scheduler
	Runner     *jobs.Runner
	StockCache *redisx.StockCache

	notifications *kafkax.Producer
}

// Build connects to Postgres and Redis, applies the schema and assembles the
// billing components. The notification producer runs until Close so that
// billing jobs still running at shutdown can publish.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	db := postgres.NewDB(pool, cfg.Postgres.LockTimeout, log)

	floor, err := decimal.NewFromString(cfg.Pricing.FallbackShipping)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pricing.fallback_shipping: %w", err)
	}
	gw, err := payment.NewGateway(cfg.Payment, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	rdb := redisx.New(cfg.Redis.Addr)

	lookups := pricing.NewRepo(db)
	pricer := pricing.NewRecalculator(
		pricing.NewCachedShipping(lookups, cfg.Pricing.LookupCacheTTL),
		pricing.NewCachedTaxRates(lookups, cfg.Pricing.LookupCacheTTL),
		lookups,
		floor,
		log.With("component", "pricing"),
	)
	stockCache := redisx.NewStockCache(rdb, cfg.Inventory.Location)
	ledger := inventory.NewLedger(inventory.NewRepo(db), db, cfg.Inventory.Location,
		log.With("component", "ledger"), inventory.WithDefaultTTL(cfg.Inventory.ReservationTTL),
		inventory.WithCache(stockCache))

	prod := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, 1024, log)
	prod.Start(context.Background())

	subs := subscription.NewRepo(db, cfg.Billing.MaxAttempts)
	orderRepo := orders.NewRepo(db)
	sched := subscription.NewScheduler(subscription.Deps{
		Tx:       db,
		Subs:     subs,
		Methods:  payment.NewMethodsRepo(db),
		Gateway:  gw,
		Pricer:   pricer,
		Catalog:  lookups,
		Orders:   orderRepo,
		Stock:    ledger,
		Cache:    stockCache,
		Notifier: notify.NewKafkaNotifier(prod, cfg.Server.ServiceName, log),
	}, cfg.Billing, log.With("component", "scheduler"))

	return &App{
		Pool:          pool,
		Redis:         rdb,
		Ledger:        ledger,
		Orders:        orderRepo,
		Service:       subscription.NewService(db, subs, pricer, lookups, cfg.Billing.Currency, log.With("component", "subscriptions")),
		Scheduler:     sched,
		Runner:        jobs.NewRunner(redisx.NewLease(rdb), cfg.Billing.LeaseTTL, log.With("component", "jobs")),
		StockCache:    stockCache,
		notifications: prod,
	}, nil
}

// Close flushes pending notifications and releases connections.
func (a *App) Close() {
	a.notifications.Close()
	a.notifications.WaitClosed()
	_ = a.Redis.Close()
	a.Pool.Close()
}
