package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-recurring-billing/internal/app"
	"github.com/ariefcatur/go-recurring-billing/internal/config"
	"github.com/ariefcatur/go-recurring-billing/internal/jobs"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
	"github.com/robfig/cron/v3"
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
	lg = lg.With("service", cfg.Server.ServiceName+"-scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, lg)
	if err != nil {
		lg.Fatalw("startup failed", "error", err)
	}

	c := cron.New(cron.WithLogger(jobs.CronLogger(lg)))
	err = a.Runner.Schedule(ctx, c, cfg.Billing.Schedule, jobs.Billing, func(ctx context.Context) error {
		_, err := a.Scheduler.ProcessDueSubscriptions(ctx)
		return err
	})
	if err != nil {
		lg.Fatalw("schedule billing", "spec", cfg.Billing.Schedule, "error", err)
	}
	err = a.Runner.Schedule(ctx, c, cfg.Inventory.SweepSchedule, jobs.Sweep, func(ctx context.Context) error {
		n, err := a.Ledger.SweepExpiredReservations(ctx, cfg.Inventory.SweepBatchSize)
		if n > 0 {
			lg.Infow("released expired reservations", "count", n)
		}
		return err
	})
	if err != nil {
		lg.Fatalw("schedule sweep", "spec", cfg.Inventory.SweepSchedule, "error", err)
	}

	c.Start()
	lg.Infow("scheduler started", "billing", cfg.Billing.Schedule, "sweep", cfg.Inventory.SweepSchedule)

	<-ctx.Done()
	lg.Infow("shutting down, waiting for running jobs")
	<-c.Stop().Done()
	a.Close()
}
