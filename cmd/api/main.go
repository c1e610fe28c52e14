package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-recurring-billing/internal/app"
	"github.com/ariefcatur/go-recurring-billing/internal/config"
	"github.com/ariefcatur/go-recurring-billing/internal/httpx"
	"github.com/ariefcatur/go-recurring-billing/internal/logger"
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
	lg = lg.With("service", cfg.Server.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, lg)
	if err != nil {
		lg.Fatalw("startup failed", "error", err)
	}

	router := httpx.NewRouter(lg,
		httpx.HealthCheck{Name: "postgres", Ping: a.Pool.Ping},
		httpx.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error { return redisx.Ping(ctx, a.Redis) }},
	)
	(&httpx.InventoryHandler{Ledger: a.Ledger, Cache: a.StockCache, Log: lg}).Register(router)
	(&httpx.SubscriptionsHandler{Service: a.Service, Log: lg}).Register(router)
	(&httpx.OrdersHandler{Repo: a.Orders, Log: lg}).Register(router)
	(&httpx.JobsHandler{
		Runner:     a.Runner,
		Billing:    a.Scheduler,
		Sweep:      a.Ledger,
		SweepBatch: cfg.Inventory.SweepBatchSize,
		Log:        lg,
	}).Register(router)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Infow("http listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Errorw("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Infow("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warnw("http shutdown", "error", err)
	}
	a.Close()
}
