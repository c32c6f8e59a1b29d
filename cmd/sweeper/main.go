package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/config"
	"github.com/lintangstore/go-storefront/internal/inventory"
	kafkax "github.com/lintangstore/go-storefront/internal/kafka"
	"github.com/lintangstore/go-storefront/internal/observability"
	"github.com/lintangstore/go-storefront/internal/orders"
	"github.com/lintangstore/go-storefront/internal/postgres"
	"github.com/lintangstore/go-storefront/internal/redisx"
)

// The sweeper is the authority on reservation expiry: redis TTLs are only a
// hint, this loop reads expires_at from the reservations table and cancels
// whatever is overdue.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := observability.NewLogger(cfg.ServiceName + "-sweeper")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	bus := kafkax.NewBus(cfg.KafkaBrokers, 256, log)
	bus.Start(ctx)

	svc := orders.NewService(orders.Service{
		Orders:         &orders.Repo{DB: db},
		Products:       &catalog.Repo{DB: db},
		Reservations:   &inventory.Repo{DB: db},
		Timer:          &redisx.ReservationTimer{RDB: rdb},
		Bus:            bus,
		Log:            log,
		ServiceName:    cfg.ServiceName + "-sweeper",
		ReservationTTL: cfg.ReservationTTL,
	})

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info("sweeper started", zap.Duration("interval", cfg.SweepInterval))
	for {
		select {
		case <-ticker.C:
			sweepCtx, sweepCancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := svc.ExpireStale(sweepCtx)
			sweepCancel()
			if err != nil {
				log.Warn("sweep pass failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired stale orders", zap.Int("count", n))
			}
		case <-sig:
			log.Info("shutting down")
			bus.Close()
			cancel()
			bus.WaitClosed()
			return
		}
	}
}
