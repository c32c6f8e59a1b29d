package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/config"
	"github.com/lintangstore/go-storefront/internal/httpx"
	"github.com/lintangstore/go-storefront/internal/inventory"
	kafkax "github.com/lintangstore/go-storefront/internal/kafka"
	"github.com/lintangstore/go-storefront/internal/observability"
	"github.com/lintangstore/go-storefront/internal/orders"
	"github.com/lintangstore/go-storefront/internal/payments"
	"github.com/lintangstore/go-storefront/internal/postgres"
	"github.com/lintangstore/go-storefront/internal/redisx"
	"github.com/lintangstore/go-storefront/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := observability.NewLogger(cfg.ServiceName)
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

	bus := kafkax.NewBus(cfg.KafkaBrokers, 1024, log)
	bus.Start(ctx)

	orderRepo := &orders.Repo{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	reservationRepo := &inventory.Repo{DB: db}
	paymentRepo := &payments.Repo{DB: db}

	provider, err := payments.NewStripeProvider(payments.StripeConfig{
		APIKey:     cfg.StripeAPIKey,
		SuccessURL: cfg.StripeSuccessURL,
		CancelURL:  cfg.StripeCancelURL,
	})
	if err != nil {
		log.Fatal("stripe provider", zap.Error(err))
	}

	orderSvc := orders.NewService(orders.Service{
		Orders:       orderRepo,
		Products:     catalogRepo,
		Reservations: reservationRepo,
		Locker:       &redisx.CheckoutLocker{RDB: rdb, TTL: cfg.CheckoutLockTTL},
		Timer:        &redisx.ReservationTimer{RDB: rdb},
		Numbers: &orders.NumberGenerator{
			Seq: redisx.NewSequence(rdb),
			Log: log,
		},
		Bus:            bus,
		Log:            log,
		ServiceName:    cfg.ServiceName,
		ReservationTTL: cfg.ReservationTTL,
	})

	paymentSvc := payments.NewService(payments.Service{
		Store:       paymentRepo,
		Provider:    provider,
		Orders:      orderSvc,
		Bus:         bus,
		Log:         log,
		ServiceName: cfg.ServiceName,
	})
	orderSvc.Payments = paymentSvc

	userSvc := users.NewService(&users.Repo{DB: db})

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Service: orderSvc, Reservations: reservationRepo, Redis: rdb}).Register(router)
	(&httpx.UsersHandler{Service: userSvc}).Register(router)
	(&httpx.CatalogHandler{Repo: catalogRepo}).Register(router)
	(&httpx.PaymentsHandler{
		Service: paymentSvc,
		Dedup:   &redisx.Dedup{RDB: rdb, Service: "payments-webhook"},
		Log:     log,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	bus.Close()
	cancel()
	bus.WaitClosed()
}
