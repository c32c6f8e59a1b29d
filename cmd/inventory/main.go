package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lintangstore/go-storefront/internal/catalog"
	"github.com/lintangstore/go-storefront/internal/config"
	"github.com/lintangstore/go-storefront/internal/events"
	"github.com/lintangstore/go-storefront/internal/inventory"
	kafkax "github.com/lintangstore/go-storefront/internal/kafka"
	"github.com/lintangstore/go-storefront/internal/observability"
	"github.com/lintangstore/go-storefront/internal/postgres"
	"github.com/lintangstore/go-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := observability.NewLogger(cfg.ServiceName + "-inventory")
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

	monitor := &inventory.Monitor{
		Products:    &catalog.Repo{DB: db},
		Redis:       rdb,
		Log:         log,
		ServiceName: cfg.ServiceName + "-inventory",
	}

	group := getenv("INVENTORY_GROUP", "inventory-monitor")
	workers := atoiOr(os.Getenv("INVENTORY_WORKERS"), 8)

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range events.OrderTopics() {
		topic := topic
		g.Go(func() error {
			cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers, log)
			log.Info("consumer started",
				zap.String("group", group),
				zap.String("topic", topic),
				zap.Int("workers", workers))
			return cons.Start(gctx, monitor.HandleOrderEvent)
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumers")
	case <-gctx.Done():
	}
	cancel()

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Warn("consumer exit", zap.Error(err))
	}
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
