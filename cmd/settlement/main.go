package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/retailcore/go-order-settlement/internal/catalog"
	"github.com/retailcore/go-order-settlement/internal/config"
	kafkax "github.com/retailcore/go-order-settlement/internal/kafka"
	"github.com/retailcore/go-order-settlement/internal/orders"
	"github.com/retailcore/go-order-settlement/internal/postgres"
	"github.com/retailcore/go-order-settlement/internal/redisx"
	"github.com/retailcore/go-order-settlement/internal/settlement"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &settlement.Service{
		Catalog: &catalog.Store{DB: db},
		Index:   &catalog.Index{R: rdb},
		Dedup:   &settlement.RedisDedup{R: rdb, Service: cfg.ServiceName + "-settlement"},
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup, orders.TopicOrderPaid, cfg.SettlementWorkers)

	go func() {
		log.Printf("settlement consumer started: group=%s topic=%s workers=%d",
			cfg.SettlementGroup, orders.TopicOrderPaid, cfg.SettlementWorkers)
		if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
