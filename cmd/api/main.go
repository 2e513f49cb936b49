package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/retailcore/go-order-settlement/internal/catalog"
	"github.com/retailcore/go-order-settlement/internal/config"
	"github.com/retailcore/go-order-settlement/internal/httpx"
	kafkax "github.com/retailcore/go-order-settlement/internal/kafka"
	"github.com/retailcore/go-order-settlement/internal/orders"
	"github.com/retailcore/go-order-settlement/internal/postgres"
	"github.com/retailcore/go-order-settlement/internal/redisx"
	"github.com/retailcore/go-order-settlement/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis (search index documents)
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for order.paid
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid)
	defer prod.Close()

	catalogStore := &catalog.Store{DB: db}
	catalogSvc := &catalog.Service{
		Store: catalogStore,
		Index: &catalog.Index{R: rdb},
	}
	orderSvc := &orders.Service{
		Orders:      &orders.Repo{DB: db},
		Catalog:     catalogStore,
		Users:       &users.Repo{DB: db},
		Events:      prod,
		ServiceName: cfg.ServiceName,
	}

	validate := validator.New()
	auth := &httpx.Auth{Secret: []byte(cfg.JWTSecret)}
	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Service: orderSvc, Validate: validate}).Register(router, auth)
	(&httpx.ProductsHandler{Service: catalogSvc, Validate: validate}).Register(router, auth)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
