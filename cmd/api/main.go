package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/auth"
	"github.com/ariefcatur/go-fresh-orders/internal/config"
	"github.com/ariefcatur/go-fresh-orders/internal/httpx"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/observability"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/postgres"
	"github.com/ariefcatur/go-fresh-orders/internal/projection"
	"github.com/ariefcatur/go-fresh-orders/internal/realtime"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

type stockStore interface {
	orders.Inventory
	httpx.Catalog
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.Setup(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	lg := logger.New(cfg.ServiceName, cfg.LogLevel)
	if cfg.OtelEndpoint != "" {
		lg = logger.WithOTel(cfg.ServiceName, cfg.LogLevel)
	}
	defer func() { _ = lg.Sync() }()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var stock stockStore = &inventory.PGStore{DB: db}
	if cfg.InventoryBackend == "redis" {
		stock = &inventory.RedisStore{RDB: rdb}
	}

	// Realtime: hub lokal, atau lewat Redis pub/sub kalau instance > 1
	hub := realtime.NewHub(64, lg)
	var notifier orders.Notifier = hub
	if cfg.RealtimeBackend == "redis" {
		notifier = &realtime.RedisBroker{RDB: rdb}
		relay := &realtime.Relay{RDB: rdb, Hub: hub, Log: lg}
		go func() {
			if err := relay.Run(ctx); err != nil {
				lg.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}

	// Kafka producer: hidup sampai server selesai shutdown, bukan sampai sinyal
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, lg)
	prod.Start(context.Background())

	svc := &orders.Service{
		Ledger:         &orders.Repo{DB: db},
		Inventory:      stock,
		Notifier:       notifier,
		Events:         &orders.KafkaEvents{Producer: prod, Service: cfg.ServiceName},
		Log:            lg,
		DeliveryFee:    cfg.DeliveryFee,
		DeliveryWindow: cfg.DeliveryWindow(),
	}

	oh := &httpx.OrdersHandler{
		Orders:  svc,
		Catalog: stock,
		Auth:    auth.NewSigner(cfg.JWTSecret),
		Redis:   rdb,
		Views:   &projection.Views{RDB: rdb},
		Log:     lg,
	}
	oh.WS = &realtime.WSHandler{
		Hub:   hub,
		Guard: oh.CanFollow,
		Log:   lg,
		Upgrader: websocket.Upgrader{
			// token sudah dicek middleware; origin bebas
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	router := httpx.NewRouter(lg)
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		lg.Info("http listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("inventory", cfg.InventoryBackend),
			zap.String("realtime", cfg.RealtimeBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
	if err := shutdownOtel(ctx2); err != nil {
		lg.Warn("otel shutdown", zap.Error(err))
	}
}
