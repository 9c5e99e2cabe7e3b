package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/config"
	kafkax "github.com/ariefcatur/go-fresh-orders/internal/kafka"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/observability"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/projection"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	name := cfg.ServiceName + "-projector"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.Setup(ctx, name, cfg.OtelEndpoint)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	defer func() { _ = shutdownOtel(context.Background()) }()
	lg := logger.New(name, cfg.LogLevel)
	if cfg.OtelEndpoint != "" {
		lg = logger.WithOTel(name, cfg.LogLevel)
	}
	defer func() { _ = lg.Sync() }()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projection.Service{Redis: rdb, Log: lg, Name: "projector"}

	// Consumer
	topics := []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topics, cfg.ProjectorWorkers, lg)

	lg.Info("projector consumer started",
		zap.String("group", cfg.ProjectorGroup),
		zap.Strings("topics", topics),
		zap.Int("workers", cfg.ProjectorWorkers))
	if err := cons.Start(ctx, svc.HandleMessage); err != nil {
		lg.Error("consumer exit", zap.Error(err))
	}
	lg.Info("projector stopped")
}
