package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/config"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/postgres"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

// stock-sync copies the SKU catalog from Postgres into the Redis inventory.
func main() {
	missingOnly := flag.Bool("missing-only", false, "only seed SKUs that Redis does not have yet; existing ones are left untouched")
	interval := flag.Duration("interval", 0, "repeat every interval; 0 runs once")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.ServiceName+"-stock-sync", cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	src := &inventory.PGStore{DB: db}
	dst := &inventory.RedisStore{RDB: rdb}

	syncOnce(ctx, lg, src, dst, *missingOnly)
	if *interval <= 0 {
		return
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnce(ctx, lg, src, dst, *missingOnly)
		}
	}
}

// syncOnce seeds new skus with their Postgres stock and refreshes catalog
// fields of the rest. Live Redis stock is never overwritten.
func syncOnce(ctx context.Context, lg *zap.Logger, src *inventory.PGStore, dst *inventory.RedisStore, missingOnly bool) {
	skus, err := src.List(ctx)
	if err != nil {
		lg.Error("list skus", zap.String("source", "postgres"), zap.Error(err))
		return
	}
	seeded, refreshed, skipped := 0, 0, 0
	for _, sku := range skus {
		if missingOnly {
			_, err := dst.Read(ctx, sku.ID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, inventory.ErrNotFound) {
				lg.Warn("read redis sku", zap.String("sku_id", sku.ID), zap.Error(err))
				continue
			}
		}
		created, err := dst.Seed(ctx, sku)
		if err != nil {
			lg.Warn("sync sku", zap.String("sku_id", sku.ID), zap.Error(err))
			continue
		}
		if created {
			seeded++
		} else {
			refreshed++
		}
	}
	lg.Info("stock sync done",
		zap.Int("seeded", seeded),
		zap.Int("refreshed", refreshed),
		zap.Int("skipped", skipped),
		zap.Int("total", len(skus)))
}
