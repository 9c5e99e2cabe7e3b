package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.InventoryBackend != "postgres" || cfg.RealtimeBackend != "local" {
		t.Fatalf("backends = %q/%q", cfg.InventoryBackend, cfg.RealtimeBackend)
	}
	if cfg.DeliveryFee.String() != "15000" {
		t.Fatalf("DeliveryFee = %s", cfg.DeliveryFee)
	}
	if cfg.DeliveryWindow() != 72*time.Hour {
		t.Fatalf("DeliveryWindow = %s", cfg.DeliveryWindow())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("INVENTORY_BACKEND", "Redis")
	t.Setenv("DELIVERY_DAYS", "not-a-number")
	t.Setenv("DELIVERY_FEE", "12.50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.InventoryBackend != "redis" {
		t.Fatalf("InventoryBackend = %q", cfg.InventoryBackend)
	}
	if cfg.DeliveryDays != 3 {
		t.Fatalf("DeliveryDays fallback = %d", cfg.DeliveryDays)
	}
	if cfg.DeliveryFee.String() != "12.5" {
		t.Fatalf("DeliveryFee = %s", cfg.DeliveryFee)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("fee", func(t *testing.T) {
		t.Setenv("DELIVERY_FEE", "abc")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for unparsable fee")
		}
	})
	t.Run("negative fee", func(t *testing.T) {
		t.Setenv("DELIVERY_FEE", "-1")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for negative fee")
		}
	})
	t.Run("backend", func(t *testing.T) {
		t.Setenv("REALTIME_BACKEND", "nats")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for unknown backend")
		}
	})
}
