package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &RedisStore{RDB: rdb}
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store { return newRedisStore(t) })
}

func TestRedisStoreRejectsSubGramQuantities(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, SKU{ID: "rice", Kind: "grain", UnitPrice: dec("10"), Available: dec("10"), Active: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.ConditionalDecrement(ctx, "rice", dec("1.0005")); !errors.Is(err, ErrPrecision) {
		t.Fatalf("expected ErrPrecision, got %v", err)
	}
}

func TestToMilli(t *testing.T) {
	cases := map[string]int64{"1": 1000, "2.5": 2500, "0.001": 1, "12.340": 12340}
	for in, want := range cases {
		got, err := ToMilli(dec(in))
		if err != nil || got != want {
			t.Fatalf("ToMilli(%s) = %d, %v; want %d", in, got, err, want)
		}
	}
}

func TestRedisSeedKeepsReservedStock(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	pg := SKU{ID: "A", Kind: "whole", Size: "M", UnitPrice: dec("800"), Available: dec("50"), Active: true}

	created, err := s.Seed(ctx, pg)
	if err != nil || !created {
		t.Fatalf("first Seed = %v, %v; want created", created, err)
	}
	ok, err := s.ConditionalDecrement(ctx, "A", dec("48"))
	if err != nil || !ok {
		t.Fatalf("ConditionalDecrement = %v, %v", ok, err)
	}

	// the source row still says 50; its price moved
	pg.UnitPrice = dec("850")
	created, err = s.Seed(ctx, pg)
	if err != nil || created {
		t.Fatalf("second Seed = %v, %v; want existing", created, err)
	}

	got, err := s.Read(ctx, "A")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Available.Equal(dec("2")) {
		t.Fatalf("available = %s, want 2", got.Available)
	}
	if !got.UnitPrice.Equal(dec("850")) {
		t.Fatalf("unit price = %s, want 850", got.UnitPrice)
	}
	if ok, _ := s.ConditionalDecrement(ctx, "A", dec("50")); ok {
		t.Fatal("reserved more than the 50 kg the sku ever had")
	}

	pg.Active = false
	if _, err := s.Seed(ctx, pg); err != nil {
		t.Fatalf("Seed inactive: %v", err)
	}
	if ok, _ := s.ConditionalDecrement(ctx, "A", dec("1")); ok {
		t.Fatal("inactive sku must not be reservable")
	}
}
