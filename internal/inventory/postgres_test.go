package inventory

import (
	"context"
	"os"
	"testing"

	"github.com/ariefcatur/go-fresh-orders/internal/postgres"
)

func TestPGStore(t *testing.T) {
	dsn := os.Getenv("ORDERS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ORDERS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runStoreContract(t, func(t *testing.T) store {
		if _, err := pool.Exec(ctx, `TRUNCATE skus`); err != nil {
			t.Fatalf("reset skus: %v", err)
		}
		return &PGStore{DB: pool}
	})
}
