package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Read(ctx context.Context, skuID string) (SKU, error) {
	var sku SKU
	err := s.DB.QueryRow(ctx, `
		SELECT id, kind, size, unit_price, available, active, updated_at
		FROM skus WHERE id=$1`, skuID).
		Scan(&sku.ID, &sku.Kind, &sku.Size, &sku.UnitPrice, &sku.Available, &sku.Active, &sku.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SKU{}, ErrNotFound
	}
	if err != nil {
		return SKU{}, err
	}
	return sku, nil
}

// ConditionalDecrement: the availability check lives in the WHERE clause, so
// the row is only touched when enough stock is left at the moment of the write.
func (s *PGStore) ConditionalDecrement(ctx context.Context, skuID string, qty decimal.Decimal) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE skus SET available = available - $2, updated_at = now()
		WHERE id=$1 AND active AND available >= $2`, skuID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PGStore) Restore(ctx context.Context, skuID string, qty decimal.Decimal) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE skus SET available = available + $2, updated_at = now()
		WHERE id=$1`, skuID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]SKU, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, kind, size, unit_price, available, active, updated_at
		FROM skus ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SKU
	for rows.Next() {
		var sku SKU
		if err := rows.Scan(&sku.ID, &sku.Kind, &sku.Size, &sku.UnitPrice, &sku.Available, &sku.Active, &sku.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sku)
	}
	return out, rows.Err()
}

// Put upserts a catalog row; used by seeding and tests, never by order code.
func (s *PGStore) Put(ctx context.Context, sku SKU) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO skus(id, kind, size, unit_price, available, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, size = EXCLUDED.size, unit_price = EXCLUDED.unit_price,
			available = EXCLUDED.available, active = EXCLUDED.active, updated_at = now()`,
		sku.ID, sku.Kind, sku.Size, sku.UnitPrice, sku.Available, sku.Active)
	return err
}
