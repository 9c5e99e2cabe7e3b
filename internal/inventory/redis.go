package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

// Quantities live in the hash as integer milli-kilograms so that Lua never
// does float arithmetic on stock.
const milliScale = 3

// ErrPrecision is returned when a quantity has more than gram precision.
var ErrPrecision = errors.New("quantity has more than 3 decimal places")

// KEYS[1] = sku hash, ARGV[1] = qty in milli-kg.
// Returns -1 when the sku is missing or inactive, 0 when stock is short, 1 on success.
var decrementScript = redis.NewScript(`
local avail = redis.call('HGET', KEYS[1], 'available')
if not avail then return -1 end
if redis.call('HGET', KEYS[1], 'active') ~= '1' then return -1 end
local qty = tonumber(ARGV[1])
if tonumber(avail) < qty then return 0 end
redis.call('HINCRBY', KEYS[1], 'available', -qty)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 1
`)

// KEYS[1] = sku hash, ARGV[1] = qty in milli-kg. Returns 0 when the sku is missing.
var restoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HINCRBY', KEYS[1], 'available', ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 1
`)

// KEYS[1] = sku hash; ARGV = kind, size, unit_price, available (milli-kg), active, updated_at.
// Catalog fields are always refreshed. available is only written when the sku
// has none yet, so stock already reserved here is never handed back.
// Returns 1 when the sku was created, 0 when it already existed.
var seedScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'kind', ARGV[1], 'size', ARGV[2], 'unit_price', ARGV[3], 'active', ARGV[5], 'updated_at', ARGV[6])
return redis.call('HSETNX', KEYS[1], 'available', ARGV[4])
`)

type RedisStore struct {
	RDB redis.Cmdable
}

func skuKey(id string) string { return fmt.Sprintf(redisx.KeySKU, id) }

// ToMilli converts kilograms to integer milli-kilograms.
func ToMilli(qty decimal.Decimal) (int64, error) {
	shifted := qty.Shift(milliScale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrPrecision
	}
	return shifted.IntPart(), nil
}

func fromMilli(n int64) decimal.Decimal { return decimal.New(n, -milliScale) }

func (s *RedisStore) Put(ctx context.Context, sku SKU) error {
	milli, err := ToMilli(sku.Available)
	if err != nil {
		return err
	}
	active := "0"
	if sku.Active {
		active = "1"
	}
	return s.RDB.HSet(ctx, skuKey(sku.ID), map[string]any{
		"kind":       sku.Kind,
		"size":       sku.Size,
		"unit_price": sku.UnitPrice.String(),
		"available":  milli,
		"active":     active,
		"updated_at": time.Now().UTC().Unix(),
	}).Err()
}

// Seed copies catalog data from another store. Unlike Put it keeps the live
// available quantity of a sku Redis already holds. created reports whether
// the sku was new.
func (s *RedisStore) Seed(ctx context.Context, sku SKU) (created bool, err error) {
	milli, err := ToMilli(sku.Available)
	if err != nil {
		return false, err
	}
	active := "0"
	if sku.Active {
		active = "1"
	}
	res, err := seedScript.Run(ctx, s.RDB, []string{skuKey(sku.ID)},
		sku.Kind, sku.Size, sku.UnitPrice.String(), milli, active, time.Now().UTC().Unix()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) Read(ctx context.Context, skuID string) (SKU, error) {
	m, err := s.RDB.HGetAll(ctx, skuKey(skuID)).Result()
	if err != nil {
		return SKU{}, err
	}
	if len(m) == 0 {
		return SKU{}, ErrNotFound
	}
	return decodeSKU(skuID, m)
}

func decodeSKU(id string, m map[string]string) (SKU, error) {
	price, err := decimal.NewFromString(m["unit_price"])
	if err != nil {
		return SKU{}, fmt.Errorf("sku %s: unit_price: %w", id, err)
	}
	milli, err := strconv.ParseInt(m["available"], 10, 64)
	if err != nil {
		return SKU{}, fmt.Errorf("sku %s: available: %w", id, err)
	}
	sku := SKU{
		ID:        id,
		Kind:      m["kind"],
		Size:      m["size"],
		UnitPrice: price,
		Available: fromMilli(milli),
		Active:    m["active"] == "1",
	}
	if ts, err := strconv.ParseInt(m["updated_at"], 10, 64); err == nil {
		sku.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return sku, nil
}

func (s *RedisStore) ConditionalDecrement(ctx context.Context, skuID string, qty decimal.Decimal) (bool, error) {
	milli, err := ToMilli(qty)
	if err != nil {
		return false, err
	}
	res, err := decrementScript.Run(ctx, s.RDB, []string{skuKey(skuID)}, milli, time.Now().UTC().Unix()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) Restore(ctx context.Context, skuID string, qty decimal.Decimal) error {
	milli, err := ToMilli(qty)
	if err != nil {
		return err
	}
	res, err := restoreScript.Run(ctx, s.RDB, []string{skuKey(skuID)}, milli, time.Now().UTC().Unix()).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]SKU, error) {
	var out []SKU
	iter := s.RDB.Scan(ctx, 0, fmt.Sprintf(redisx.KeySKU, "*"), 100).Iterator()
	prefix := len(skuKey(""))
	for iter.Next(ctx) {
		key := iter.Val()
		m, err := s.RDB.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(m) == 0 {
			continue
		}
		sku, err := decodeSKU(key[prefix:], m)
		if err != nil {
			return nil, err
		}
		out = append(out, sku)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortByID(out)
	return out, nil
}
