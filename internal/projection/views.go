package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

const statsDayLayout = "20060102"

// StatusView is the cached answer to "what state is my order in".
type StatusView struct {
	OrderID     string        `json:"orderId"`
	OrderNumber string        `json:"orderNumber"`
	OwnerID     string        `json:"ownerId"`
	Status      orders.Status `json:"status"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Views reads and writes the Redis read models.
type Views struct {
	RDB redis.Cmdable
}

func statusKey(orderID string) string { return fmt.Sprintf(redisx.KeyOrderStatus, orderID) }

func statsKey(day time.Time) string {
	return fmt.Sprintf(redisx.KeyDailyStats, day.UTC().Format(statsDayLayout))
}

// Status returns the cached view; ok is false on a miss.
func (v *Views) Status(ctx context.Context, orderID string) (StatusView, bool, error) {
	raw, err := v.RDB.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusView{}, false, nil
	}
	if err != nil {
		return StatusView{}, false, err
	}
	var sv StatusView
	if err := json.Unmarshal(raw, &sv); err != nil {
		return StatusView{}, false, nil // anggap miss, nanti ditimpa
	}
	return sv, true, nil
}

func (v *Views) PutStatus(ctx context.Context, sv StatusView) error {
	return putStatus(ctx, v.RDB, sv)
}

func (v *Views) DropStatus(ctx context.Context, orderID string) error {
	return v.RDB.Del(ctx, statusKey(orderID)).Err()
}

func putStatus(ctx context.Context, c redis.Cmdable, sv StatusView) error {
	b, err := json.Marshal(sv)
	if err != nil {
		return err
	}
	return c.Set(ctx, statusKey(sv.OrderID), b, redisx.TTLStatusCache).Err()
}

// DailyStats returns the counters of one UTC day: "created" plus one field per status reached.
func (v *Views) DailyStats(ctx context.Context, day time.Time) (map[string]int64, error) {
	raw, err := v.RDB.HGetAll(ctx, statsKey(day)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, s := range raw {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// ParseDay accepts YYYYMMDD or YYYY-MM-DD.
func ParseDay(s string) (time.Time, error) {
	for _, layout := range []string{statsDayLayout, time.DateOnly} {
		if d, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad day %q, want YYYYMMDD", s)
}
