package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{owner_id}:{key} -> order_id | "pending"
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache status order: order_status:{order_id} -> StatusView JSON {orderId, orderNumber, ownerId, status, updatedAt}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Daily counters: hash stats:orders:{YYYYMMDD} -> created | <status> -> count
	KeyDailyStats = "stats:orders:%s"

	// Inventory record for the redis backend: hash inv:sku:{sku_id}
	KeySKU = "inv:sku:%s"

	// Realtime pub/sub channel: rt:{topic}
	KeyRealtimeChannel = "rt:%s"
	PatternRealtime    = "rt:*"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLDailyStats  = 30 * 24 * time.Hour
)
