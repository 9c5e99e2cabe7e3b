package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Durable domain events (Kafka).
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// Real-time notifier events.
const (
	EventNewOrder    = "new-order"
	EventOrderUpdate = "order-update"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type ItemQty struct {
	SkuID    string          `json:"sku_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	OwnerID     string          `json:"owner_id"`
	Items       []ItemQty       `json:"items"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderStatusChangedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OwnerID     string    `json:"owner_id"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrderUpdate goes to the order's own room after every committed transition.
type OrderUpdate struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Status      Status    `json:"status"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewOrder goes to the operator room after every committed creation.
type NewOrder struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	OwnerID     string          `json:"ownerId"`
}
