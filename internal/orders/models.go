package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxItems       = 10
	MaxAddressLen  = 500
	MaxNotesLen    = 1000
	quantityPlaces = 3
)

// Item is a line of an order. SKU attributes and price are copied at order
// time so later catalog edits do not rewrite history.
type Item struct {
	SkuID     string          `json:"skuId"`
	SkuKind   string          `json:"skuKind"`
	SkuSize   string          `json:"skuSize"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID                string          `json:"orderId"`
	OrderNumber       string          `json:"orderNumber"`
	OwnerID           string          `json:"ownerId"`
	Items             []Item          `json:"items"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	DeliveryAddress   string          `json:"deliveryAddress"`
	DeliveryFee       decimal.Decimal `json:"deliveryFee"`
	Notes             string          `json:"notes"`
	OperatorNotes     string          `json:"operatorNotes"`
	Status            Status          `json:"status"`
	PaymentStatus     PaymentStatus   `json:"paymentStatus"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
	ActualDelivery    *time.Time      `json:"actualDelivery,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// SumSubtotals is the only way totalPrice is computed.
func SumSubtotals(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

type ItemRequest struct {
	SkuID    string          `json:"skuId"`
	Quantity decimal.Decimal `json:"quantity"`
}

type CreateOrderInput struct {
	OwnerID         string
	Items           []ItemRequest
	DeliveryAddress string
	Notes           string
}

// StatusChange is applied only if the order is still in From.
type StatusChange struct {
	OrderID        string
	From           Status
	To             Status
	OperatorNotes  *string
	ActualDelivery *time.Time
	At             time.Time
}

type ListFilter struct {
	OwnerID string
	Status  Status
	Limit   int
}
