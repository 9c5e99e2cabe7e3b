package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Read when the SKU does not exist.
var ErrNotFound = errors.New("sku not found")

// SKU is a catalog entry together with its available quantity in kilograms.
type SKU struct {
	ID        string          `json:"skuId"`
	Kind      string          `json:"kind"`
	Size      string          `json:"size"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Available decimal.Decimal `json:"available"`
	Active    bool            `json:"active"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
