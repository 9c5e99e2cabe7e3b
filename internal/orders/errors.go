package orders

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict: the order changed status between read and conditional write.
	ErrStatusConflict = errors.New("order status changed concurrently, please retry")
	// ErrStorageUnavailable marks persistence or counter failures. Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSequenceExhausted  = errors.New("daily order number sequence exhausted")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type SkuNotFoundError struct {
	SkuID string
}

func (e *SkuNotFoundError) Error() string {
	return fmt.Sprintf("sku not found: %s", e.SkuID)
}

type InsufficientStockError struct {
	SkuID     string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %s (available: %s, requested: %s)",
		e.SkuID, e.Available, e.Requested)
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Cannot change status from %s to %s", e.From, e.To)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
