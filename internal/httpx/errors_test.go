package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
)

func TestErrorResponse(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		tag  string
	}{
		{"validation", &orders.ValidationError{Fields: map[string]string{"items": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"stock", &orders.InsufficientStockError{SkuID: "A", Available: decimal.NewFromInt(5), Requested: decimal.NewFromInt(10)}, http.StatusBadRequest, "INSUFFICIENT_STOCK"},
		{"sku", &orders.SkuNotFoundError{SkuID: "A"}, http.StatusNotFound, "SKU_NOT_FOUND"},
		{"transition", &orders.InvalidTransitionError{From: orders.StatusPending, To: orders.StatusDelivered}, http.StatusBadRequest, "INVALID_TRANSITION"},
		{"order", orders.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"conflict", orders.ErrStatusConflict, http.StatusConflict, "STATUS_CONFLICT"},
		{"exhausted", orders.ErrSequenceExhausted, http.StatusServiceUnavailable, "SEQUENCE_EXHAUSTED"},
		{"storage wrapped", fmt.Errorf("%w: insert order: boom", orders.ErrStorageUnavailable), http.StatusInternalServerError, "STORAGE_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := errorResponse(tc.err)
			if code != tc.code || body.Code != tc.tag {
				t.Fatalf("got %d %s, want %d %s", code, body.Code, tc.code, tc.tag)
			}
		})
	}

	_, body := errorResponse(&orders.InvalidTransitionError{From: orders.StatusShipped, To: orders.StatusPending})
	if body.Error != "Cannot change status from shipped to pending" {
		t.Fatalf("message = %q", body.Error)
	}
}
