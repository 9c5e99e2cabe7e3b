package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// errorResponse maps a service error onto status code and body.
func errorResponse(err error) (int, errorBody) {
	var (
		ve  *orders.ValidationError
		ise *orders.InsufficientStockError
		snf *orders.SkuNotFoundError
		ite *orders.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: "validation failed", Code: "VALIDATION_ERROR", Details: ve.Fields}
	case errors.As(err, &ise):
		return http.StatusBadRequest, errorBody{Error: ise.Error(), Code: "INSUFFICIENT_STOCK", Details: map[string]any{
			"skuId":     ise.SkuID,
			"available": ise.Available,
			"requested": ise.Requested,
		}}
	case errors.As(err, &snf):
		return http.StatusNotFound, errorBody{Error: snf.Error(), Code: "SKU_NOT_FOUND", Details: map[string]string{"skuId": snf.SkuID}}
	case errors.As(err, &ite):
		return http.StatusBadRequest, errorBody{Error: ite.Error(), Code: "INVALID_TRANSITION", Details: map[string]string{
			"from": string(ite.From),
			"to":   string(ite.To),
		}}
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error(), Code: "ORDER_NOT_FOUND"}
	case errors.Is(err, orders.ErrStatusConflict):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "STATUS_CONFLICT"}
	case errors.Is(err, orders.ErrSequenceExhausted):
		return http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "SEQUENCE_EXHAUSTED"}
	case errors.Is(err, orders.ErrStorageUnavailable):
		return http.StatusInternalServerError, errorBody{Error: "storage unavailable, please retry", Code: "STORAGE_UNAVAILABLE"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL"}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, body := errorResponse(err)
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "VALIDATION_ERROR"})
}
