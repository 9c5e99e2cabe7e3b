package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/auth"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/projection"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
)

const (
	requestTimeout     = 15 * time.Second
	idempotencyPending = "pending"
	maxIdempotencyKey  = 128
)

// Catalog lists SKUs for GET /skus.
type Catalog interface {
	List(ctx context.Context) ([]inventory.SKU, error)
}

type OrdersHandler struct {
	Orders  *orders.Service
	Catalog Catalog
	Auth    *auth.Signer
	Redis   redis.Cmdable     // idempotency keys; optional
	Views   *projection.Views // status cache + daily stats; optional
	WS      http.Handler      // optional
	Log     *zap.Logger
}

type createOrderReq struct {
	Items           []orders.ItemRequest `json:"items"`
	DeliveryAddress string               `json:"deliveryAddress"`
	Notes           string               `json:"notes"`
}

type updateStatusReq struct {
	Status        orders.Status `json:"status"`
	OperatorNotes *string       `json:"operatorNotes"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Middleware)
		if h.WS != nil {
			r.Handle("/ws", h.WS)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Post("/orders", h.createOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Get("/orders/{id}/status", h.getOrderStatus)
			r.Get("/skus", h.listSKUs)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleOperator))
				r.Patch("/orders/{id}/status", h.updateStatus)
				r.Get("/admin/stats/{day}", h.dailyStats)
			})
		})
	})
}

// CanFollow reports whether id may see the order: its owner or any operator.
// Unknown and foreign orders both come back as ErrOrderNotFound.
func (h *OrdersHandler) CanFollow(ctx context.Context, id auth.Identity, orderID string) error {
	_, err := h.visibleOrder(ctx, id, orderID)
	return err
}

func (h *OrdersHandler) visibleOrder(ctx context.Context, id auth.Identity, orderID string) (orders.Order, error) {
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if !id.IsOperator() && o.OwnerID != id.UserID {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	id := identity(r)
	in := orders.CreateOrderInput{
		OwnerID:         id.UserID,
		Items:           req.Items,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
	}

	idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idem == "" || h.Redis == nil {
		h.create(w, r, in)
		return
	}
	if len(idem) > maxIdempotencyKey {
		badRequest(w, "Idempotency-Key too long")
		return
	}

	// Fast-path idempotency via Redis: key -> "pending" selama proses, lalu order_id
	key := fmt.Sprintf(redisx.KeyIdemOrderCreate, id.UserID, idem)
	fresh, err := h.Redis.SetNX(r.Context(), key, idempotencyPending, redisx.TTLIdempotency).Result()
	if err != nil {
		h.Log.Warn("idempotency check skipped", zap.Error(err))
		h.create(w, r, in)
		return
	}
	if !fresh {
		h.replay(w, r, key)
		return
	}

	o, ok := h.create(w, r, in)
	// pakai ctx baru, request ctx bisa saja sudah timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if ok {
		err = h.Redis.Set(ctx, key, o.ID, redisx.TTLIdempotency).Err()
	} else {
		err = h.Redis.Del(ctx, key).Err()
	}
	if err != nil {
		h.Log.Warn("idempotency record", zap.String("key", key), zap.Error(err))
	}
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request, in orders.CreateOrderInput) (orders.Order, bool) {
	o, err := h.Orders.CreateOrder(r.Context(), in)
	if err != nil {
		h.logFailure(r, "create order", err)
		writeError(w, err)
		return orders.Order{}, false
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusCreated, o)
	return o, true
}

func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, key string) {
	orderID, err := h.Redis.Get(r.Context(), key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		writeError(w, fmt.Errorf("%w: idempotency lookup: %v", orders.ErrStorageUnavailable, err))
		return
	}
	if orderID == "" || orderID == idempotencyPending {
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "a request with this Idempotency-Key is still in progress",
			Code:  "IDEMPOTENCY_IN_PROGRESS",
		})
		return
	}
	o, err := h.Orders.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	q := r.URL.Query()
	f := orders.ListFilter{Status: orders.Status(q.Get("status"))}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	if id.IsOperator() {
		f.OwnerID = q.Get("ownerId")
	} else {
		f.OwnerID = id.UserID
	}

	list, err := h.Orders.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.visibleOrder(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	orderID := chi.URLParam(r, "id")

	// 1) coba cache
	if h.Views != nil {
		sv, ok, err := h.Views.Status(r.Context(), orderID)
		if err != nil {
			h.Log.Warn("status cache read", zap.String("order_id", orderID), zap.Error(err))
		}
		if ok && (id.IsOperator() || sv.OwnerID == id.UserID) {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, sv)
			return
		}
	}

	// 2) fallback ledger
	o, err := h.visibleOrder(r.Context(), id, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, statusView(o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	orderID := chi.URLParam(r, "id")
	o, err := h.Orders.UpdateStatus(r.Context(), orderID, req.Status, req.OperatorNotes)
	if err != nil {
		h.logFailure(r, "update status", err)
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listSKUs(w http.ResponseWriter, r *http.Request) {
	skus, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: list skus: %v", orders.ErrStorageUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, skus)
}

func (h *OrdersHandler) dailyStats(w http.ResponseWriter, r *http.Request) {
	if h.Views == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "stats are not available", Code: "STATS_UNAVAILABLE"})
		return
	}
	day, err := projection.ParseDay(chi.URLParam(r, "day"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	stats, err := h.Views.DailyStats(r.Context(), day)
	if err != nil {
		writeError(w, fmt.Errorf("%w: daily stats: %v", orders.ErrStorageUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":      day.Format(time.DateOnly),
		"counters": stats,
	})
}

// cacheStatus writes through after every local write so the next status read
// does not wait for the projector.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Views == nil {
		return
	}
	if err := h.Views.PutStatus(context.WithoutCancel(ctx), statusView(o)); err != nil {
		h.Log.Warn("status cache write", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func statusView(o orders.Order) projection.StatusView {
	return projection.StatusView{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		OwnerID:     o.OwnerID,
		Status:      o.Status,
		UpdatedAt:   o.UpdatedAt,
	}
}

func (h *OrdersHandler) logFailure(r *http.Request, op string, err error) {
	code, _ := errorResponse(err)
	if code < http.StatusInternalServerError {
		return
	}
	h.Log.Error(op+" failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
}
