package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-fresh-orders/internal/auth"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/projection"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	signer *auth.Signer
	stock  *inventory.MemoryStore
	views  *projection.Views
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	stock := inventory.NewMemoryStore(
		inventory.SKU{ID: "A", Kind: "whole", Size: "M", UnitPrice: decimal.NewFromInt(800), Available: decimal.NewFromInt(50), Active: true},
		inventory.SKU{ID: "B", Kind: "fillet", Size: "S", UnitPrice: decimal.NewFromInt(1200), Available: decimal.NewFromInt(5), Active: true},
	)
	ledger := orders.NewMemoryLedger()
	ledger.SetDefaultAddress("cust-1", "Jl. Sudirman 1")
	svc := &orders.Service{
		Ledger:      ledger,
		Inventory:   stock,
		Log:         zap.NewNop(),
		DeliveryFee: decimal.NewFromInt(15000),
	}

	signer := auth.NewSigner("handler-secret")
	views := &projection.Views{RDB: rdb}
	h := &OrdersHandler{Orders: svc, Catalog: stock, Auth: signer, Redis: rdb, Views: views, Log: zap.NewNop()}
	r := NewRouter(zap.NewNop())
	h.Register(r)
	return &testAPI{t: t, router: r, signer: signer, stock: stock, views: views}
}

var (
	customer  = auth.Identity{UserID: "cust-1", Role: auth.RoleCustomer}
	stranger  = auth.Identity{UserID: "cust-2", Role: auth.RoleCustomer}
	operator  = auth.Identity{UserID: "op-1", Role: auth.RoleOperator}
	anonymous = auth.Identity{}
)

func (a *testAPI) do(id auth.Identity, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if id.UserID != "" {
		tok, err := a.signer.Issue(id)
		if err != nil {
			a.t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return v
}

func newOrderBody(sku, qty string) map[string]any {
	return map[string]any{"items": []map[string]string{{"skuId": sku, "quantity": qty}}}
}

func (a *testAPI) mustCreate(id auth.Identity) orders.Order {
	a.t.Helper()
	rec := a.do(id, http.MethodPost, "/orders", newOrderBody("A", "2"))
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	return decode[orders.Order](a.t, rec)
}

func TestHealthzIsPublic(t *testing.T) {
	a := newTestAPI(t)
	if rec := a.do(anonymous, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := a.do(anonymous, http.MethodGet, "/orders", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("orders without token = %d", rec.Code)
	}
}

func TestCreateAndReadOrder(t *testing.T) {
	a := newTestAPI(t)
	o := a.mustCreate(customer)

	if !o.TotalPrice.Equal(decimal.NewFromInt(1600)) || o.Status != orders.StatusPending || o.DeliveryAddress != "Jl. Sudirman 1" {
		t.Fatalf("order = %+v", o)
	}
	if _, _, err := orders.ParseOrderNumber(o.OrderNumber); err != nil {
		t.Fatalf("orderNumber %q: %v", o.OrderNumber, err)
	}

	for _, tc := range []struct {
		name string
		id   auth.Identity
		want int
	}{
		{"owner", customer, http.StatusOK},
		{"operator", operator, http.StatusOK},
		{"stranger", stranger, http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if rec := a.do(tc.id, http.MethodGet, "/orders/"+o.ID, nil); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	sku, _ := a.stock.Read(context.Background(), "A")
	if !sku.Available.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("stock = %s", sku.Available)
	}
}

func TestCreateOrderErrors(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(customer, http.MethodPost, "/orders", newOrderBody("B", "10"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[struct {
		Error   string            `json:"error"`
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}](t, rec)
	if body.Code != "INSUFFICIENT_STOCK" || body.Details["available"] != "5" || body.Details["requested"] != "10" {
		t.Fatalf("body = %+v", body)
	}

	if rec := a.do(customer, http.MethodPost, "/orders", newOrderBody("nope", "1")); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown sku = %d", rec.Code)
	}
	if rec := a.do(customer, http.MethodPost, "/orders", `{"items":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d", rec.Code)
	}
	if rec := a.do(stranger, http.MethodPost, "/orders", newOrderBody("A", "1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing address = %d", rec.Code)
	}
}

func TestIdempotencyKeyReplaysOrder(t *testing.T) {
	a := newTestAPI(t)
	first := a.do(customer, http.MethodPost, "/orders", newOrderBody("A", "2"), "Idempotency-Key", "checkout-42")
	if first.Code != http.StatusCreated {
		t.Fatalf("first = %d %s", first.Code, first.Body)
	}
	second := a.do(customer, http.MethodPost, "/orders", newOrderBody("A", "2"), "Idempotency-Key", "checkout-42")
	if second.Code != http.StatusOK || second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("second = %d %v", second.Code, second.Header())
	}
	if decode[orders.Order](t, first).ID != decode[orders.Order](t, second).ID {
		t.Fatal("replay returned a different order")
	}
	sku, _ := a.stock.Read(context.Background(), "A")
	if !sku.Available.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("stock = %s, want one reservation only", sku.Available)
	}

	// keys are per owner
	other := a.do(operator, http.MethodPost, "/orders", map[string]any{
		"items": []map[string]string{{"skuId": "A", "quantity": "1"}}, "deliveryAddress": "Gudang 3",
	}, "Idempotency-Key", "checkout-42")
	if other.Code != http.StatusCreated {
		t.Fatalf("other owner = %d %s", other.Code, other.Body)
	}

	// a failed create frees the key for a retry
	failed := a.do(customer, http.MethodPost, "/orders", newOrderBody("B", "10"), "Idempotency-Key", "checkout-43")
	if failed.Code != http.StatusBadRequest {
		t.Fatalf("failed = %d", failed.Code)
	}
	retry := a.do(customer, http.MethodPost, "/orders", newOrderBody("B", "1"), "Idempotency-Key", "checkout-43")
	if retry.Code != http.StatusCreated {
		t.Fatalf("retry = %d %s", retry.Code, retry.Body)
	}
}

func TestUpdateStatus(t *testing.T) {
	a := newTestAPI(t)
	o := a.mustCreate(customer)
	path := "/orders/" + o.ID + "/status"

	if rec := a.do(customer, http.MethodPatch, path, map[string]string{"status": "processing"}); rec.Code != http.StatusForbidden {
		t.Fatalf("customer patch = %d", rec.Code)
	}

	rec := a.do(operator, http.MethodPatch, path, map[string]string{"status": "delivered"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("skip ahead = %d", rec.Code)
	}
	if msg := decode[errorBody](t, rec).Error; msg != "Cannot change status from pending to delivered" {
		t.Fatalf("message = %q", msg)
	}

	rec = a.do(operator, http.MethodPatch, path, map[string]string{"status": "processing", "operatorNotes": "picked"})
	if rec.Code != http.StatusOK {
		t.Fatalf("processing = %d %s", rec.Code, rec.Body)
	}
	got := decode[orders.Order](t, rec)
	if got.Status != orders.StatusProcessing || got.OperatorNotes != "picked" {
		t.Fatalf("order = %+v", got)
	}

	if rec := a.do(operator, http.MethodPatch, "/orders/missing/status", map[string]string{"status": "processing"}); rec.Code != http.StatusNotFound {
		t.Fatalf("missing = %d", rec.Code)
	}
}

func TestOrderStatusCacheAside(t *testing.T) {
	a := newTestAPI(t)
	o := a.mustCreate(customer)
	path := "/orders/" + o.ID + "/status"

	rec := a.do(customer, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "hit" {
		t.Fatalf("after create: %d %s", rec.Code, rec.Header().Get("X-Cache"))
	}
	if sv := decode[projection.StatusView](t, rec); sv.Status != orders.StatusPending || sv.OrderNumber != o.OrderNumber {
		t.Fatalf("view = %+v", sv)
	}

	if err := a.views.DropStatus(context.Background(), o.ID); err != nil {
		t.Fatalf("DropStatus: %v", err)
	}
	rec = a.do(customer, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "miss" {
		t.Fatalf("after drop: %d %s", rec.Code, rec.Header().Get("X-Cache"))
	}
	if rec := a.do(stranger, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("stranger = %d", rec.Code)
	}

	a.do(operator, http.MethodPatch, path, map[string]string{"status": "cancelled"})
	sv := decode[projection.StatusView](t, a.do(customer, http.MethodGet, path, nil))
	if sv.Status != orders.StatusCancelled {
		t.Fatalf("cache not refreshed on update: %+v", sv)
	}
}

func TestListOrdersScope(t *testing.T) {
	a := newTestAPI(t)
	a.mustCreate(customer)
	a.mustCreate(customer)
	a.do(operator, http.MethodPost, "/orders", map[string]any{
		"items": []map[string]string{{"skuId": "A", "quantity": "1"}}, "deliveryAddress": "Gudang 3",
	})

	if got := decode[[]orders.Order](t, a.do(customer, http.MethodGet, "/orders", nil)); len(got) != 2 {
		t.Fatalf("customer sees %d", len(got))
	}
	if got := decode[[]orders.Order](t, a.do(operator, http.MethodGet, "/orders", nil)); len(got) != 3 {
		t.Fatalf("operator sees %d", len(got))
	}
	if got := decode[[]orders.Order](t, a.do(operator, http.MethodGet, "/orders?limit=1", nil)); len(got) != 1 {
		t.Fatalf("limit ignored: %d", len(got))
	}
	if got := decode[[]orders.Order](t, a.do(stranger, http.MethodGet, "/orders", nil)); len(got) != 0 {
		t.Fatalf("stranger sees %d", len(got))
	}
	if rec := a.do(customer, http.MethodGet, "/orders?status=lost", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", rec.Code)
	}
	if rec := a.do(customer, http.MethodGet, "/orders?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rec.Code)
	}
}

func TestSKUsAndStats(t *testing.T) {
	a := newTestAPI(t)
	skus := decode[[]inventory.SKU](t, a.do(customer, http.MethodGet, "/skus", nil))
	if len(skus) != 2 || skus[0].ID != "A" {
		t.Fatalf("skus = %+v", skus)
	}

	today := time.Now().UTC().Format("20060102")
	if rec := a.do(customer, http.MethodGet, "/admin/stats/"+today, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("customer stats = %d", rec.Code)
	}
	if rec := a.do(operator, http.MethodGet, "/admin/stats/yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad day = %d", rec.Code)
	}
	rec := a.do(operator, http.MethodGet, "/admin/stats/"+today, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d %s", rec.Code, rec.Body)
	}
	body := decode[struct {
		Day      string           `json:"day"`
		Counters map[string]int64 `json:"counters"`
	}](t, rec)
	if body.Counters == nil || len(body.Day) != 10 {
		t.Fatalf("body = %+v", body)
	}
}
