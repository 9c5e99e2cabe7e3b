package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-fresh-orders/internal/orders")

// Inventory is what order creation needs from the stock store. Restore is
// only ever called to compensate a decrement made by the same creation.
type Inventory interface {
	Read(ctx context.Context, skuID string) (inventory.SKU, error)
	ConditionalDecrement(ctx context.Context, skuID string, qty decimal.Decimal) (bool, error)
	Restore(ctx context.Context, skuID string, qty decimal.Decimal) error
}

// Notifier pushes best-effort real-time events to topic subscribers.
type Notifier interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// EventBus carries durable domain events to downstream consumers.
type EventBus interface {
	Emit(ctx context.Context, topic, eventType, orderID string, payload any) error
}

const (
	defaultCreateTimeout  = 10 * time.Second
	defaultDeliveryWindow = 72 * time.Hour
	defaultListLimit      = 20
	maxListLimit          = 100
	maxConcurrentReads    = 4
	restoreAttempts       = 3
)

type Service struct {
	Ledger    Ledger
	Inventory Inventory
	Notifier  Notifier
	Events    EventBus // optional
	Log       *zap.Logger

	DeliveryFee    decimal.Decimal
	DeliveryWindow time.Duration
	CreateTimeout  time.Duration
	Now            func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) deliveryWindow() time.Duration {
	if s.DeliveryWindow > 0 {
		return s.DeliveryWindow
	}
	return defaultDeliveryWindow
}

func (s *Service) createTimeout() time.Duration {
	if s.CreateTimeout > 0 {
		return s.CreateTimeout
	}
	return defaultCreateTimeout
}

// CreateOrder validates every line, reserves stock for all of them or none,
// and persists the order. The caller going away does not abort it: the
// workflow runs detached under its own deadline.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.createTimeout())
	defer cancel()

	ctx, span := tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("order.owner_id", in.OwnerID),
		attribute.Int("order.item_count", len(in.Items)),
	))
	defer span.End()

	o, err := s.createOrder(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Order{}, err
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.OrderNumber),
	)

	s.announceNewOrder(ctx, o)
	return o, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if err := validateCreate(in); err != nil {
		return Order{}, err
	}

	address, err := s.deliveryAddress(ctx, in)
	if err != nil {
		return Order{}, err
	}

	items, err := s.priceItems(ctx, in.Items)
	if err != nil {
		return Order{}, err
	}

	if err := s.reserve(ctx, items); err != nil {
		return Order{}, err
	}

	now := s.now()
	created, err := s.Ledger.Create(ctx, Order{
		OwnerID:           in.OwnerID,
		Items:             items,
		TotalPrice:        SumSubtotals(items),
		DeliveryAddress:   address,
		DeliveryFee:       s.DeliveryFee,
		Notes:             strings.TrimSpace(in.Notes),
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
		EstimatedDelivery: now.Add(s.deliveryWindow()),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		s.release(ctx, items)
		if errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrSequenceExhausted) {
			return Order{}, err
		}
		return Order{}, unavailable("create order", err)
	}
	return created, nil
}

func validateCreate(in CreateOrderInput) error {
	v := &ValidationError{}
	if strings.TrimSpace(in.OwnerID) == "" {
		v.add("ownerId", "is required")
	}
	switch n := len(in.Items); {
	case n == 0:
		v.add("items", "at least one item is required")
	case n > MaxItems:
		v.add("items", "at most 10 items are allowed")
	}
	for i, it := range in.Items {
		field := "items[" + strconv.Itoa(i) + "]"
		if strings.TrimSpace(it.SkuID) == "" {
			v.add(field+".skuId", "is required")
		}
		if it.Quantity.LessThan(decimal.NewFromInt(1)) {
			v.add(field+".quantity", "must be at least 1")
		} else if !it.Quantity.Equal(it.Quantity.Truncate(quantityPlaces)) {
			v.add(field+".quantity", "at most 3 decimal places")
		}
	}
	if utf8.RuneCountInString(in.DeliveryAddress) > MaxAddressLen {
		v.add("deliveryAddress", "must be at most 500 characters")
	}
	if utf8.RuneCountInString(in.Notes) > MaxNotesLen {
		v.add("notes", "must be at most 1000 characters")
	}
	return v.orNil()
}

func (s *Service) deliveryAddress(ctx context.Context, in CreateOrderInput) (string, error) {
	if addr := strings.TrimSpace(in.DeliveryAddress); addr != "" {
		return addr, nil
	}
	def, err := s.Ledger.DefaultAddress(ctx, in.OwnerID)
	if err != nil {
		return "", err
	}
	if def = strings.TrimSpace(def); def == "" {
		return "", &ValidationError{Fields: map[string]string{
			"deliveryAddress": "is required when no default address is on file",
		}}
	}
	return def, nil
}

// priceItems reads every SKU, checks availability and prices the line. The
// reported failure is the one of the first failing line, not the first read
// that happened to return.
func (s *Service) priceItems(ctx context.Context, reqs []ItemRequest) ([]Item, error) {
	items := make([]Item, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(maxConcurrentReads)
	for i := range reqs {
		i := i
		g.Go(func() error {
			items[i], errs[i] = s.priceItem(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Service) priceItem(ctx context.Context, req ItemRequest) (Item, error) {
	sku, err := s.Inventory.Read(ctx, req.SkuID)
	if errors.Is(err, inventory.ErrNotFound) {
		return Item{}, &SkuNotFoundError{SkuID: req.SkuID}
	}
	if err != nil {
		return Item{}, unavailable("read sku "+req.SkuID, err)
	}
	if !sku.Active {
		return Item{}, &SkuNotFoundError{SkuID: req.SkuID}
	}
	if sku.Available.LessThan(req.Quantity) {
		return Item{}, &InsufficientStockError{SkuID: req.SkuID, Available: sku.Available, Requested: req.Quantity}
	}
	return Item{
		SkuID:     sku.ID,
		SkuKind:   sku.Kind,
		SkuSize:   sku.Size,
		Quantity:  req.Quantity,
		UnitPrice: sku.UnitPrice,
		Subtotal:  req.Quantity.Mul(sku.UnitPrice),
	}, nil
}

// reserve decrements stock line by line. The first line that cannot be
// reserved undoes every decrement already applied for this order.
func (s *Service) reserve(ctx context.Context, items []Item) error {
	for i, it := range items {
		ok, err := s.Inventory.ConditionalDecrement(ctx, it.SkuID, it.Quantity)
		if err == nil && ok {
			continue
		}
		s.release(ctx, items[:i])
		if err != nil {
			// the store may have applied the decrement before the error came back
			s.log().Error("reservation outcome unknown, stock may need reconciling",
				zap.String("sku_id", it.SkuID),
				zap.String("quantity", it.Quantity.String()),
				zap.Error(err))
			return unavailable("reserve sku "+it.SkuID, err)
		}
		return s.shortfall(ctx, it)
	}
	return nil
}

func (s *Service) shortfall(ctx context.Context, it Item) error {
	sku, err := s.Inventory.Read(ctx, it.SkuID)
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return &SkuNotFoundError{SkuID: it.SkuID}
	case err != nil:
		s.log().Warn("re-read after failed reservation", zap.String("sku_id", it.SkuID), zap.Error(err))
		return &InsufficientStockError{SkuID: it.SkuID, Available: decimal.Zero, Requested: it.Quantity}
	case !sku.Active:
		return &SkuNotFoundError{SkuID: it.SkuID}
	}
	return &InsufficientStockError{SkuID: it.SkuID, Available: sku.Available, Requested: it.Quantity}
}

// release gives back stock taken by a creation that did not complete.
func (s *Service) release(ctx context.Context, items []Item) {
	if len(items) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.createTimeout())
	defer cancel()

	for _, it := range items {
		var err error
		for attempt := 1; attempt <= restoreAttempts; attempt++ {
			if err = s.Inventory.Restore(ctx, it.SkuID, it.Quantity); err == nil {
				break
			}
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
		if err != nil {
			s.log().Error("stock compensation failed",
				zap.String("sku_id", it.SkuID),
				zap.String("quantity", it.Quantity.String()),
				zap.Error(err))
		}
	}
}

// UpdateStatus moves an order along the lifecycle graph. The write is
// conditional on the status that was read, so two operators racing on the
// same order cannot both win.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status, operatorNotes *string) (Order, error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status.to", string(to)),
	))
	defer span.End()

	o, err := s.updateStatus(ctx, orderID, to, operatorNotes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Order{}, err
	}
	return o, nil
}

func (s *Service) updateStatus(ctx context.Context, orderID string, to Status, operatorNotes *string) (Order, error) {
	if !to.Valid() {
		return Order{}, &ValidationError{Fields: map[string]string{"status": "unknown status " + string(to)}}
	}
	if operatorNotes != nil && utf8.RuneCountInString(*operatorNotes) > MaxNotesLen {
		return Order{}, &ValidationError{Fields: map[string]string{"operatorNotes": "must be at most 1000 characters"}}
	}

	current, err := s.Ledger.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(current.Status, to) {
		return Order{}, &InvalidTransitionError{From: current.Status, To: to}
	}

	now := s.now()
	change := StatusChange{
		OrderID:       orderID,
		From:          current.Status,
		To:            to,
		OperatorNotes: operatorNotes,
		At:            now,
	}
	if to == StatusDelivered {
		change.ActualDelivery = &now
	}

	updated, err := s.Ledger.UpdateStatus(ctx, change)
	if errors.Is(err, ErrStatusConflict) {
		if latest, gerr := s.Ledger.Get(ctx, orderID); gerr == nil && !CanTransition(latest.Status, to) {
			return Order{}, &InvalidTransitionError{From: latest.Status, To: to}
		}
		return Order{}, ErrStatusConflict
	}
	if err != nil {
		return Order{}, err
	}

	s.announceStatus(ctx, current.Status, updated)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.Ledger.Get(ctx, orderID)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "unknown status " + string(f.Status)}}
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.Ledger.List(ctx, f)
}

// announceNewOrder and announceStatus run after the write committed; their
// failures are logged and never reach the caller.
func (s *Service) announceNewOrder(ctx context.Context, o Order) {
	if s.Notifier != nil {
		err := s.Notifier.Publish(ctx, RoomAdmin, EventNewOrder, NewOrder{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			TotalPrice:  o.TotalPrice,
			OwnerID:     o.OwnerID,
		})
		if err != nil {
			s.log().Warn("notify new order", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	if s.Events != nil {
		items := make([]ItemQty, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, ItemQty{SkuID: it.SkuID, Quantity: it.Quantity})
		}
		err := s.Events.Emit(ctx, TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			OwnerID:     o.OwnerID,
			Items:       items,
			TotalPrice:  o.TotalPrice,
			CreatedAt:   o.CreatedAt,
		})
		if err != nil {
			s.log().Warn("emit order created", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
}

func (s *Service) announceStatus(ctx context.Context, from Status, o Order) {
	if s.Notifier != nil {
		err := s.Notifier.Publish(ctx, OrderRoom(o.ID), EventOrderUpdate, OrderUpdate{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      o.Status,
			UpdatedAt:   o.UpdatedAt,
		})
		if err != nil {
			s.log().Warn("notify order update", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	if s.Events != nil {
		err := s.Events.Emit(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			OwnerID:     o.OwnerID,
			From:        from,
			To:          o.Status,
			UpdatedAt:   o.UpdatedAt,
		})
		if err != nil {
			s.log().Warn("emit status changed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
}
