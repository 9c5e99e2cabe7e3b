package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Ledger is the authoritative store of orders.
//
// Create assigns the order id and the day-scoped order number in the same
// atomic unit that persists the order, so a failed create never burns a number.
// UpdateStatus applies the change only while the order is still in change.From.
type Ledger interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, change StatusChange) (Order, error)
	DefaultAddress(ctx context.Context, ownerID string) (string, error)
}

// MemoryLedger is a Ledger held in process memory.
type MemoryLedger struct {
	mu        sync.Mutex
	orders    map[string]Order
	seq       map[string]int
	addresses map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		orders:    map[string]Order{},
		seq:       map[string]int{},
		addresses: map[string]string{},
	}
}

func (l *MemoryLedger) SetDefaultAddress(ownerID, address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addresses[ownerID] = address
}

func (l *MemoryLedger) DefaultAddress(_ context.Context, ownerID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addresses[ownerID], nil
}

func (l *MemoryLedger) Create(_ context.Context, o Order) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := OrderDay(o.CreatedAt)
	key := day.Format(orderNumberDayLayout)
	number, err := FormatOrderNumber(day, l.seq[key]+1)
	if err != nil {
		return Order{}, err
	}
	l.seq[key]++

	o.ID = uuid.NewString()
	o.OrderNumber = number
	o.Items = append([]Item(nil), o.Items...)
	l.orders[o.ID] = o
	return clone(o), nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return clone(o), nil
}

func (l *MemoryLedger) List(_ context.Context, f ListFilter) ([]Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Order
	for _, o := range l.orders {
		if f.OwnerID != "" && o.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) UpdateStatus(_ context.Context, c StatusChange) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[c.OrderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if o.Status != c.From {
		return Order{}, ErrStatusConflict
	}
	o.Status = c.To
	if c.OperatorNotes != nil {
		o.OperatorNotes = *c.OperatorNotes
	}
	if c.ActualDelivery != nil {
		t := *c.ActualDelivery
		o.ActualDelivery = &t
	}
	o.UpdatedAt = c.At
	l.orders[o.ID] = o
	return clone(o), nil
}

func clone(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	if o.ActualDelivery != nil {
		t := *o.ActualDelivery
		o.ActualDelivery = &t
	}
	return o
}
