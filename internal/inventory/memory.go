package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps SKUs in process. The mutex makes the check and the
// decrement one step, which is the same guarantee the SQL and Lua stores give.
type MemoryStore struct {
	mu   sync.Mutex
	skus map[string]SKU
}

func NewMemoryStore(skus ...SKU) *MemoryStore {
	s := &MemoryStore{skus: make(map[string]SKU, len(skus))}
	for _, sku := range skus {
		s.skus[sku.ID] = sku
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, sku SKU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku.UpdatedAt = time.Now().UTC()
	s.skus[sku.ID] = sku
	return nil
}

func (s *MemoryStore) Read(_ context.Context, skuID string) (SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuID]
	if !ok {
		return SKU{}, ErrNotFound
	}
	return sku, nil
}

func (s *MemoryStore) ConditionalDecrement(_ context.Context, skuID string, qty decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuID]
	if !ok || !sku.Active || sku.Available.LessThan(qty) {
		return false, nil
	}
	sku.Available = sku.Available.Sub(qty)
	sku.UpdatedAt = time.Now().UTC()
	s.skus[skuID] = sku
	return true, nil
}

func (s *MemoryStore) Restore(_ context.Context, skuID string, qty decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuID]
	if !ok {
		return ErrNotFound
	}
	sku.Available = sku.Available.Add(qty)
	sku.UpdatedAt = time.Now().UTC()
	s.skus[skuID] = sku
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SKU, 0, len(s.skus))
	for _, sku := range s.skus {
		out = append(out, sku)
	}
	sortByID(out)
	return out, nil
}

func sortByID(skus []SKU) {
	sort.Slice(skus, func(i, j int) bool { return skus[i].ID < skus[j].ID })
}
