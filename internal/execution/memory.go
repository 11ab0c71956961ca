package execution

import (
	"context"
	"fmt"
	"sync"
)

// MemoryOrders is an in-process OrderStore for simulations and tests.
type MemoryOrders struct {
	mu     sync.Mutex
	nextID int64
	orders []Order
	index  map[string]int
}

// NewMemoryOrders returns an empty store.
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{index: make(map[string]int)}
}

func (m *MemoryOrders) InsertOrder(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.index[order.ClientOrderID]; exists {
		return fmt.Errorf("duplicate cl_ord_id %s", order.ClientOrderID)
	}
	m.nextID++
	order.ID = m.nextID
	m.index[order.ClientOrderID] = len(m.orders)
	m.orders = append(m.orders, order)
	return nil
}

func (m *MemoryOrders) UpdateOrder(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[order.ClientOrderID]
	if !ok {
		return fmt.Errorf("order %s not found", order.ClientOrderID)
	}
	order.ID = m.orders[i].ID
	order.CreatedAt = m.orders[i].CreatedAt
	m.orders[i] = order
	return nil
}

// Orders returns a snapshot in insertion order.
func (m *MemoryOrders) Orders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.orders))
	copy(out, m.orders)
	return out
}

var _ OrderStore = (*MemoryOrders)(nil)
