package stock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger guarding every product behind a
// single mutex. It backs tests and local development without Postgres.
type MemoryLedger struct {
	mu       sync.Mutex
	products map[string]Product
}

func NewMemoryLedger(products ...Product) *MemoryLedger {
	m := &MemoryLedger{products: make(map[string]Product, len(products))}
	now := time.Now().UTC()
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		m.products[p.ID] = p
	}
	return m
}

func (m *MemoryLedger) GetProduct(ctx context.Context, productID string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryLedger) CheckAvailability(ctx context.Context, productID string, requested int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return 0, ErrNotFound
	}
	return p.Quantity - requested, nil
}

func (m *MemoryLedger) Reserve(ctx context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return ErrNotFound
	}
	if p.Quantity < qty {
		return fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, productID, p.Quantity, qty)
	}
	p.Quantity -= qty
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return nil
}

func (m *MemoryLedger) Release(ctx context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Quantity += qty
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return nil
}

func (m *MemoryLedger) AdjustAll(ctx context.Context, deltas []Line) ([]DepletedLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var depleted []DepletedLine
	for _, d := range deltas {
		if d.Quantity == 0 {
			continue
		}
		p, ok := m.products[d.ProductID]
		if !ok {
			return nil, ErrNotFound
		}
		if p.Quantity-d.Quantity < 0 {
			depleted = append(depleted, DepletedLine{
				ProductID: d.ProductID,
				Requested: d.Quantity,
				Available: p.Quantity,
			})
		}
	}
	if len(depleted) > 0 {
		return depleted, nil
	}

	now := time.Now().UTC()
	for _, d := range deltas {
		if d.Quantity == 0 {
			continue
		}
		p := m.products[d.ProductID]
		p.Quantity -= d.Quantity
		p.UpdatedAt = now
		m.products[d.ProductID] = p
	}
	return nil, nil
}
