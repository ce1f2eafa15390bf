package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

// MemoryStore is a single-process catalog and order ledger. Stock decrements
// are applied line by line and compensated if a later line fails.
type MemoryStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

func (m *MemoryStore) SaveProduct(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.products[p.ID]; ok {
		p.Version = existing.Version + 1
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = p
	return nil
}

// SetPrice changes a catalog price without touching stock.
func (m *MemoryStore) SetPrice(productID string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.products[productID]; ok {
		p.Price = price
		p.Version++
		m.products[productID] = p
	}
}

func (m *MemoryStore) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) PlaceOrder(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}

	applied := make([]domain.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		p, ok := m.products[item.ProductID]
		if !ok || !p.IsActive {
			m.restock(applied)
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		if p.Stock < item.Quantity {
			m.restock(applied)
			return &domain.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   item.Quantity,
				Available:   p.Stock,
			}
		}

		p.Stock -= item.Quantity
		p.Version++
		m.products[p.ID] = p
		applied = append(applied, item)
	}

	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) restock(applied []domain.LineItem) {
	for _, item := range applied {
		p := m.products[item.ProductID]
		p.Stock += item.Quantity
		p.Version++
		m.products[item.ProductID] = p
	}
}

func (m *MemoryStore) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (m *MemoryStore) ListOrdersByOwner(_ context.Context, ownerID string) ([]domain.Order, error) {
	return m.list(func(o domain.Order) bool { return o.Owner.ID == ownerID }), nil
}

func (m *MemoryStore) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	return m.list(filter.Matches), nil
}

func (m *MemoryStore) list(match func(domain.Order) bool) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if match(o) {
			out = append(out, cloneOrder(o))
		}
	}

	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (m *MemoryStore) UpdateFulfillmentStatus(_ context.Context, orderID string, from, to domain.FulfillmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.FulfillmentStatus != from {
		return domain.ErrOptimisticLock
	}
	o.FulfillmentStatus = to
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) UpdatePaymentStatus(_ context.Context, orderID string, to domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.PaymentStatus != domain.PaymentPending {
		return domain.ErrOptimisticLock
	}
	o.PaymentStatus = to
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

type memoryClaim struct {
	value     string
	expiresAt time.Time
}

// MemoryCache keeps idempotency claims in process, for runs without Redis.
type MemoryCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]memoryClaim
	now    func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryCache{
		ttl:    ttl,
		claims: make(map[string]memoryClaim),
		now:    time.Now,
	}
}

func (c *MemoryCache) ClaimIdempotency(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if claim, ok := c.claims[key]; ok && now.Before(claim.expiresAt) {
		return claim.value, false, nil
	}
	c.claims[key] = memoryClaim{expiresAt: now.Add(c.ttl)}
	return "", true, nil
}

func (c *MemoryCache) CompleteIdempotency(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, ok := c.claims[key]
	if !ok || !c.now().Before(claim.expiresAt) {
		return nil
	}
	claim.value = value
	c.claims[key] = claim
	return nil
}

func (c *MemoryCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, key)
	return nil
}
