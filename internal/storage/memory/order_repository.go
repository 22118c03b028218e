package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// orderBook хранит заказы и индекс заказов клиента для истории.
type orderBook struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCustomer map[string][]string
}

// NewOrderRepository создаёт in-memory коллекцию order.
func NewOrderRepository() domain.OrderRepository {
	return &orderBook{
		orders:     make(map[string]domain.Order),
		byCustomer: make(map[string][]string),
	}
}

func (b *orderBook) Create(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, taken := b.orders[order.ID]; taken {
		return domain.ErrAlreadyExists
	}
	b.orders[order.ID] = cloneOrder(order)
	b.byCustomer[order.CustomerID] = append(b.byCustomer[order.CustomerID], order.ID)
	return nil
}

func (b *orderBook) Get(_ context.Context, id string) (domain.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	order, ok := b.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer отдаёт историю клиента: новые заказы первыми, при равном времени по убыванию ID.
func (b *orderBook) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	b.mu.RLock()
	ids := b.byCustomer[customerID]
	history := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		history = append(history, cloneOrder(b.orders[id]))
	}
	b.mu.RUnlock()

	sort.Slice(history, func(i, j int) bool {
		a, c := history[i], history[j]
		if a.CreatedAt.Equal(c.CreatedAt) {
			return a.ID > c.ID
		}
		return a.CreatedAt.After(c.CreatedAt)
	})
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}

// Save принимает заказ только с текущей версией и увеличивает её.
func (b *orderBook) Save(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrVersionConflict
	}
	// владелец заказа не меняется, индекс остаётся прежним
	order.CustomerID = stored.CustomerID
	order.Version = stored.Version + 1
	b.orders[order.ID] = cloneOrder(order)
	return nil
}

var _ domain.OrderRepository = (*orderBook)(nil)
