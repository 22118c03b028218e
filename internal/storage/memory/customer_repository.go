package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// customerRepositoryInMemory хранит клиентов и уникальный индекс по email.
type customerRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.Customer
	byEmail map[string]string
}

// NewCustomerRepository возвращает in-memory репозиторий клиентов.
func NewCustomerRepository() domain.CustomerRepository {
	return &customerRepositoryInMemory{
		items:   make(map[string]domain.Customer),
		byEmail: make(map[string]string),
	}
}

func (r *customerRepositoryInMemory) Create(_ context.Context, customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[customer.ID]; exists {
		return domain.ErrAlreadyExists
	}
	email := domain.NormalizeEmail(customer.Email)
	if _, taken := r.byEmail[email]; taken {
		return domain.ErrEmailTaken
	}
	customer.Email = email
	r.items[customer.ID] = cloneCustomer(customer)
	r.byEmail[email] = customer.ID
	return nil
}

func (r *customerRepositoryInMemory) Get(_ context.Context, id string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return cloneCustomer(customer), nil
}

func (r *customerRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return cloneCustomer(r.items[id]), nil
}

// Save перезаписывает клиента, проверяя версию (optimistic locking).
func (r *customerRepositoryInMemory) Save(_ context.Context, customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[customer.ID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if current.Version != customer.Version {
		return domain.ErrVersionConflict
	}
	// Email меняется только через пересоздание аккаунта.
	customer.Email = current.Email
	customer.Version++
	r.items[customer.ID] = cloneCustomer(customer)
	return nil
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
