package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

// mailRepositoryInMemory имитирует коллекцию mail.
type mailRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Mail
}

// NewMailRepository создаёт in-memory коллекцию писем.
func NewMailRepository() domain.MailRepository {
	return &mailRepositoryInMemory{items: make(map[string]domain.Mail)}
}

func (r *mailRepositoryInMemory) Create(_ context.Context, mail domain.Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[mail.ID]; exists {
		return domain.ErrMailAlreadyExists
	}
	r.items[mail.ID] = cloneMail(mail)
	return nil
}

func (r *mailRepositoryInMemory) Get(_ context.Context, id string) (domain.Mail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mail, ok := r.items[id]
	if !ok {
		return domain.Mail{}, domain.ErrMailNotFound
	}
	return cloneMail(mail), nil
}

func (r *mailRepositoryInMemory) ListByOrder(_ context.Context, orderID string) ([]domain.Mail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Mail, 0)
	for _, mail := range r.items {
		if mail.OrderID == orderID {
			result = append(result, cloneMail(mail))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

var _ domain.MailRepository = (*mailRepositoryInMemory)(nil)
