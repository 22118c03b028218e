package domain

import (
	"context"
	"time"
)

// CustomerRepository хранит документы коллекции customer (вместе с корзиной).
type CustomerRepository interface {
	// Create сохраняет нового клиента; занятый email даёт ErrEmailTaken.
	Create(ctx context.Context, customer Customer) error
	// Get возвращает клиента или ErrCustomerNotFound.
	Get(ctx context.Context, id string) (Customer, error)
	// GetByEmail ищет клиента по нормализованному email.
	GetByEmail(ctx context.Context, email string) (Customer, error)
	// Save применяет изменения с учётом optimistic locking и увеличивает Version.
	Save(ctx context.Context, customer Customer) error
}

// ProductRepository хранит каталог.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, filter ProductFilter) ([]Product, error)
	// Upsert создаёт или полностью заменяет товар.
	Upsert(ctx context.Context, product Product) error
	ListSubCategories(ctx context.Context) ([]SubCategory, error)
	UpsertSubCategory(ctx context.Context, sub SubCategory) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrAlreadyExists, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми, с опциональным ограничением.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// MailRepository — коллекция mail.
type MailRepository interface {
	// Create сохраняет письмо; повторный ID даёт ErrMailAlreadyExists.
	Create(ctx context.Context, mail Mail) error
	Get(ctx context.Context, id string) (Mail, error)
	ListByOrder(ctx context.Context, orderID string) ([]Mail, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
