package domain

import (
	"context"
	"time"
)

// Типы событий, которые проходят через transactional outbox.
const (
	AggregateOrder = "order"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// PaymentGateway — внешняя платёжная форма для оплаты картой.
type PaymentGateway interface {
	// CreatePaymentURL возвращает ссылку на форму оплаты заказа; после оплаты форма
	// возвращает клиента в приложение через deep link.
	CreatePaymentURL(ctx context.Context, order Order) (string, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string `bson:"_id"`
	AggregateType string `bson:"aggregate_type"`
	AggregateID   string `bson:"aggregate_id"`
	EventType     string `bson:"event_type"`
	Payload       []byte `bson:"payload"`
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
