package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

var errPublisherNotReady = errors.New("kafka order event publisher is not initialized")

// OrderEventPublisher отправляет outbox-сообщения в топик в виде Envelope.
// Тип события дублируется в заголовке, чтобы подписчик мог отфильтровать его без разбора JSON.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOrderEventPublisher создаёт publisher; пустой topic означает TopicOrderEvents.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *OrderEventPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}
	envelope := NewEnvelope(msg, p.now())
	return p.producer.SendJSON(ctx, p.topic, envelope.Key(), envelope, map[string]string{
		HeaderEventType: msg.EventType,
	})
}

var _ domain.OutboxPublisher = (*OrderEventPublisher)(nil)
